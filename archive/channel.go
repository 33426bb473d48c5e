package archive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"guild-archive/store"
	"guild-archive/util"
)

const (
	historyPageSize = 100
	threadPageSize  = 100

	progressEvery = 1000
)

// archiveChannels walks every message channel of the guild: regular text and
// announcement channels first, then active threads, then archived threads
// (public and private) per parent. Threads seen twice are crawled once.
func (a *Archiver) archiveChannels(ctx context.Context, runDir string, runKey string, runID uuid.UUID, dl *downloader, sum *Summary) error {
	channels, err := a.client.GetGuildChannels(a.opts.GuildID, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("fetch channels: %w", err)
	}

	var messageChannels []discord.GuildChannel
	var threadParents []discord.GuildChannel
	for _, ch := range channels {
		switch ch.Type() {
		case discord.ChannelTypeGuildText, discord.ChannelTypeGuildNews:
			messageChannels = append(messageChannels, ch)
			threadParents = append(threadParents, ch)
		case discord.ChannelTypeGuildForum, discord.ChannelTypeGuildMedia:
			threadParents = append(threadParents, ch)
		}
	}

	seen := make(map[snowflake.ID]struct{})
	crawl := func(id snowflake.ID, name string, permChannel discord.GuildChannel) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := seen[id]; ok {
			return nil
		}
		seen[id] = struct{}{}
		if !a.canRead(permChannel) {
			slog.Warn("archive: skipping channel, insufficient permissions", slog.String("channel.name", name), slog.Any("channel.id", id))
			sum.Skipped++
			return nil
		}
		count, err := a.archiveMessageChannel(ctx, runDir, runKey, id, name, dl)
		if err != nil {
			slog.Error("archive: error while archiving a channel", slog.String("channel.name", name), slog.Any("channel.id", id), tint.Err(err))
			return nil
		}
		sum.Channels++
		sum.Messages += count
		if a.index != nil {
			if err := a.index.RecordChannel(ctx, runID, id, name, count); err != nil {
				slog.Warn("archive: could not record channel totals", slog.Any("channel.id", id), tint.Err(err))
			}
		}
		return nil
	}

	for _, ch := range messageChannels {
		if err := crawl(ch.ID(), ch.Name(), ch); err != nil {
			return err
		}
	}

	parentsByID := make(map[snowflake.ID]discord.GuildChannel, len(threadParents))
	for _, p := range threadParents {
		parentsByID[p.ID()] = p
	}
	permFor := func(th discord.GuildThread) discord.GuildChannel {
		// thread access follows the parent channel
		if pid := th.ParentID(); pid != nil {
			if p, ok := parentsByID[*pid]; ok {
				return p
			}
		}
		return th
	}

	slog.Info("archive: crawling active threads")
	active, err := a.client.GetActiveGuildThreads(a.opts.GuildID, rest.WithCtx(ctx))
	if err != nil {
		slog.Error("archive: error while fetching active threads", tint.Err(err))
	} else {
		for _, th := range active.Threads {
			if err := crawl(th.ID(), th.Name(), permFor(th)); err != nil {
				return err
			}
		}
	}

	slog.Info("archive: crawling archived threads")
	for _, parent := range threadParents {
		for _, private := range []bool{false, true} {
			threads, err := a.archivedThreads(ctx, parent.ID(), private)
			if err != nil {
				if restStatus(err) == http.StatusForbidden {
					continue
				}
				slog.Warn("archive: error while listing archived threads",
					slog.String("parent.name", parent.Name()),
					slog.Bool("private", private),
					tint.Err(err))
			}
			for _, th := range threads {
				if err := crawl(th.ID(), th.Name(), permFor(th)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// archivedThreads pages through the archived thread listing of one parent
// channel, advancing the before-cursor by the archive timestamp of the last
// thread of each page.
func (a *Archiver) archivedThreads(ctx context.Context, parentID snowflake.ID, private bool) ([]discord.GuildThread, error) {
	fetch := a.client.GetPublicArchivedThreads
	if private {
		fetch = a.client.GetPrivateArchivedThreads
	}
	var threads []discord.GuildThread
	before := time.Now()
	for {
		page, err := fetch(parentID, before, threadPageSize, rest.WithCtx(ctx))
		if err != nil {
			return threads, err
		}
		if page == nil || len(page.Threads) == 0 {
			return threads, nil
		}
		threads = append(threads, page.Threads...)
		if !page.HasMore {
			return threads, nil
		}
		cursor, ok := threadArchiveTime(page.Threads[len(page.Threads)-1])
		if !ok || !cursor.Before(before) {
			slog.Warn("archive: archived thread listing did not advance, stopping", slog.Any("parent.id", parentID))
			return threads, nil
		}
		before = cursor
	}
}

// threadArchiveTime reads the archive timestamp out of the thread's wire
// form; that timestamp is the pagination cursor of the archived listing.
func threadArchiveTime(th discord.GuildThread) (time.Time, bool) {
	raw, err := json.Marshal(th)
	if err != nil {
		return time.Time{}, false
	}
	var v struct {
		ThreadMetadata struct {
			ArchiveTimestamp time.Time `json:"archive_timestamp"`
		} `json:"thread_metadata"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, false
	}
	ts := v.ThreadMetadata.ArchiveTimestamp
	return ts, !ts.IsZero()
}

// archiveMessageChannel pages the full history of one channel or thread
// oldest-first into its JSONL file, scheduling media downloads along the
// way, and snapshots the currently pinned messages afterwards. Returns the
// number of messages written during this pass.
func (a *Archiver) archiveMessageChannel(ctx context.Context, runDir string, runKey string, id snowflake.ID, name string, dl *downloader) (int64, error) {
	cp, found, err := a.store.Checkpoint(runKey, id)
	if err != nil {
		return 0, err
	}
	if found && cp.Done {
		slog.Info("archive: channel already archived, skipping", slog.String("channel.name", name), slog.Any("channel.id", id))
		return 0, nil
	}

	safeName := util.SanitizeName(name)
	path := filepath.Join(runDir, fmt.Sprintf("%s-%s.jsonl", id, safeName))
	w, err := newJSONLWriter(path, true)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	slog.Info("archive: backing up channel", slog.String("channel.name", name), slog.Any("channel.id", id))

	var written int64
	count := cp.Messages
	media := cp.Media
	after := cp.LastMessageID

	for {
		msgs, err := a.client.GetMessages(id, 0, 0, after, historyPageSize, rest.WithCtx(ctx))
		if err != nil {
			if restStatus(err) == http.StatusNotFound {
				slog.Warn("archive: channel disappeared mid-crawl", slog.Any("channel.id", id))
				break
			}
			return written, err
		}
		if len(msgs) == 0 {
			break
		}
		// the endpoint orders newest-first; the archive wants oldest-first
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

		for _, m := range msgs {
			rec := NewMessageRecord(a.opts.GuildID, m)
			for i, att := range rec.Attachments {
				saved := AttachmentName(id, m.ID, media, att.OriginalName)
				dl.Schedule(att.URL, saved)
				rec.Attachments[i].SavedAs = saved
				media++
			}
			for i := range rec.Stickers {
				s := m.StickerItems[i]
				saved := StickerFileName(s.ID, media, s.FormatType)
				dl.Schedule(rec.Stickers[i].URL, saved)
				rec.Stickers[i].SavedAs = saved
				media++
			}
			if err := w.Write(rec); err != nil {
				return written, err
			}
			written++
			count++
			if count%progressEvery == 0 {
				slog.Info("archive: progress", slog.String("channel.name", name), slog.Int64("messages", count))
			}
		}

		after = msgs[len(msgs)-1].ID
		if err := w.Flush(); err != nil {
			return written, err
		}
		if err := a.store.SetCheckpoint(runKey, id, store.Checkpoint{
			LastMessageID: after,
			Messages:      count,
			Media:         media,
		}); err != nil {
			return written, err
		}
		if len(msgs) < historyPageSize {
			break
		}
	}

	if err := a.store.SetCheckpoint(runKey, id, store.Checkpoint{
		LastMessageID: after,
		Messages:      count,
		Media:         media,
		Done:          true,
	}); err != nil {
		return written, err
	}
	slog.Info("archive: finished channel", slog.String("channel.name", name), slog.Int64("messages", count))

	a.snapshotPins(ctx, runDir, id, safeName, name)
	return written, nil
}

// snapshotPins writes the currently pinned messages of a channel. Pins are
// best effort: missing access or a rate limit degrades to a warning.
func (a *Archiver) snapshotPins(ctx context.Context, runDir string, id snowflake.ID, safeName string, name string) {
	pinned, err := a.client.GetPinnedMessages(id, rest.WithCtx(ctx))
	if err != nil {
		switch restStatus(err) {
		case http.StatusForbidden:
			slog.Warn("archive: cannot fetch pins, missing access", slog.String("channel.name", name))
		case http.StatusTooManyRequests:
			slog.Warn("archive: rate limited while fetching pins, skipping snapshot", slog.String("channel.name", name))
		default:
			slog.Warn("archive: error while fetching pins", slog.String("channel.name", name), tint.Err(err))
		}
		return
	}
	if len(pinned) == 0 {
		return
	}
	path := filepath.Join(runDir, fmt.Sprintf("%s-%s_pinned.jsonl", id, safeName))
	w, err := newJSONLWriter(path, false)
	if err != nil {
		slog.Warn("archive: error while opening the pins file", slog.String("channel.name", name), tint.Err(err))
		return
	}
	defer w.Close()
	for _, m := range pinned {
		if err := w.Write(NewMessageRecord(a.opts.GuildID, m)); err != nil {
			slog.Warn("archive: error while writing a pinned message", slog.Any("message.id", m.ID), tint.Err(err))
			return
		}
	}
	slog.Info("archive: saved pinned messages", slog.String("channel.name", name), slog.Int("count", len(pinned)))
}
