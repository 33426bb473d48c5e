package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"guild-archive/db"
	"guild-archive/store"
	"guild-archive/util"
)

var ErrRunActive = errors.New("an archive run is already active")

const (
	mediaDirName  = "media"
	eventsDirName = "scheduled_events"

	memberPageSize = 1000
)

// guildClient is the slice of the REST surface the crawl needs. rest.Rest
// satisfies it; tests fake it.
type guildClient interface {
	GetGuild(guildID snowflake.ID, withCounts bool, opts ...rest.RequestOpt) (*discord.RestGuild, error)
	GetRoles(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Role, error)
	GetMembers(guildID snowflake.ID, limit int, after snowflake.ID, opts ...rest.RequestOpt) ([]discord.Member, error)
	GetEmojis(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Emoji, error)
	GetStickers(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Sticker, error)
	GetGuildScheduledEvents(guildID snowflake.ID, withUserCount bool, opts ...rest.RequestOpt) ([]discord.GuildScheduledEvent, error)
	GetGuildChannels(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.GuildChannel, error)
	GetMessages(channelID snowflake.ID, around snowflake.ID, before snowflake.ID, after snowflake.ID, limit int, opts ...rest.RequestOpt) ([]discord.Message, error)
	GetPinnedMessages(channelID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Message, error)
	GetActiveGuildThreads(guildID snowflake.ID, opts ...rest.RequestOpt) (*discord.GuildActiveThreads, error)
	GetPublicArchivedThreads(channelID snowflake.ID, before time.Time, limit int, opts ...rest.RequestOpt) (*discord.GetThreads, error)
	GetPrivateArchivedThreads(channelID snowflake.ID, before time.Time, limit int, opts ...rest.RequestOpt) (*discord.GetThreads, error)
}

type Options struct {
	GuildID          snowflake.ID
	OutputDir        string
	ResumeDir        string
	SkipMedia        bool
	MediaConcurrency int
}

// Archiver crawls one guild and writes its content to a run directory.
// At most one run is active at a time.
type Archiver struct {
	client guildClient
	caches cache.Caches
	media  *http.Client
	store  *store.Store
	index  *db.DB
	opts   Options

	running atomic.Bool
}

// New builds an Archiver on top of a connected client. index may be nil when
// no run index is configured.
func New(client bot.Client, st *store.Store, index *db.DB, mediaClient *http.Client, opts Options) *Archiver {
	return &Archiver{
		client: client.Rest(),
		caches: client.Caches(),
		media:  mediaClient,
		store:  st,
		index:  index,
		opts:   opts,
	}
}

// Running reports whether an archive pass is currently in flight.
func (a *Archiver) Running() bool {
	return a.running.Load()
}

// Summary describes a finished run.
type Summary struct {
	RunID    uuid.UUID
	RunDir   string
	Channels int
	Messages int64
	Skipped  int
	Duration time.Duration
}

// Run performs one full archive pass: guild metadata, roles, members,
// emojis, stickers, scheduled events, then every text channel and thread.
// A failing section is logged and skipped so a partial export still comes
// out; only setup failures abort the run.
func (a *Archiver) Run(ctx context.Context) (*Summary, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	defer a.running.Store(false)

	started := time.Now()
	guildID := a.opts.GuildID

	guild, err := a.client.GetGuild(guildID, true, rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}

	runDir := a.opts.ResumeDir
	if runDir == "" {
		name := fmt.Sprintf("%s_%s", util.SanitizeName(guild.Name), started.Format("20060102_150405"))
		runDir = filepath.Join(a.opts.OutputDir, name)
	}
	if err := os.MkdirAll(filepath.Join(runDir, mediaDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	runKey := filepath.Base(runDir)

	runID := uuid.New()
	if a.index != nil {
		if err := a.index.StartRun(ctx, runID, guildID, runDir); err != nil {
			slog.Warn("archive: could not record run start", slog.String("run.id", runID.String()), tint.Err(err))
		}
	}

	slog.Info("archive: starting run",
		slog.String("guild.name", guild.Name),
		slog.Any("guild.id", guildID),
		slog.String("run.dir", runDir))

	if err := writeJSONFile(filepath.Join(runDir, "guild.json"), NewGuildRecord(*guild)); err != nil {
		slog.Error("archive: error while writing guild summary", tint.Err(err))
	}
	a.exportRoles(ctx, runDir)
	a.exportMembers(ctx, runDir)
	a.exportEmojis(ctx, runDir)

	dl := newDownloader(ctx, a.media, filepath.Join(runDir, mediaDirName), a.opts.MediaConcurrency, a.opts.SkipMedia)
	a.exportStickers(ctx, runDir, dl)
	a.exportScheduledEvents(ctx, runDir)

	sum := &Summary{RunID: runID, RunDir: runDir}
	if err := a.archiveChannels(ctx, runDir, runKey, runID, dl, sum); err != nil {
		dl.Wait()
		return nil, err
	}
	dl.Wait()

	sum.Duration = time.Since(started)
	if a.index != nil {
		if err := a.index.FinishRun(ctx, runID, sum.Channels, sum.Messages); err != nil {
			slog.Warn("archive: could not record run finish", slog.String("run.id", runID.String()), tint.Err(err))
		}
	}
	slog.Info("archive: run complete",
		slog.String("run.dir", runDir),
		slog.Int("channels", sum.Channels),
		slog.Int64("messages", sum.Messages),
		slog.Int("skipped", sum.Skipped),
		slog.Duration("duration", sum.Duration))
	return sum, nil
}

func (a *Archiver) exportRoles(ctx context.Context, runDir string) {
	roles, err := a.client.GetRoles(a.opts.GuildID, rest.WithCtx(ctx))
	if err != nil {
		slog.Error("archive: error while fetching roles", tint.Err(err))
		return
	}
	w, err := newJSONLWriter(filepath.Join(runDir, "roles.jsonl"), false)
	if err != nil {
		slog.Error("archive: error while opening roles file", tint.Err(err))
		return
	}
	defer w.Close()
	for _, r := range roles {
		if err := w.Write(NewRoleRecord(r)); err != nil {
			slog.Error("archive: error while writing a role", slog.Any("role.id", r.ID), tint.Err(err))
			return
		}
	}
	slog.Info("archive: exported roles", slog.Int("count", len(roles)))
}

func (a *Archiver) exportMembers(ctx context.Context, runDir string) {
	w, err := newJSONLWriter(filepath.Join(runDir, "members.jsonl"), false)
	if err != nil {
		slog.Error("archive: error while opening members file", tint.Err(err))
		return
	}
	defer w.Close()
	var after snowflake.ID
	count := 0
	for {
		members, err := a.client.GetMembers(a.opts.GuildID, memberPageSize, after, rest.WithCtx(ctx))
		if err != nil {
			slog.Error("archive: error while fetching members", slog.Int("count", count), tint.Err(err))
			return
		}
		if len(members) == 0 {
			break
		}
		for _, m := range members {
			if err := w.Write(NewMemberRecord(m)); err != nil {
				slog.Error("archive: error while writing a member", slog.Any("user.id", m.User.ID), tint.Err(err))
				return
			}
		}
		count += len(members)
		after = members[len(members)-1].User.ID
		if len(members) < memberPageSize {
			break
		}
	}
	slog.Info("archive: exported members", slog.Int("count", count))
}

func (a *Archiver) exportEmojis(ctx context.Context, runDir string) {
	emojis, err := a.client.GetEmojis(a.opts.GuildID, rest.WithCtx(ctx))
	if err != nil {
		slog.Error("archive: error while fetching emojis", tint.Err(err))
		return
	}
	w, err := newJSONLWriter(filepath.Join(runDir, "emojis.jsonl"), false)
	if err != nil {
		slog.Error("archive: error while opening emojis file", tint.Err(err))
		return
	}
	defer w.Close()
	for _, e := range emojis {
		if err := w.Write(NewEmojiRecord(e)); err != nil {
			slog.Error("archive: error while writing an emoji", slog.Any("emoji.id", e.ID), tint.Err(err))
			return
		}
	}
	slog.Info("archive: exported emojis", slog.Int("count", len(emojis)))
}

func (a *Archiver) exportStickers(ctx context.Context, runDir string, dl *downloader) {
	stickers, err := a.client.GetStickers(a.opts.GuildID, rest.WithCtx(ctx))
	if err != nil {
		slog.Error("archive: error while fetching stickers", tint.Err(err))
		return
	}
	w, err := newJSONLWriter(filepath.Join(runDir, "stickers.jsonl"), false)
	if err != nil {
		slog.Error("archive: error while opening stickers file", tint.Err(err))
		return
	}
	defer w.Close()
	for _, s := range stickers {
		rec := NewGuildStickerRecord(s)
		rec.SavedAs = StickerFileName(s.ID, 0, s.FormatType)
		dl.Schedule(rec.URL, rec.SavedAs)
		if err := w.Write(rec); err != nil {
			slog.Error("archive: error while writing a sticker", slog.Any("sticker.id", s.ID), tint.Err(err))
			return
		}
	}
	slog.Info("archive: exported stickers", slog.Int("count", len(stickers)))
}

func (a *Archiver) exportScheduledEvents(ctx context.Context, runDir string) {
	events, err := a.client.GetGuildScheduledEvents(a.opts.GuildID, true, rest.WithCtx(ctx))
	if err != nil {
		slog.Error("archive: error while fetching scheduled events", tint.Err(err))
		return
	}
	if len(events) == 0 {
		return
	}
	dir := filepath.Join(runDir, eventsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("archive: error while creating the events directory", tint.Err(err))
		return
	}
	for _, ev := range events {
		path := filepath.Join(dir, fmt.Sprintf("event_%s.json", ev.ID))
		if err := writeJSONFile(path, NewScheduledEventRecord(ev)); err != nil {
			slog.Error("archive: error while writing a scheduled event", slog.Any("event.id", ev.ID), tint.Err(err))
		}
	}
	slog.Info("archive: exported scheduled events", slog.Int("count", len(events)))
}

// canRead reports whether the bot may view the channel and read its history.
// Without a gateway-fed cache there is nothing to check against, so the API
// gets the final word.
func (a *Archiver) canRead(ch discord.GuildChannel) bool {
	if a.caches == nil {
		return true
	}
	self, ok := a.caches.SelfMember(a.opts.GuildID)
	if !ok {
		return true
	}
	perms := a.caches.MemberPermissionsInChannel(ch, self)
	return !perms.Missing(discord.PermissionViewChannel, discord.PermissionReadMessageHistory)
}

// restStatus unwraps the HTTP status of a REST failure, 0 when err carries
// none. The REST layer hands errors out as *rest.Error.
func restStatus(err error) int {
	var restErr *rest.Error
	if errors.As(err, &restErr) && restErr != nil && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}
