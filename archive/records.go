package archive

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/lmittmann/tint"

	"guild-archive/util"
)

// The record types are the on-disk shape of the archive. They deliberately
// flatten the library's object model into plain JSON so a reader of the
// export never needs the client library to make sense of it. Embeds,
// components, polls and interaction metadata pass through as the library's
// own JSON since their shape is an open set.

type MessageRecord struct {
	ID              snowflake.ID       `json:"id"`
	Author          AuthorRecord       `json:"author"`
	Content         string             `json:"content"`
	Timestamp       time.Time          `json:"timestamp"`
	EditedTimestamp *time.Time         `json:"edited_timestamp"`
	Type            int                `json:"type"`
	JumpURL         string             `json:"jump_url"`
	Pinned          bool               `json:"pinned"`
	TTS             bool               `json:"tts"`
	MentionEveryone bool               `json:"mention_everyone"`
	Flags           int                `json:"flags"`
	WebhookID       *snowflake.ID      `json:"webhook_id"`
	Reference       *ReferenceRecord   `json:"reference"`
	Reactions       []ReactionRecord   `json:"reactions"`
	Attachments     []AttachmentRecord `json:"attachments"`
	Stickers        []StickerRecord    `json:"stickers"`
	Embeds          json.RawMessage    `json:"embeds,omitempty"`
	Components      json.RawMessage    `json:"components,omitempty"`
	Poll            json.RawMessage    `json:"poll,omitempty"`
	Interaction     json.RawMessage    `json:"interaction_metadata,omitempty"`
	ThreadStarted   *snowflake.ID      `json:"thread_started"`
}

type AuthorRecord struct {
	ID         snowflake.ID `json:"id"`
	Username   string       `json:"username"`
	GlobalName *string      `json:"global_name"`
	Bot        bool         `json:"is_bot"`
}

type ReferenceRecord struct {
	MessageID *snowflake.ID `json:"message_id"`
	ChannelID *snowflake.ID `json:"channel_id"`
	GuildID   *snowflake.ID `json:"guild_id"`
}

type ReactionRecord struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type AttachmentRecord struct {
	ID           snowflake.ID `json:"id"`
	OriginalName string       `json:"original_name"`
	SavedAs      string       `json:"saved_as,omitempty"`
	URL          string       `json:"url"`
	Size         int          `json:"size"`
	ContentType  *string      `json:"content_type"`
}

type StickerRecord struct {
	ID      snowflake.ID `json:"id"`
	Name    string       `json:"name"`
	Format  string       `json:"format"`
	SavedAs string       `json:"saved_as,omitempty"`
	URL     string       `json:"url"`
}

// NewMessageRecord flattens a message. Attachment and sticker records carry
// no SavedAs yet; the channel crawl fills those in once the media files have
// been scheduled for download.
func NewMessageRecord(guildID snowflake.ID, m discord.Message) MessageRecord {
	rec := MessageRecord{
		ID: m.ID,
		Author: AuthorRecord{
			ID:         m.Author.ID,
			Username:   m.Author.Username,
			GlobalName: m.Author.GlobalName,
			Bot:        m.Author.Bot,
		},
		Content:         m.Content,
		Timestamp:       m.CreatedAt,
		EditedTimestamp: m.EditedTimestamp,
		Type:            int(m.Type),
		JumpURL:         jumpURL(guildID, m.ChannelID, m.ID),
		Pinned:          m.Pinned,
		TTS:             m.TTS,
		MentionEveryone: m.MentionEveryone,
		Flags:           int(m.Flags),
		WebhookID:       m.WebhookID,
	}
	if ref := m.MessageReference; ref != nil {
		rec.Reference = &ReferenceRecord{
			MessageID: ref.MessageID,
			ChannelID: ref.ChannelID,
			GuildID:   ref.GuildID,
		}
	}
	for _, r := range m.Reactions {
		rec.Reactions = append(rec.Reactions, ReactionRecord{
			Emoji: renderEmoji(r.Emoji),
			Count: r.Count,
		})
	}
	for _, a := range m.Attachments {
		rec.Attachments = append(rec.Attachments, AttachmentRecord{
			ID:           a.ID,
			OriginalName: a.Filename,
			URL:          a.URL,
			Size:         a.Size,
			ContentType:  a.ContentType,
		})
	}
	for _, s := range m.StickerItems {
		rec.Stickers = append(rec.Stickers, StickerRecord{
			ID:     s.ID,
			Name:   s.Name,
			Format: stickerFormatName(s.FormatType),
			URL:    StickerURL(s.ID, s.FormatType),
		})
	}
	rec.Embeds = rawField("message.embeds", m.ID, m.Embeds)
	rec.Components = rawField("message.components", m.ID, m.Components)
	if m.Poll != nil {
		rec.Poll = rawField("message.poll", m.ID, m.Poll)
	}
	if m.InteractionMetadata != nil {
		rec.Interaction = rawField("message.interaction_metadata", m.ID, m.InteractionMetadata)
	}
	if m.Flags.Has(discord.MessageFlagHasThread) {
		// a message-started thread shares the ID of its root message
		id := m.ID
		rec.ThreadStarted = &id
	}
	return rec
}

func rawField(name string, id snowflake.ID, v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("archive: dropping unmarshalable field",
			slog.String("field.name", name),
			slog.Any("object.id", id),
			tint.Err(err))
		return nil
	}
	if string(raw) == "null" || string(raw) == "[]" {
		return nil
	}
	return raw
}

// renderEmoji renders a reaction emoji as the unicode character itself or,
// for custom emojis, as name:id.
func renderEmoji(e discord.Emoji) string {
	if e.ID == 0 {
		return e.Name
	}
	return fmt.Sprintf("%s:%s", e.Name, e.ID)
}

func jumpURL(guildID snowflake.ID, channelID snowflake.ID, messageID snowflake.ID) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func stickerFormatName(f discord.StickerFormatType) string {
	switch f {
	case discord.StickerFormatTypePNG:
		return "png"
	case discord.StickerFormatTypeAPNG:
		return "apng"
	case discord.StickerFormatTypeLottie:
		return "lottie"
	case discord.StickerFormatTypeGIF:
		return "gif"
	}
	return "unknown"
}

// StickerFormatExt maps a sticker format to the extension of the media file
// we store. Lottie stickers are JSON animation documents.
func StickerFormatExt(f discord.StickerFormatType) string {
	switch f {
	case discord.StickerFormatTypeLottie:
		return "json"
	case discord.StickerFormatTypeGIF:
		return "gif"
	case discord.StickerFormatTypeAPNG:
		return "png" // APNG files are served with a .png name
	default:
		return "png"
	}
}

// StickerURL builds the CDN location of a sticker asset.
func StickerURL(id snowflake.ID, f discord.StickerFormatType) string {
	if f == discord.StickerFormatTypeGIF {
		// GIF stickers live on the media proxy, not the regular CDN
		return fmt.Sprintf("https://media.discordapp.net/stickers/%s.gif", id)
	}
	return fmt.Sprintf("https://cdn.discordapp.com/stickers/%s.%s", id, StickerFormatExt(f))
}

type RoleRecord struct {
	ID          snowflake.ID        `json:"id"`
	Name        string              `json:"name"`
	Color       int                 `json:"color"`
	Hoist       bool                `json:"hoist"`
	Position    int                 `json:"position"`
	Permissions discord.Permissions `json:"permissions"`
	Managed     bool                `json:"managed"`
	Mentionable bool                `json:"mentionable"`
}

func NewRoleRecord(r discord.Role) RoleRecord {
	return RoleRecord{
		ID:          r.ID,
		Name:        r.Name,
		Color:       r.Color,
		Hoist:       r.Hoist,
		Position:    r.Position,
		Permissions: r.Permissions,
		Managed:     r.Managed,
		Mentionable: r.Mentionable,
	}
}

type MemberRecord struct {
	ID           snowflake.ID   `json:"id"`
	Username     string         `json:"username"`
	GlobalName   *string        `json:"global_name"`
	Nick         *string        `json:"nick"`
	Bot          bool           `json:"is_bot"`
	RoleIDs      []snowflake.ID `json:"role_ids"`
	JoinedAt     *time.Time     `json:"joined_at"`
	PremiumSince *time.Time     `json:"premium_since"`
	Pending      bool           `json:"pending"`
}

func NewMemberRecord(m discord.Member) MemberRecord {
	return MemberRecord{
		ID:           m.User.ID,
		Username:     m.User.Username,
		GlobalName:   m.User.GlobalName,
		Nick:         m.Nick,
		Bot:          m.User.Bot,
		RoleIDs:      m.RoleIDs,
		JoinedAt:     &m.JoinedAt,
		PremiumSince: m.PremiumSince,
		Pending:      m.Pending,
	}
}

type EmojiRecord struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Animated bool         `json:"animated"`
	Managed  bool         `json:"managed"`
	URL      string       `json:"url"`
}

func NewEmojiRecord(e discord.Emoji) EmojiRecord {
	ext := "png"
	if e.Animated {
		ext = "gif"
	}
	return EmojiRecord{
		ID:       e.ID,
		Name:     e.Name,
		Animated: e.Animated,
		Managed:  e.Managed,
		URL:      fmt.Sprintf("https://cdn.discordapp.com/emojis/%s.%s", e.ID, ext),
	}
}

type GuildStickerRecord struct {
	ID          snowflake.ID `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Tags        string       `json:"tags"`
	Format      string       `json:"format"`
	URL         string       `json:"url"`
	SavedAs     string       `json:"saved_as,omitempty"`
}

func NewGuildStickerRecord(s discord.Sticker) GuildStickerRecord {
	return GuildStickerRecord{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Tags:        s.Tags,
		Format:      stickerFormatName(s.FormatType),
		URL:         StickerURL(s.ID, s.FormatType),
	}
}

type ScheduledEventRecord struct {
	ID             snowflake.ID    `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	StartTime      time.Time       `json:"scheduled_start_time"`
	EndTime        *time.Time      `json:"scheduled_end_time"`
	Status         int             `json:"status"`
	EntityType     int             `json:"entity_type"`
	PrivacyLevel   int             `json:"privacy_level"`
	ChannelID      *snowflake.ID   `json:"channel_id"`
	CreatorID      snowflake.ID    `json:"creator_id"`
	UserCount      int             `json:"user_count"`
	Location       string          `json:"location,omitempty"`
	Image          *string         `json:"image"`
	RecurrenceRule json.RawMessage `json:"recurrence_rule,omitempty"`
}

func NewScheduledEventRecord(ev discord.GuildScheduledEvent) ScheduledEventRecord {
	rec := ScheduledEventRecord{
		ID:           ev.ID,
		Name:         ev.Name,
		Description:  ev.Description,
		StartTime:    ev.ScheduledStartTime,
		EndTime:      ev.ScheduledEndTime,
		Status:       int(ev.Status),
		EntityType:   int(ev.EntityType),
		PrivacyLevel: int(ev.PrivacyLevel),
		ChannelID:    ev.ChannelID,
		CreatorID:    ev.CreatorID,
		UserCount:    ev.UserCount,
		Image:        ev.Image,
	}
	if meta := ev.EntityMetaData; meta != nil {
		rec.Location = meta.Location
	}
	if ev.RecurrenceRule != nil {
		rec.RecurrenceRule = rawField("event.recurrence_rule", ev.ID, ev.RecurrenceRule)
	}
	return rec
}

type GuildRecord struct {
	ID            snowflake.ID `json:"id"`
	Name          string       `json:"name"`
	Description   *string      `json:"description"`
	OwnerID       snowflake.ID `json:"owner_id"`
	CreatedAt     time.Time    `json:"created_at"`
	MemberCount   int          `json:"approximate_member_count"`
	PresenceCount int          `json:"approximate_presence_count"`
	Features      []string     `json:"features"`
}

func NewGuildRecord(g discord.RestGuild) GuildRecord {
	features := make([]string, 0, len(g.Features))
	for _, f := range g.Features {
		features = append(features, string(f))
	}
	return GuildRecord{
		ID:            g.ID,
		Name:          g.Name,
		Description:   g.Description,
		OwnerID:       g.OwnerID,
		CreatedAt:     g.ID.Time(),
		MemberCount:   g.ApproximateMemberCount,
		PresenceCount: g.ApproximatePresenceCount,
		Features:      features,
	}
}

// AttachmentName builds the stored file name of a downloaded attachment.
func AttachmentName(channelID snowflake.ID, messageID snowflake.ID, seq int, originalName string) string {
	return fmt.Sprintf("attach_%s_%s_%d.%s", channelID, messageID, seq, util.FileExt(originalName))
}

// StickerFileName builds the stored file name of a downloaded sticker.
func StickerFileName(stickerID snowflake.ID, seq int, f discord.StickerFormatType) string {
	return fmt.Sprintf("sticker_%s_%d.%s", stickerID, seq, StickerFormatExt(f))
}
