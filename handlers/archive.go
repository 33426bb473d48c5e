package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/lmittmann/tint"
)

// HandleArchive starts an archive run in the background and reports where
// the export will land. A run already in flight is refused.
func (h *Handler) HandleArchive(event *handler.CommandEvent) error {
	messageBuilder := discord.NewMessageCreateBuilder().SetEphemeral(true)
	member := event.Member()
	if member == nil || !member.Permissions.Has(discord.PermissionManageGuild) {
		return event.CreateMessage(messageBuilder.
			SetContent("The Manage Server permission is required to start an archive run.").
			Build())
	}
	if h.Bot.Archiver.Running() {
		return event.CreateMessage(messageBuilder.
			SetContent("An archive run is already active.").
			Build())
	}

	restClient := event.Client().Rest()
	applicationID := event.ApplicationID()
	token := event.Token()
	channelID := event.ChannelID()
	go func() {
		sum, err := h.Bot.Archiver.Run(context.Background())
		if err != nil {
			slog.Error("archive: command-triggered run failed", tint.Err(err))
			deliverSummary(restClient, applicationID, token, channelID,
				fmt.Sprintf("The archive run failed: %v", err))
			return
		}
		deliverSummary(restClient, applicationID, token, channelID,
			fmt.Sprintf("Archive run finished: %d channels, %d messages in %s.",
				sum.Channels, sum.Messages, sum.Duration.Round(time.Second)))
	}()

	return event.CreateMessage(messageBuilder.
		SetContent("Archive run started. You will get a follow-up when it finishes.").
		Build())
}

type summarySender interface {
	CreateFollowupMessage(applicationID snowflake.ID, interactionToken string, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// deliverSummary reports the outcome of a finished run. The interaction
// token expires 15 minutes after the command while a run can take hours,
// so a failed follow-up falls back to a plain message in the channel the
// command was issued from.
func deliverSummary(client summarySender, applicationID snowflake.ID, token string, channelID snowflake.ID, content string) {
	_, err := client.CreateFollowupMessage(applicationID, token, discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build())
	if err == nil {
		return
	}
	slog.Warn("archive: could not send the run follow-up, posting to the channel instead", tint.Err(err))
	if _, err := client.CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(content).
		Build()); err != nil {
		slog.Error("archive: could not deliver the run summary", slog.Any("channel.id", channelID), tint.Err(err))
	}
}
