package handlers

import (
	"errors"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarySender struct {
	followupErr error
	messageErr  error

	followups []discord.MessageCreate
	channels  []snowflake.ID
	messages  []discord.MessageCreate
}

func (f *fakeSummarySender) CreateFollowupMessage(applicationID snowflake.ID, interactionToken string, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error) {
	if f.followupErr != nil {
		return nil, f.followupErr
	}
	f.followups = append(f.followups, messageCreate)
	return &discord.Message{}, nil
}

func (f *fakeSummarySender) CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error) {
	if f.messageErr != nil {
		return nil, f.messageErr
	}
	f.channels = append(f.channels, channelID)
	f.messages = append(f.messages, messageCreate)
	return &discord.Message{}, nil
}

var _ summarySender = (*fakeSummarySender)(nil)

func TestDeliverSummaryFollowup(t *testing.T) {
	fake := &fakeSummarySender{}
	deliverSummary(fake, snowflake.ID(1), "token", snowflake.ID(10), "Archive run finished.")

	require.Len(t, fake.followups, 1)
	assert.Equal(t, "Archive run finished.", fake.followups[0].Content)
	assert.Empty(t, fake.messages)
}

func TestDeliverSummaryFallsBackToChannel(t *testing.T) {
	// long runs outlive the interaction token; the summary still has to land
	fake := &fakeSummarySender{followupErr: errors.New("Unknown Webhook")}
	deliverSummary(fake, snowflake.ID(1), "token", snowflake.ID(10), "Archive run finished.")

	assert.Empty(t, fake.followups)
	require.Len(t, fake.messages, 1)
	assert.Equal(t, []snowflake.ID{snowflake.ID(10)}, fake.channels)
	assert.Equal(t, "Archive run finished.", fake.messages[0].Content)
}
