package store

import (
	"path/filepath"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	channelID := snowflake.ID(123456789)

	_, found, err := s.Checkpoint("run-a", channelID)
	require.NoError(t, err)
	assert.False(t, found)

	want := Checkpoint{
		LastMessageID: snowflake.ID(987654321),
		Messages:      4200,
		Media:         17,
	}
	require.NoError(t, s.SetCheckpoint("run-a", channelID, want))

	got, found, err := s.Checkpoint("run-a", channelID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestCheckpointOverwrite(t *testing.T) {
	s := openTestStore(t)
	channelID := snowflake.ID(1)

	require.NoError(t, s.SetCheckpoint("run-a", channelID, Checkpoint{Messages: 100}))
	require.NoError(t, s.SetCheckpoint("run-a", channelID, Checkpoint{Messages: 200, Done: true}))

	got, found, err := s.Checkpoint("run-a", channelID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(200), got.Messages)
	assert.True(t, got.Done)
}

func TestCheckpointIsolatedPerRun(t *testing.T) {
	s := openTestStore(t)
	channelID := snowflake.ID(1)

	require.NoError(t, s.SetCheckpoint("run-a", channelID, Checkpoint{Done: true}))

	_, found, err := s.Checkpoint("run-b", channelID)
	require.NoError(t, err)
	assert.False(t, found)
}
