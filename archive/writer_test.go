package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLWriterAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	w, err := newJSONLWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]int{"a": 1}))
	require.NoError(t, w.Close())

	// append mode keeps earlier lines on reopen
	w, err = newJSONLWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]int{"b": 2}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"a":1}`, lines[0])
	assert.JSONEq(t, `{"b":2}`, lines[1])
}

func TestJSONLWriterTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.jsonl")

	w, err := newJSONLWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write("old"))
	require.NoError(t, w.Close())

	w, err = newJSONLWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write("new"))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"new\"\n", string(raw))
}

func TestJSONLWriterFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := newJSONLWriter(path, true)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write("line"))
	require.NoError(t, w.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"line\"\n", string(raw))
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guild.json")
	require.NoError(t, writeJSONFile(path, map[string]string{"name": "test"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"test"}`, string(raw))
	assert.True(t, strings.HasSuffix(string(raw), "\n"))
}
