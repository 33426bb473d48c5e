package archive

import (
	"bufio"
	"fmt"
	"os"

	"github.com/disgoorg/json"
)

// jsonlWriter appends one JSON document per line to a file. Channel history
// files are opened in append mode so a resumed run continues where the
// previous one stopped; snapshot files (pins) are truncated instead.
type jsonlWriter struct {
	f  *os.File
	bw *bufio.Writer
}

func newJSONLWriter(path string, appendTo bool) (*jsonlWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendTo {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &jsonlWriter{
		f:  f,
		bw: bufio.NewWriterSize(f, 64*1024),
	}, nil
}

func (w *jsonlWriter) Write(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.bw.Write(raw); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// Flush pushes buffered lines to disk; called before a checkpoint is saved
// so the state store never claims lines the file does not have.
func (w *jsonlWriter) Flush() error {
	return w.bw.Flush()
}

func (w *jsonlWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// writeJSONFile writes a single pretty-printed JSON document, used for the
// guild summary and the per-event scheduled event files.
func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
