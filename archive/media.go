package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

// downloader fetches attachment and sticker files into the media directory
// of a run. Downloads are scheduled during the channel crawl and run on a
// bounded group so a media-heavy channel cannot exhaust sockets. A failed
// download is logged and skipped; it never fails the crawl.
type downloader struct {
	client   *http.Client
	dir      string
	disabled bool

	group *errgroup.Group
	ctx   context.Context
}

func newDownloader(ctx context.Context, client *http.Client, dir string, concurrency int, disabled bool) *downloader {
	if concurrency < 1 {
		concurrency = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	return &downloader{
		client:   client,
		dir:      dir,
		disabled: disabled,
		group:    group,
		ctx:      ctx,
	}
}

// Schedule queues url to be stored under name in the media directory.
// Already present files are kept, which makes resumed runs cheap.
func (d *downloader) Schedule(url string, name string) {
	if d.disabled {
		return
	}
	d.group.Go(func() error {
		if err := d.fetch(url, name); err != nil {
			slog.Warn("archive: media download failed",
				slog.String("media.url", url),
				slog.String("media.name", name),
				tint.Err(err))
		}
		return nil
	})
}

func (d *downloader) fetch(url string, name string) error {
	path := filepath.Join(d.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	rs, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer rs.Body.Close()
	if rs.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", rs.StatusCode)
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rs.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Wait blocks until every scheduled download has finished.
func (d *downloader) Wait() {
	_ = d.group.Wait() // individual failures are already logged
}
