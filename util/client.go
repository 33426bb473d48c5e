package util

import (
	"net/http"
	"time"
)

const (
	mediaTimeout = 2 * time.Minute // large attachments on slow CDN edges take a while

	userAgent = "guild-archive (+https://github.com/guild-archive)"
)

// NewMediaClient returns the http.Client used to download attachments,
// stickers and other media referenced by archived messages.
func NewMediaClient() *http.Client {
	return &http.Client{
		Timeout:   mediaTimeout,
		Transport: &mediaTripper{tripper: http.DefaultTransport},
	}
}

type mediaTripper struct {
	tripper http.RoundTripper
}

func (t *mediaTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	return t.tripper.RoundTrip(req)
}
