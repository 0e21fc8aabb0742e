package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/teslashibe/gazelog/internal/httpc"
)

// HTTPDestination POSTs a gzip-compressed log to an ingest endpoint.
type HTTPDestination struct {
	// URL of the ingest endpoint.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	// Client defaults to httpc.Client.
	Client *http.Client
}

// NewHTTPDestination creates a destination for url.
func NewHTTPDestination(url, token string) *HTTPDestination {
	return &HTTPDestination{URL: url, Token: token}
}

// Name implements Destination.
func (d *HTTPDestination) Name() string {
	return "http"
}

// ingestResponse is what the endpoint may answer with.
type ingestResponse struct {
	Location string `json:"location"`
}

// Upload streams path through a gzip writer into the request body.
func (d *HTTPDestination) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	go func() {
		gz := gzip.NewWriter(pw)
		_, err := io.Copy(gz, f)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	name := filepath.Base(path)
	headers := map[string]string{
		"Content-Encoding": "gzip",
		"X-Session-File":   name,
	}
	if d.Token != "" {
		headers["Authorization"] = "Bearer " + d.Token
	}

	body, err := httpc.PostStream(ctx, d.Client, d.URL, "text/tab-separated-values", pr, headers)
	pr.Close()
	if err != nil {
		return "", err
	}

	var resp ingestResponse
	if len(body) > 0 && json.Unmarshal(body, &resp) == nil && resp.Location != "" {
		return resp.Location, nil
	}
	return d.URL + "/" + name, nil
}
