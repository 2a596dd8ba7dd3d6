package source

// fetch.go retrieves a dataset from a locator, which may be a local path, a file:// URL
// or an http(s) URL. Google Drive share links are rewritten to their direct download
// form. The content may be CSV or an xlsx workbook.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

// defaultTimeout bounds a remote fetch when no timeout is configured.
const defaultTimeout = 60 * time.Second

// driveDownloadURL is the direct download endpoint for Google Drive files.
const driveDownloadURL = "https://drive.google.com/uc"

// driveFileRegexp matches share links such as
//
//	https://drive.google.com/file/d/1z7vO3Lx91Z9XwIey9taSAOXO6z1IwPmH/view?usp=sharing
var driveFileRegexp = regexp.MustCompile(`^https://drive\.google\.com/file/d/([A-Za-z0-9_-]+)(?:/|$)`)

// driveQuery is encoded into the Google Drive download query string.
type driveQuery struct {
	ID     string `url:"id"`
	Export string `url:"export"`
}

// ErrLocalSource is returned by a remote only Fetcher for locators that are not
// http(s) urls.
var ErrLocalSource = errors.New("only http and https csv urls are accepted")

// Fetcher retrieves and parses CSV and xlsx datasets.
type Fetcher struct {
	httpClient *http.Client
	log        *slog.Logger
	remoteOnly bool
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithRemoteOnly restricts the Fetcher to http(s) locators.
func WithRemoteOnly() FetcherOption {
	return func(f *Fetcher) {
		f.remoteOnly = true
	}
}

// NewFetcher creates a Fetcher. If httpClient is nil a client with a default timeout is
// used. If logger is nil slog.Default is used.
func NewFetcher(httpClient *http.Client, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		httpClient: httpClient,
		log:        logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsRemote reports whether locator is an http(s) url with a host.
func IsRemote(locator string) bool {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch retrieves the dataset at locator and parses it.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (*Dataset, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("no csv locator provided")
	}

	rc, err := f.open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	ds, err := ParseAny(rc)
	if err != nil {
		return nil, fmt.Errorf("could not parse %q: %w", locator, err)
	}
	f.log.Debug("dataset fetched", "locator", locator, "columns", len(ds.Header), "rows", ds.Len())
	return ds, nil
}

// open returns a reader for the locator.
func (f *Fetcher) open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if f.remoteOnly && !IsRemote(locator) {
		return nil, ErrLocalSource
	}
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 { // windows drive letters
		return openFile(locator)
	}
	switch u.Scheme {
	case "file":
		return openFile(u.Path)
	case "http", "https":
		return f.get(ctx, locator)
	default:
		return nil, fmt.Errorf("unsupported csv locator scheme %q", u.Scheme)
	}
}

// openFile opens a local csv file.
func openFile(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open csv file: %w", err)
	}
	return fh, nil
}

// get performs an http GET request for the locator, returning the body on a 200
// response.
func (f *Fetcher) get(ctx context.Context, locator string) (io.ReadCloser, error) {
	requestURL, err := DownloadURL(locator)
	if err != nil {
		return nil, err
	}
	f.log.Debug("fetching remote csv", "url", requestURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create csv request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, */*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("csv request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("csv request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// DownloadURL rewrites Google Drive share links to the direct download url. Other
// urls are returned unchanged.
func DownloadURL(locator string) (string, error) {
	m := driveFileRegexp.FindStringSubmatch(locator)
	if m == nil {
		return locator, nil
	}
	v, err := query.Values(driveQuery{ID: m[1], Export: "download"})
	if err != nil {
		return "", fmt.Errorf("could not encode drive query: %w", err)
	}
	return driveDownloadURL + "?" + v.Encode(), nil
}
