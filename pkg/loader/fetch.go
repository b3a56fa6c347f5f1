package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// Fetcher retrieves the raw bytes of one extract
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// TableQuerier reads an extract staged as a warehouse table
type TableQuerier interface {
	FetchTable(ctx context.Context, ref string) (*model.Table, error)
}

const warehouseScheme = "snowflake://"

type locationKind int

const (
	kindFile locationKind = iota
	kindHTTP
	kindWarehouse
)

func (k locationKind) String() string {
	switch k {
	case kindHTTP:
		return "http"
	case kindWarehouse:
		return "warehouse"
	default:
		return "file"
	}
}

func classify(location string) locationKind {
	lower := strings.ToLower(strings.TrimSpace(location))
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return kindHTTP
	case strings.HasPrefix(lower, warehouseScheme):
		return kindWarehouse
	default:
		return kindFile
	}
}

// NeedsWarehouse reports whether any source is a snowflake:// reference
func NeedsWarehouse(sources []Source) bool {
	for _, src := range sources {
		if classify(src.Location) == kindWarehouse {
			return true
		}
	}
	return false
}

// FileFetcher reads extracts from the local filesystem
type FileFetcher struct{}

// Fetch reads the file at location, accepting an optional file:// prefix
func (FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(strings.TrimSpace(location), "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// HTTPFetcher downloads extracts over HTTP(S)
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads location; any non-2xx status is an error
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(location), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", location, err)
	}
	req.Header.Set("Accept", "text/csv, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to download %s: unexpected status %s", location, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", location, err)
	}
	return data, nil
}
