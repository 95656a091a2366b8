package rss

import (
	"context"
	"errors"
	"fmt"
)

// ErrCantGetFeed is returned when the feed document could not be downloaded.
var ErrCantGetFeed = errors.New("cannot get feed from url")

// Fetcher downloads a document. *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Load fetches url and parses it as a feed.
// Transport failures wrap ErrCantGetFeed, bad documents wrap ErrParse.
func Load(ctx context.Context, f Fetcher, url string) (*Document, error) {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantGetFeed, err)
	}
	return Parse(data)
}
