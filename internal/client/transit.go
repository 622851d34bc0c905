package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/models"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// Feed encodings understood by TransitFeedClient.
const (
	FeedFormatJSON     = "json"
	FeedFormatProtobuf = "protobuf"
)

// FeedFetcher returns the current service-alerts feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context) (*models.FeedMessage, error)
}

// TransitFeedClient reads a GTFS-realtime service-alerts feed over HTTP.
type TransitFeedClient struct {
	get    getter
	url    string
	format string
}

// NewTransitFeedClient returns a client for url. format is "json" (default) or "protobuf".
func NewTransitFeedClient(url, format string, timeout time.Duration) (*TransitFeedClient, error) {
	if url == "" {
		return nil, fmt.Errorf("transit feed url is required")
	}
	switch format {
	case "":
		format = FeedFormatJSON
	case FeedFormatJSON, FeedFormatProtobuf:
	default:
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}

	accept := "application/json"
	if format == FeedFormatProtobuf {
		accept = "application/x-protobuf"
	}
	return &TransitFeedClient{
		get:    newGetter(observability.UpstreamTransit, timeout, http.Header{"Accept": {accept}}),
		url:    url,
		format: format,
	}, nil
}

func (c *TransitFeedClient) FetchFeed(ctx context.Context) (*models.FeedMessage, error) {
	body, err := c.get.get(ctx, c.url)
	if err != nil {
		return nil, err
	}
	if c.format == FeedFormatProtobuf {
		return DecodeProtobufFeed(body)
	}
	return DecodeJSONFeed(body)
}

// DecodeJSONFeed parses the JSON rendition of a FeedMessage. Unknown fields are ignored.
func DecodeJSONFeed(body []byte) (*models.FeedMessage, error) {
	var feed models.FeedMessage
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: feed: %v", ErrMalformedPayload, err)
	}
	return &feed, nil
}
