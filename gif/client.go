package gif

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	gomediacache "github.com/dgduncan/go-media-cache"
)

const (
	// DefaultBaseURL is the Tenor v2 API.
	DefaultBaseURL = "https://tenor.googleapis.com/v2"

	DefaultClientKey   = "gomediacache"
	DefaultMediaFilter = "tinygif"

	pathFeatured = "/featured"
	pathSearch   = "/search"
)

// ClientConfig configures the search provider client.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	ClientKey string

	// Locale and Country are sent with every request, see Locale.
	Locale  string
	Country string

	// MediaFilter selects the rendition whose URL becomes Item.ThumbnailURL.
	MediaFilter string
}

// Client queries the search provider through a gomediacache.Fetcher, so requests
// share its retry and cancellation behaviour.
type Client struct {
	fetcher *gomediacache.Fetcher
	logger  *slog.Logger

	c ClientConfig
}

// Search requests one page. Text that is empty or only whitespace asks for
// featured results.
func (c *Client) Search(ctx context.Context, q Query) (*Page, error) {
	path := pathFeatured
	params := url.Values{}
	if strings.TrimSpace(q.Text) != "" {
		path = pathSearch
		params.Set("q", q.Text)
	}
	if q.Pos != "" {
		params.Set("pos", q.Pos)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if c.c.Locale != "" {
		params.Set("locale", c.c.Locale)
	}
	if c.c.Country != "" {
		params.Set("country", c.c.Country)
	}
	params.Set("media_filter", c.c.MediaFilter)
	params.Set("client_key", c.c.ClientKey)
	params.Set("key", c.c.APIKey)

	u := c.c.BaseURL + path + "?" + params.Encode()
	c.logger.DebugContext(ctx, "searching", "path", path, "query", q.Text, "pos", q.Pos, "limit", q.Limit)

	resp, err := c.fetcher.Fetch(ctx, u)
	if err != nil {
		var fe *gomediacache.FetchError
		if errors.As(err, &fe) && gjson.ValidBytes(fe.Body) {
			if msg := gjson.GetBytes(fe.Body, "error.message"); msg.Exists() {
				return nil, &APIError{StatusCode: fe.StatusCode, Message: msg.String()}
			}
		}
		return nil, err
	}

	return decodePage(resp.Body, c.c.MediaFilter)
}

// decodePage maps a response body onto a Page, rejecting anything that does not
// have the expected shape.
func decodePage(body []byte, filter string) (*Page, error) {
	const source = "search response"

	if !gjson.ValidBytes(body) {
		return nil, &gomediacache.DecodeError{Source: source, Reason: "invalid json"}
	}
	root := gjson.ParseBytes(body)

	if e := root.Get("error"); e.Exists() {
		return nil, &APIError{Message: e.Get("message").String()}
	}

	results := root.Get("results")
	if !results.IsArray() {
		return nil, &gomediacache.DecodeError{Source: source, Reason: "results is not an array"}
	}

	page := &Page{}
	for i, r := range results.Array() {
		if !r.IsObject() {
			return nil, &gomediacache.DecodeError{Source: source, Reason: fmt.Sprintf("result %d is not an object", i)}
		}

		id := r.Get("id")
		if id.Type != gjson.String || id.String() == "" {
			return nil, &gomediacache.DecodeError{Source: source, Reason: fmt.Sprintf("result %d has no id", i)}
		}

		thumb := r.Get("media_formats." + gjson.Escape(filter) + ".url")
		if thumb.Type != gjson.String || thumb.String() == "" {
			return nil, &gomediacache.DecodeError{Source: source, Reason: fmt.Sprintf("result %d has no %s url", i, filter)}
		}

		page.Items = append(page.Items, Item{
			ExternalID:   id.String(),
			ThumbnailURL: thumb.String(),
			Description:  r.Get("content_description").String(),
		})
	}

	next := root.Get("next")
	if next.Exists() && next.Type != gjson.String && next.Type != gjson.Null {
		return nil, &gomediacache.DecodeError{Source: source, Reason: "next is not a string"}
	}
	page.Next = next.String()

	return page, nil
}

// NewClient creates a Client.
//
// Empty BaseURL, ClientKey and MediaFilter fall back to their defaults. If the
// 'logger' is nil, a no-op logger writing to io.Discard will be used.
func NewClient(fetcher *gomediacache.Fetcher, opts ClientConfig, logger *slog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if fetcher == nil {
		fetcher = gomediacache.NewFetcher(nil, nil, logger, nil)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.ClientKey == "" {
		opts.ClientKey = DefaultClientKey
	}
	if opts.MediaFilter == "" {
		opts.MediaFilter = DefaultMediaFilter
	}

	return &Client{fetcher: fetcher, logger: logger, c: opts}, nil
}
