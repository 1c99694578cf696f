// Package newznab implements the Newznab indexer API: synchronous search
// and the latest-releases (RSS) endpoint. All traffic dispatches through
// the HTTP gateway under the indexer's provider key.
package newznab

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/store"
)

// SearchResult is a single release returned by an indexer.
type SearchResult struct {
	GUID        string
	Title       string
	Size        int64
	PubDate     time.Time
	DownloadURL string
	Categories  []int
}

// ProtocolError indicates a malformed response body from the indexer.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed indexer response: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Options bounds a search or RSS request.
type Options struct {
	Type       string // search function: search, tvsearch, movie, music, book
	Categories []int
	Limit      int
}

// Client queries Newznab-compatible indexers.
type Client struct {
	gw     *gateway.Gateway
	logger zerolog.Logger
}

// New creates a Newznab client over the shared gateway.
func New(gw *gateway.Gateway, logger zerolog.Logger) *Client {
	return &Client{
		gw:     gw,
		logger: logger.With().Str("component", "newznab").Logger(),
	}
}

// ProviderKey returns the gateway provider key for an indexer.
func ProviderKey(indexerID int64) string {
	return "indexer:" + strconv.FormatInt(indexerID, 10)
}

// Search queries the indexer for releases matching a query string.
func (c *Client) Search(ctx context.Context, ix *store.Indexer, query string, opts Options) ([]SearchResult, error) {
	return c.fetch(ctx, ix, query, opts)
}

// RSS fetches the indexer's latest releases (an empty-query search).
func (c *Client) RSS(ctx context.Context, ix *store.Indexer, opts Options) ([]SearchResult, error) {
	return c.fetch(ctx, ix, "", opts)
}

func (c *Client) fetch(ctx context.Context, ix *store.Indexer, query string, opts Options) ([]SearchResult, error) {
	reqURL, err := url.Parse(strings.TrimSuffix(ix.BaseURL, "/") + "/api")
	if err != nil {
		return nil, fmt.Errorf("invalid indexer base URL: %w", err)
	}

	searchType := opts.Type
	if searchType == "" {
		searchType = "search"
	}

	params := url.Values{}
	params.Set("t", searchType)
	params.Set("apikey", ix.APIKey)
	if query != "" {
		params.Set("q", query)
	}
	if len(opts.Categories) > 0 {
		cats := make([]string, len(opts.Categories))
		for i, cat := range opts.Categories {
			cats[i] = strconv.Itoa(cat)
		}
		params.Set("cat", strings.Join(cats, ","))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequest(http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.gw.Fetch(ctx, ProviderKey(ix.ID), req)
	if err != nil {
		return nil, err
	}

	var rss rssResponse
	if err := xml.Unmarshal(resp.Body, &rss); err != nil {
		return nil, &ProtocolError{Err: err}
	}

	results := make([]SearchResult, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		results = append(results, item.toResult())
	}

	c.logger.Debug().
		Str("indexer", ix.Name).
		Str("type", searchType).
		Str("query", query).
		Int("results", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("indexer query complete")

	return results, nil
}

// Newznab RSS response structures.
type rssResponse struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string        `xml:"title"`
	GUID      string        `xml:"guid"`
	Link      string        `xml:"link"`
	Size      int64         `xml:"size"`
	PubDate   string        `xml:"pubDate"`
	Enclosure rssEnclosure  `xml:"enclosure"`
	Attrs     []newznabAttr `xml:"http://www.newznab.com/DTD/2010/feeds/attributes/ attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

type newznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (item *rssItem) toResult() SearchResult {
	r := SearchResult{
		Title:       item.Title,
		GUID:        item.GUID,
		DownloadURL: item.Link,
	}

	if item.Enclosure.Length > 0 {
		r.Size = item.Enclosure.Length
	} else if item.Size > 0 {
		r.Size = item.Size
	}

	if r.DownloadURL == "" && item.Enclosure.URL != "" {
		r.DownloadURL = item.Enclosure.URL
	}

	if item.PubDate != "" {
		for _, format := range []string{
			time.RFC1123Z,
			"Mon, 02 Jan 2006 15:04:05 -0700",
			"Mon, 02 Jan 2006 15:04:05 MST",
			time.RFC1123,
		} {
			if t, err := time.Parse(format, item.PubDate); err == nil {
				r.PubDate = t
				break
			}
		}
	}

	for _, attr := range item.Attrs {
		switch attr.Name {
		case "size":
			if r.Size == 0 {
				r.Size, _ = strconv.ParseInt(attr.Value, 10, 64)
			}
		case "category":
			if n, err := strconv.Atoi(attr.Value); err == nil {
				r.Categories = append(r.Categories, n)
			}
		}
	}

	return r
}
