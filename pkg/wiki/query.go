package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Page is one result of a revisions query.
type Page struct {
	Title          string
	PageID         int64
	Wikitext       string
	Timestamp      string
	Missing        bool
	Invalid        bool
	NormalizedFrom string
}

// ImageInfo is one result of an imageinfo query.
type ImageInfo struct {
	Title          string
	PageID         int64
	URL            string
	Sha1           string
	Timestamp      string
	Missing        bool
	NormalizedFrom string
}

// Normalization records the API canonicalizing a requested title.
type Normalization struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type rawPage struct {
	PageID    int64            `json:"pageid"`
	Title     string           `json:"title"`
	Missing   *json.RawMessage `json:"missing"`
	Invalid   *json.RawMessage `json:"invalid"`
	Revisions []struct {
		Timestamp string `json:"timestamp"`
		Slots     struct {
			Main struct {
				Content string `json:"*"`
			} `json:"main"`
		} `json:"slots"`
	} `json:"revisions"`
	ImageInfo []struct {
		URL       string `json:"url"`
		Sha1      string `json:"sha1"`
		Timestamp string `json:"timestamp"`
	} `json:"imageinfo"`

	normalizedFrom string
}

// orderedPages decodes the query.pages object keeping the response order.
type orderedPages []rawPage

func (p *orderedPages) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		// formatversion=2 returns an array
		var list []rawPage
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*p = list
		return nil
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var page rawPage
		if err := dec.Decode(&page); err != nil {
			return err
		}
		*p = append(*p, page)
	}
	_, err = dec.Token()
	return err
}

type queryResponse struct {
	Query *struct {
		Normalized []Normalization `json:"normalized"`
		Pages      orderedPages    `json:"pages"`
	} `json:"query"`
}

// query fetches one batch of titles and returns the pages in response order.
func (c *Client) query(ctx context.Context, titles []string, params url.Values, logNormalized bool) ([]rawPage, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("action", "query")
	q.Set("titles", strings.Join(titles, "|"))

	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(ErrBadEnvelope, err.Error())
	}
	if resp.Query == nil {
		return nil, eris.Wrapf(ErrBadEnvelope, "no query object for %d titles", len(titles))
	}

	normalized := make(map[string]string, len(resp.Query.Normalized))
	for _, n := range resp.Query.Normalized {
		normalized[n.To] = n.From
	}
	if len(resp.Query.Normalized) > 0 && logNormalized {
		c.logger.Info("wiki: titles normalized", zap.Any("normalized", resp.Query.Normalized))
	}

	pages := []rawPage(resp.Query.Pages)
	for i := range pages {
		pages[i].normalizedFrom = normalized[pages[i].Title]
	}
	return pages, nil
}

// Pages returns a lazy stream of revision results, one per title.
func (c *Client) Pages(titles []string) *Stream[Page] {
	params := url.Values{}
	params.Set("prop", "revisions")
	params.Set("rvprop", "content|timestamp")
	params.Set("rvslots", "main")
	return newStream(c, titles, params, c.logTitles, toPage)
}

// ImageInfo returns a lazy stream of image metadata results, one per file title.
func (c *Client) ImageInfo(files []string) *Stream[ImageInfo] {
	params := url.Values{}
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url|sha1|timestamp")
	return newStream(c, files, params, c.logImages, toImageInfo)
}

// Page fetches a single title.
func (c *Client) Page(ctx context.Context, title string) (Page, error) {
	s := c.Pages([]string{title})
	if !s.Next(ctx) {
		if s.Err() != nil {
			return Page{}, s.Err()
		}
		return Page{Title: title, Missing: true}, nil
	}
	return s.Value(), nil
}

func toPage(r rawPage) Page {
	p := Page{
		Title:          r.Title,
		PageID:         r.PageID,
		Missing:        r.Missing != nil,
		Invalid:        r.Invalid != nil,
		NormalizedFrom: r.normalizedFrom,
	}
	if p.Missing || p.Invalid {
		p.PageID = 0
		return p
	}
	if len(r.Revisions) > 0 {
		p.Wikitext = r.Revisions[0].Slots.Main.Content
		p.Timestamp = r.Revisions[0].Timestamp
	}
	return p
}

func toImageInfo(r rawPage) ImageInfo {
	info := ImageInfo{
		Title:          r.Title,
		PageID:         r.PageID,
		NormalizedFrom: r.normalizedFrom,
	}
	if len(r.ImageInfo) == 0 {
		info.Missing = true
		return info
	}
	info.URL = r.ImageInfo[0].URL
	info.Sha1 = r.ImageInfo[0].Sha1
	info.Timestamp = r.ImageInfo[0].Timestamp
	return info
}
