package wiki

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// ParsedPage is a page rendered to HTML by the API.
type ParsedPage struct {
	Title     string
	PageID    int64
	HTML      string
	Templates []string
}

type parseResponse struct {
	Error *apiError `json:"error"`
	Parse *struct {
		Title  string `json:"title"`
		PageID int64  `json:"pageid"`
		Text   struct {
			Content string `json:"*"`
		} `json:"text"`
		Templates []struct {
			NS    int    `json:"ns"`
			Title string `json:"*"`
		} `json:"templates"`
	} `json:"parse"`
}

// ParsedPage renders title to HTML and lists the templates it transcludes,
// without their "Template:" prefix.
func (c *Client) ParsedPage(ctx context.Context, title string) (*ParsedPage, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "text|templates")
	params.Set("redirects", "1")

	body, err := c.get(ctx, params)
	if err != nil {
		if strings.Contains(err.Error(), "missingtitle") {
			return nil, eris.Wrapf(ErrMissingPage, "%q", title)
		}
		return nil, err
	}

	var resp parseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(ErrBadEnvelope, err.Error())
	}
	if resp.Parse == nil {
		return nil, eris.Wrapf(ErrBadEnvelope, "no parse object for %q", title)
	}

	page := &ParsedPage{
		Title:  resp.Parse.Title,
		PageID: resp.Parse.PageID,
		HTML:   resp.Parse.Text.Content,
	}
	for _, t := range resp.Parse.Templates {
		if t.NS != 10 {
			continue
		}
		page.Templates = append(page.Templates, strings.TrimPrefix(t.Title, "Template:"))
	}
	return page, nil
}
