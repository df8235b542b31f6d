package fetcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wikitools/delsort/internal/types"
)

type queryResult struct {
	Pages  []apiPage `json:"pages"`
	Search []struct {
		Title string `json:"title"`
	} `json:"search"`
	Tokens struct {
		LoginToken string `json:"logintoken"`
	} `json:"tokens"`
}

type apiPage struct {
	Title            string        `json:"title"`
	Missing          bool          `json:"missing"`
	Invalid          bool          `json:"invalid"`
	Revisions        []apiRevision `json:"revisions"`
	DeletedRevisions []apiRevision `json:"deletedrevisions"`
	Links            []struct {
		Title string `json:"title"`
	} `json:"links"`
}

type apiRevision struct {
	Slots struct {
		Main struct {
			Content     string `json:"content"`
			TextHidden  bool   `json:"texthidden"`
			TextMissing bool   `json:"textmissing"`
		} `json:"main"`
	} `json:"slots"`
}

// content returns the main-slot text, or false when it is hidden or missing.
func (r apiRevision) content() (string, bool) {
	main := r.Slots.Main
	if main.TextHidden || main.TextMissing {
		return "", false
	}
	return main.Content, true
}

// queryAll runs a query and follows continuation until fn returns false or
// the API reports no more results.
func (c *Client) queryAll(ctx context.Context, params url.Values, fn func(*queryResult) bool) error {
	for {
		resp, err := c.get(ctx, params)
		if err != nil {
			return err
		}
		if resp.Query != nil && !fn(resp.Query) {
			return nil
		}
		cont := resp.continueParams()
		if cont == nil {
			return nil
		}
		for k, v := range cont {
			params.Set(k, v)
		}
	}
}

// Search lazily yields the titles of pages matching query. Results are
// fetched page by page as the caller ranges over the sequence.
func (c *Client) Search(ctx context.Context, query string, namespace int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params := url.Values{
			"action":      {"query"},
			"list":        {"search"},
			"srsearch":    {query},
			"srnamespace": {strconv.Itoa(namespace)},
			"srlimit":     {"max"},
			"srprop":      {""},
		}
		err := c.queryAll(ctx, params, func(q *queryResult) bool {
			for _, hit := range q.Search {
				if !yield(hit.Title, nil) {
					return false
				}
			}
			return true
		})
		if err != nil {
			yield("", fmt.Errorf("search %q: %w", query, err))
		}
	}
}

// PageText returns the current text of a page. The returned title is the
// wiki's canonical form of title.
func (c *Client) PageText(ctx context.Context, title string) (*types.Page, error) {
	if !ValidTitle(title) {
		return nil, fmt.Errorf("%w: %q is not a valid title", types.ErrPageNotFound, title)
	}
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"rvprop":  {"content"},
		"rvslots": {"main"},
		"titles":  {title},
	}
	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", title, err)
	}

	page, ok := onlyPage(resp)
	if !ok || page.Missing || page.Invalid || len(page.Revisions) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrPageNotFound, title)
	}
	text, ok := page.Revisions[0].content()
	if !ok {
		return nil, fmt.Errorf("%w: %s (content hidden)", types.ErrPageNotFound, title)
	}
	return &types.Page{Title: page.Title, Content: text}, nil
}

// DeletedRevision returns the newest deleted revision of a page. Reading
// deleted revisions needs the deletedtext right, so the client usually has to
// be logged in with an administrator's bot password.
func (c *Client) DeletedRevision(ctx context.Context, title string) (*types.Page, error) {
	if !ValidTitle(title) {
		return nil, fmt.Errorf("%w: %q is not a valid title", types.ErrRevisionUnavailable, title)
	}
	params := url.Values{
		"action":   {"query"},
		"prop":     {"deletedrevisions"},
		"drvprop":  {"content"},
		"drvslots": {"main"},
		"drvlimit": {"1"},
		"titles":   {title},
	}
	resp, err := c.get(ctx, params)
	if err != nil {
		var apiErr *types.APIError
		if errors.As(err, &apiErr) && strings.HasSuffix(apiErr.Code, "permissiondenied") {
			return nil, fmt.Errorf("%w: %s: %s", types.ErrRevisionUnavailable, title, apiErr.Info)
		}
		return nil, fmt.Errorf("fetch deleted %q: %w", title, err)
	}

	page, ok := onlyPage(resp)
	if !ok || page.Invalid || len(page.DeletedRevisions) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrRevisionUnavailable, title)
	}
	text, ok := page.DeletedRevisions[0].content()
	if !ok {
		return nil, fmt.Errorf("%w: %s (content hidden)", types.ErrRevisionUnavailable, title)
	}
	return &types.Page{Title: page.Title, Content: text, Deleted: true}, nil
}

// LinkedPages returns the titles page links to in namespace. In "html" links
// mode the rendered page is walked instead, which keeps document order.
func (c *Client) LinkedPages(ctx context.Context, title string, namespace int) ([]string, error) {
	if !ValidTitle(title) {
		return nil, fmt.Errorf("%w: %q is not a valid title", types.ErrPageNotFound, title)
	}
	if c.linksCfg != nil && c.linksCfg.Mode == "html" {
		return c.linkedPagesHTML(ctx, title, c.linksCfg.NamespaceName)
	}

	params := url.Values{
		"action":      {"query"},
		"prop":        {"links"},
		"plnamespace": {strconv.Itoa(namespace)},
		"pllimit":     {"max"},
		"titles":      {title},
	}
	var links []string
	err := c.queryAll(ctx, params, func(q *queryResult) bool {
		for _, p := range q.Pages {
			for _, l := range p.Links {
				links = append(links, l.Title)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("links of %q: %w", title, err)
	}
	return links, nil
}

// onlyPage returns the single page a one-title query resolved to.
func onlyPage(resp *apiResponse) (apiPage, bool) {
	if resp.Query == nil || len(resp.Query.Pages) != 1 {
		return apiPage{}, false
	}
	return resp.Query.Pages[0], true
}

// ValidTitle reports whether title can be sent as a single entry of the
// titles parameter. "|" separates titles there, and the other rejected
// characters are never legal in a MediaWiki page title.
func ValidTitle(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	return !strings.ContainsFunc(title, func(r rune) bool {
		return strings.ContainsRune("#<>[]|{}", r) || r < 0x20 || r == 0x7f || r == utf8.RuneError
	})
}
