package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type parseResult struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// redlinkSuffix is appended by MediaWiki to the title attribute of links to
// pages that do not exist.
const redlinkSuffix = " (page does not exist)"

// linkedPagesHTML renders title with action=parse and collects the targets of
// wiki links whose title starts with "<namespaceName>:", in document order.
func (c *Client) linkedPagesHTML(ctx context.Context, title, namespaceName string) ([]string, error) {
	params := url.Values{
		"action":             {"parse"},
		"page":               {title},
		"prop":               {"text"},
		"disablelimitreport": {"1"},
		"disableeditsection": {"1"},
	}
	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", title, err)
	}
	if resp.Parse == nil {
		return nil, fmt.Errorf("parse %q: empty parse result", title)
	}
	return ExtractLinks(resp.Parse.Text, namespaceName)
}

// ExtractLinks returns the distinct wiki link targets in rendered page HTML
// that belong to the namespace called namespaceName. Red links are included,
// external and in-page anchors are not.
func ExtractLinks(pageHTML, namespaceName string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	prefix := namespaceName + ":"
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href][title]").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("external") || s.HasClass("extiw") {
			return
		}
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "#") {
			return
		}
		target, _ := s.Attr("title")
		target = strings.TrimSuffix(target, redlinkSuffix)
		if !strings.HasPrefix(target, prefix) {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		links = append(links, target)
	})

	return links, nil
}
