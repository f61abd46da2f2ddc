package gazette

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DetailPathPrefix is the path every posting detail page lives under.
	DetailPathPrefix = "/iulaan/view/"

	primarySelector  = `a[href^="` + DetailPathPrefix + `"]`
	fallbackSelector = "li a"
)

// ParseListings extracts postings from a listing page. Anchors pointing at a
// detail page are preferred; when none exist, list-item anchors whose href
// mentions the detail path are used instead. Relative links are resolved
// by prefixing origin and the result is de-duplicated by URL in page order.
func ParseListings(body io.Reader, origin string) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	acc := newListingSet(origin)
	doc.Find(primarySelector).Each(func(_ int, s *goquery.Selection) {
		href, title := anchorFields(s)
		if href == "" || title == "" {
			return
		}
		acc.add(title, href)
	})

	if acc.len() == 0 {
		doc.Find(fallbackSelector).Each(func(_ int, s *goquery.Selection) {
			href, title := anchorFields(s)
			if href == "" || title == "" || !strings.Contains(href, DetailPathPrefix) {
				return
			}
			acc.add(title, href)
		})
	}
	return acc.items, nil
}

func anchorFields(s *goquery.Selection) (string, string) {
	href, _ := s.Attr("href")
	return strings.TrimSpace(href), strings.TrimSpace(s.Text())
}

// AbsoluteURL prefixes origin to href unless href already starts with
// "http". The path is kept byte for byte as scraped: the result is the
// post's identity, so it must not be escaped or normalized.
func AbsoluteURL(origin, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimSuffix(origin, "/") + href
}

type listingSet struct {
	origin string
	seen   map[string]struct{}
	items  []Listing
}

func newListingSet(origin string) *listingSet {
	return &listingSet{
		origin: origin,
		seen:   make(map[string]struct{}),
		items:  []Listing{},
	}
}

func (l *listingSet) add(title, href string) {
	abs := AbsoluteURL(l.origin, href)
	if _, dup := l.seen[abs]; dup {
		return
	}
	l.seen[abs] = struct{}{}
	l.items = append(l.items, Listing{Title: title, URL: abs})
}

func (l *listingSet) len() int {
	return len(l.items)
}
