// Package pageinfo extracts title, Open Graph metadata and the best favicon from web pages.
package pageinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/skimmer/internal/fetch"
	log "github.com/sirupsen/logrus"
)

// UnknownTitle is used when a page declares no title.
const UnknownTitle = "Unknown Title"

// ErrCantGetPageInfo is wrapped by every Extract failure.
var ErrCantGetPageInfo = errors.New("cannot get page info")

// Getter performs a single HTTP GET.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Info is the metadata derived from one page. Empty strings mean absent.
type Info struct {
	Title       string
	Description string
	ImageURL    string
	FaviconURL  string
}

// Extractor fetches pages and derives their metadata.
type Extractor struct {
	getter   Getter
	favicons bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithoutFavicon skips favicon discovery and its reachability request.
// Info.FaviconURL is always empty.
func WithoutFavicon() Option {
	return func(e *Extractor) { e.favicons = false }
}

// New creates an Extractor backed by getter.
func New(getter Getter, opts ...Option) *Extractor {
	e := &Extractor{getter: getter, favicons: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches pageURL and derives its Info. The favicon is included only if it
// answers with HTTP 200.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Info, error) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrCantGetPageInfo, pageURL)
	}

	resp, err := e.getter.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCantGetPageInfo, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrCantGetPageInfo, pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCantGetPageInfo, pageURL, err)
	}

	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	info := &Info{
		Title:       UnknownTitle,
		Description: metaProperty(doc, "og:description"),
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		info.Title = title
	}
	if image := metaProperty(doc, "og:image"); image != "" {
		info.ImageURL = resolve(origin, image)
	}

	if !e.favicons {
		return info, nil
	}
	if favicon, ok := pickFavicon(findIcons(doc, origin)); ok {
		if e.reachable(ctx, favicon) {
			info.FaviconURL = favicon
		} else {
			log.WithFields(log.Fields{
				"page":    pageURL,
				"favicon": favicon,
			}).Debug("Favicon is not reachable")
		}
	}
	return info, nil
}

func (e *Extractor) reachable(ctx context.Context, rawURL string) bool {
	resp, err := e.getter.Get(ctx, rawURL)
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK
}

func metaProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	return strings.TrimSpace(content)
}

// resolve makes ref absolute against origin. Unparsable refs are returned as-is.
func resolve(origin *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return u.String()
	}
	return origin.ResolveReference(u).String()
}

type icon struct {
	URL  string
	Size int
}

func findIcons(doc *goquery.Document, origin *url.URL) []icon {
	var icons []icon
	doc.Find("link[rel]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !strings.Contains(strings.ToLower(rel), "icon") {
			return
		}
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		sizes, _ := s.Attr("sizes")
		icons = append(icons, icon{URL: resolve(origin, href), Size: parseSizes(sizes)})
	})
	return icons
}

// pickFavicon returns the icon with the largest declared size; the first one wins ties.
func pickFavicon(icons []icon) (string, bool) {
	if len(icons) == 0 {
		return "", false
	}
	best := icons[0]
	for _, ic := range icons[1:] {
		if ic.Size > best.Size {
			best = ic
		}
	}
	return best.URL, true
}

// parseSizes reads a sizes attribute such as "32x32" or "16x16 48x48" and returns
// the largest width*height. Anything unparsable counts as 0.
func parseSizes(attr string) int {
	largest := 0
	for _, token := range strings.Fields(strings.ToLower(attr)) {
		w, h, ok := strings.Cut(token, "x")
		if !ok {
			continue
		}
		width, err := strconv.Atoi(w)
		if err != nil || width < 0 {
			continue
		}
		height, err := strconv.Atoi(h)
		if err != nil || height < 0 {
			continue
		}
		if width*height > largest {
			largest = width * height
		}
	}
	return largest
}
