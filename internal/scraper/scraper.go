// Package scraper finds provider video embeds on web pages so guides can be
// added from the page that hosts them.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/justchokingaround/vguide/internal/stream"
)

// Embed is a video reference found on a page
type Embed struct {
	URL      string          `json:"url"`
	Provider stream.Provider `json:"provider"`
	// Title is the iframe or video title attribute, if any
	Title string `json:"title,omitempty"`
}

// Fetcher downloads pages
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error)
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".m3u8": true,
	".webm": true,
	".mov":  true,
}

// FindEmbeds downloads pageURL and returns the provider embeds and video files it references
func FindEmbeds(ctx context.Context, fetcher Fetcher, pageURL string) ([]Embed, error) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid page URL %q", pageURL)
	}

	resp, err := fetcher.Get(ctx, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	return ParseEmbeds(strings.NewReader(resp.String()), base)
}

// ParseEmbeds extracts embeds from an HTML document. Relative references are resolved against base.
func ParseEmbeds(r io.Reader, base *url.URL) ([]Embed, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var embeds []Embed
	seen := make(map[string]bool)
	add := func(raw, title string, requireProvider bool) {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if raw == "" || err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		provider := stream.InferProvider(abs.String())
		if provider == stream.ProviderUnknown {
			if requireProvider || !videoExtensions[strings.ToLower(path.Ext(abs.Path))] {
				return
			}
		}
		key := abs.String()
		if seen[key] {
			return
		}
		seen[key] = true
		embeds = append(embeds, Embed{URL: key, Provider: provider, Title: strings.TrimSpace(title)})
	}

	doc.Find("iframe").Each(func(i int, s *goquery.Selection) {
		src := s.AttrOr("src", s.AttrOr("data-src", ""))
		add(src, s.AttrOr("title", ""), true)
	})
	doc.Find("video").Each(func(i int, s *goquery.Selection) {
		title := s.AttrOr("title", "")
		add(s.AttrOr("src", ""), title, false)
		s.Find("source").Each(func(j int, src *goquery.Selection) {
			add(src.AttrOr("src", ""), title, false)
		})
	})

	return embeds, nil
}
