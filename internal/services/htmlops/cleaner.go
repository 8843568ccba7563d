// Package htmlops cleans and parses recipe HTML: stripping export chrome,
// rendering markdown, and extracting the recipe structure the pipeline
// fans out over.
package htmlops

import (
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/interfaces"
)

// Cleaner strips style, script, and head chrome from exported recipe HTML
// and renders the remaining body to markdown.
type Cleaner struct {
	logger arbor.ILogger
}

var _ interfaces.HTMLCleaner = (*Cleaner)(nil)

// NewCleaner creates a cleaner
func NewCleaner(logger arbor.ILogger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean returns the cleaned HTML and its markdown rendition
func (c *Cleaner) Clean(ctx context.Context, rawHTML string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, link, noscript").Remove()
	doc.Find("head meta").Each(func(i int, s *goquery.Selection) {
		// Evernote export metadata survives cleaning; presentation meta goes
		if name, _ := s.Attr("name"); !isEvernoteMeta(name) {
			s.Remove()
		}
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		return "", "", fmt.Errorf("HTML has no body")
	}

	cleaned, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return "", "", fmt.Errorf("failed to render cleaned HTML: %w", err)
	}

	bodyHTML, err := goquery.OuterHtml(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}

	markdown, err := md.NewConverter("", true, nil).ConvertString(bodyHTML)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Markdown conversion failed, using text fallback")
		markdown = strings.TrimSpace(body.Text())
	}

	c.logger.Debug().
		Int("raw_length", len(rawHTML)).
		Int("cleaned_length", len(cleaned)).
		Msg("HTML cleaned")
	return cleaned, strings.TrimSpace(markdown), nil
}

// Evernote export meta names carried through cleaning for the parser
func isEvernoteMeta(name string) bool {
	switch name {
	case "source-url", "keywords", "created":
		return true
	}
	return false
}
