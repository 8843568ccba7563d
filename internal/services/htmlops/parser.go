package htmlops

import (
	"context"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// Parser extracts the recipe structure from cleaned HTML: the title,
// ordered ingredient and instruction lines, image references, and any
// evernote export metadata.
//
// Conventions in exported recipe HTML: ingredient lists are <ul> blocks
// (blockIndex distinguishes multiple lists, lineIndex is global and
// ordered), instructions are <ol> items, images are <img src>.
type Parser struct {
	logger arbor.ILogger
}

var _ interfaces.HTMLParser = (*Parser)(nil)

// NewParser creates a parser
func NewParser(logger arbor.ILogger) *Parser {
	return &Parser{logger: logger}
}

// Parse extracts the recipe structure from cleaned HTML
func (p *Parser) Parse(ctx context.Context, cleanedHTML string) (*models.ParsedFile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleanedHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := p.extractTitle(doc)
	if title == "" {
		return nil, fmt.Errorf("recipe has no title")
	}

	file := &models.ParsedFile{
		Title:            title,
		CleanedContent:   cleanedHTML,
		Ingredients:      p.extractIngredients(doc),
		Instructions:     p.extractInstructions(doc),
		ImageRefs:        p.extractImages(doc),
		EvernoteMetadata: p.extractMetadata(doc),
	}

	if body := doc.Find("body"); body.Length() > 0 {
		if bodyHTML, err := goquery.OuterHtml(body); err == nil {
			if markdown, err := md.NewConverter("", true, nil).ConvertString(bodyHTML); err == nil {
				file.Markdown = strings.TrimSpace(markdown)
			}
		}
	}

	p.logger.Debug().
		Str("title", title).
		Int("ingredients", len(file.Ingredients)).
		Int("instructions", len(file.Instructions)).
		Int("images", len(file.ImageRefs)).
		Msg("Recipe parsed")
	return file, nil
}

func (p *Parser) extractTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// extractIngredients walks every <ul> block in document order. lineIndex is
// global across blocks so fan-out job IDs stay unique per note.
func (p *Parser) extractIngredients(doc *goquery.Document) []models.IngredientLine {
	var lines []models.IngredientLine
	lineIndex := 0
	doc.Find("ul").Each(func(blockIndex int, ul *goquery.Selection) {
		ul.Find("li").Each(func(_ int, li *goquery.Selection) {
			reference := strings.TrimSpace(li.Text())
			if reference == "" {
				return
			}
			lines = append(lines, models.IngredientLine{
				Reference:  reference,
				BlockIndex: blockIndex,
				LineIndex:  lineIndex,
			})
			lineIndex++
		})
	})
	return lines
}

func (p *Parser) extractInstructions(doc *goquery.Document) []models.InstructionLine {
	var lines []models.InstructionLine
	lineIndex := 0
	doc.Find("ol li").Each(func(_ int, li *goquery.Selection) {
		lines = append(lines, models.InstructionLine{
			Reference: strings.TrimSpace(li.Text()),
			LineIndex: lineIndex,
		})
		lineIndex++
	})
	return lines
}

func (p *Parser) extractImages(doc *goquery.Document) []models.ImageRef {
	var refs []models.ImageRef
	doc.Find("img").Each(func(i int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}
		refs = append(refs, models.ImageRef{URL: strings.TrimSpace(src), LineIndex: i})
	})
	return refs
}

// extractMetadata reads the evernote export meta tags: source-url, keywords
// (comma separated), and created (RFC3339 or evernote's compact form)
func (p *Parser) extractMetadata(doc *goquery.Document) models.EvernoteMetadata {
	meta := models.EvernoteMetadata{}

	if source, ok := doc.Find(`meta[name="source-url"]`).Attr("content"); ok {
		meta.Source = strings.TrimSpace(source)
	}
	if keywords, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		for _, tag := range strings.Split(keywords, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				meta.Tags = append(meta.Tags, tag)
			}
		}
	}
	if created, ok := doc.Find(`meta[name="created"]`).Attr("content"); ok {
		for _, layout := range []string{time.RFC3339, "20060102T150405Z", "2006-01-02"} {
			if ts, err := time.Parse(layout, strings.TrimSpace(created)); err == nil {
				meta.OriginalCreatedAt = &ts
				break
			}
		}
	}
	return meta
}
