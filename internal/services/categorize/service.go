// Package categorize assigns category labels to saved notes using the
// Anthropic Claude API. Without an API key the service reports disabled
// and the pipeline skips categorization.
package categorize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
)

const (
	defaultModel     = "claude-haiku-3-5-20241022"
	defaultMaxTokens = 1024
	defaultTimeout   = 2 * time.Minute

	// maxMarkdownChars bounds the note body sent to the model. Categories
	// come from the structure of a recipe, not its full text.
	maxMarkdownChars = 6000

	maxCategories = 5
)

const systemPrompt = `You are a recipe categorization assistant. Given a recipe, respond with a comma-separated list of at most five short category labels (for example: "italian, pasta, weeknight dinner"). Respond with the list only, no prose. If the content is not a recipe, respond with an empty line.`

// Service is the Claude-backed categorizer
type Service struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	enabled   bool
	logger    arbor.ILogger
}

var _ interfaces.CategorizeService = (*Service)(nil)

// NewService builds the categorizer from config. A missing API key is not
// an error; it yields a disabled service.
func NewService(config *common.CategorizeConfig, logger arbor.ILogger) (*Service, error) {
	if config.APIKey == "" {
		logger.Info().Msg("Categorization disabled: no Anthropic API key configured")
		return &Service{enabled: false, logger: logger}, nil
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	timeout := defaultTimeout
	if config.Timeout != "" {
		parsed, err := time.ParseDuration(config.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid categorize timeout '%s': %w", config.Timeout, err)
		}
		timeout = parsed
	}

	logger.Info().
		Str("model", model).
		Int("max_tokens", maxTokens).
		Str("timeout", timeout.String()).
		Msg("Categorization service initialized")

	return &Service{
		client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		enabled:   true,
		logger:    logger,
	}, nil
}

// Enabled reports whether an API key was configured
func (s *Service) Enabled() bool {
	return s.enabled
}

// Categorize returns category labels for the note content
func (s *Service) Categorize(ctx context.Context, title, markdown string, tags []string) ([]string, error) {
	if !s.enabled {
		return nil, fmt.Errorf("categorization service is disabled")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(title, markdown, tags))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	categories := ParseCategories(text.String())
	s.logger.Debug().
		Str("title", title).
		Int("categories", len(categories)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("Note categorized")
	return categories, nil
}

// BuildPrompt assembles the user message sent to the model. The markdown
// body is truncated so oversized imports stay within token limits.
func BuildPrompt(title, markdown string, tags []string) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(title)
	b.WriteString("\n")
	if len(tags) > 0 {
		b.WriteString("Existing tags: ")
		b.WriteString(strings.Join(tags, ", "))
		b.WriteString("\n")
	}
	body := markdown
	if len(body) > maxMarkdownChars {
		body = body[:maxMarkdownChars]
	}
	b.WriteString("\nRecipe:\n")
	b.WriteString(body)
	return b.String()
}

// ParseCategories normalizes the model's reply into labels. The reply is
// expected comma-separated but line breaks and leading bullets are
// tolerated; duplicates are dropped case-insensitively.
func ParseCategories(reply string) []string {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	seen := make(map[string]struct{}, len(fields))
	categories := make([]string, 0, len(fields))
	for _, field := range fields {
		label := strings.TrimSpace(field)
		label = strings.TrimLeft(label, "-*• ")
		label = strings.Trim(label, `"`)
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		categories = append(categories, label)
		if len(categories) == maxCategories {
			break
		}
	}
	return categories
}
