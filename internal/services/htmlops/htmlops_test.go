package htmlops

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const recipeHTML = `<html>
<head>
<title>Spaghetti Carbonara</title>
<meta name="source-url" content="https://www.seriouseats.com/carbonara"/>
<meta name="keywords" content="pasta, italian , dinner"/>
<meta name="created" content="2024-03-01T10:30:00Z"/>
<meta name="viewport" content="width=device-width"/>
<style>body { color: red; }</style>
<script>alert("hi")</script>
</head>
<body>
<h1>Spaghetti Carbonara</h1>
<img src="https://example.com/carbonara.jpg"/>
<h2>Ingredients</h2>
<ul>
  <li>200g spaghetti</li>
  <li>100g guanciale</li>
</ul>
<h2>For the sauce</h2>
<ul>
  <li>2 eggs</li>
  <li></li>
  <li>50g pecorino</li>
</ul>
<h2>Method</h2>
<ol>
  <li>Boil the pasta</li>
  <li>Fry the guanciale</li>
</ol>
</body>
</html>`

func TestCleaner_StripsChromeKeepsBody(t *testing.T) {
	cleaner := NewCleaner(arbor.NewLogger())

	cleaned, markdown, err := cleaner.Clean(context.Background(), recipeHTML)
	require.NoError(t, err)

	assert.NotContains(t, cleaned, "<script")
	assert.NotContains(t, cleaned, "<style")
	assert.NotContains(t, cleaned, "viewport", "presentation meta is stripped")
	assert.Contains(t, cleaned, "source-url", "evernote meta survives cleaning")
	assert.Contains(t, cleaned, "200g spaghetti")

	assert.Contains(t, markdown, "Spaghetti Carbonara")
	assert.Contains(t, markdown, "200g spaghetti")
	assert.NotContains(t, markdown, "alert")
}

func TestParser_ExtractsRecipeStructure(t *testing.T) {
	parser := NewParser(arbor.NewLogger())

	file, err := parser.Parse(context.Background(), recipeHTML)
	require.NoError(t, err)

	assert.Equal(t, "Spaghetti Carbonara", file.Title)

	require.Len(t, file.Ingredients, 4, "empty <li> rows are dropped")
	assert.Equal(t, "200g spaghetti", file.Ingredients[0].Reference)
	assert.Equal(t, 0, file.Ingredients[0].BlockIndex)
	assert.Equal(t, 0, file.Ingredients[0].LineIndex)
	assert.Equal(t, "2 eggs", file.Ingredients[2].Reference)
	assert.Equal(t, 1, file.Ingredients[2].BlockIndex, "second <ul> is its own block")
	assert.Equal(t, 2, file.Ingredients[2].LineIndex, "line index is global across blocks")
	assert.Equal(t, 3, file.Ingredients[3].LineIndex)

	require.Len(t, file.Instructions, 2)
	assert.Equal(t, "Boil the pasta", file.Instructions[0].Reference)
	assert.Equal(t, 1, file.Instructions[1].LineIndex)

	require.Len(t, file.ImageRefs, 1)
	assert.Equal(t, "https://example.com/carbonara.jpg", file.ImageRefs[0].URL)

	assert.Equal(t, "https://www.seriouseats.com/carbonara", file.EvernoteMetadata.Source)
	assert.Equal(t, []string{"pasta", "italian", "dinner"}, file.EvernoteMetadata.Tags)
	require.NotNil(t, file.EvernoteMetadata.OriginalCreatedAt)
	assert.Equal(t, 2024, file.EvernoteMetadata.OriginalCreatedAt.Year())

	assert.Contains(t, file.Markdown, "Spaghetti Carbonara")
}

func TestParser_TitleFallsBackToTitleTag(t *testing.T) {
	parser := NewParser(arbor.NewLogger())

	html := `<html><head><title>Fallback Title</title></head><body><p>hi</p></body></html>`
	file, err := parser.Parse(context.Background(), html)
	require.NoError(t, err)
	assert.Equal(t, "Fallback Title", file.Title)
}

func TestParser_NoTitleIsAnError(t *testing.T) {
	parser := NewParser(arbor.NewLogger())

	_, err := parser.Parse(context.Background(), "<html><body><p>anonymous</p></body></html>")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "title"))
}

func TestParser_NoListsYieldsEmptySlices(t *testing.T) {
	parser := NewParser(arbor.NewLogger())

	file, err := parser.Parse(context.Background(), "<html><body><h1>Toast</h1></body></html>")
	require.NoError(t, err)
	assert.Empty(t, file.Ingredients)
	assert.Empty(t, file.Instructions)
	assert.Empty(t, file.ImageRefs)
}
