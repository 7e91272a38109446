package textile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

func newTestConverter(t testing.TB, cfg Config) *Converter {
	t.Helper()

	conv, err := New(cfg)
	require.NoError(t, err)

	return conv
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{UnderlineStyle: "sparkle"})
	assert.ErrorContains(t, err, "underlineStyle")

	_, err = New(Config{BulletMarker: 'x'})
	assert.ErrorContains(t, err, "bulletMarker")

	_, err = New(Config{MaxEmphasisDepth: -1})
	assert.ErrorContains(t, err, "maxEmphasisDepth")

	_, err = New(Config{LanguageMap: map[string]string{" ": "go"}})
	assert.ErrorContains(t, err, "languageMap")
}

func TestConvertEmptyInput(t *testing.T) {
	conv := newTestConverter(t, Config{})

	result := conv.Convert("", nil)

	assert.Empty(t, result.Markdown)
	assert.Empty(t, result.Unresolved)
	assert.Empty(t, result.Warnings)
}

func TestConvertPlainTextPassesThrough(t *testing.T) {
	conv := newTestConverter(t, Config{})

	for _, src := range []string{
		"just some words",
		"numbers 1 2 3 and punctuation, period.",
	} {
		result := conv.Convert(src, nil)
		assert.Equal(t, src, result.Markdown)
		assert.Empty(t, result.Unresolved)
	}
}

func TestConvertResolvedAttachment(t *testing.T) {
	conv := newTestConverter(t, Config{})
	attachments := AttachmentMap{"diagram.png": "attachments/diagram.png"}

	result := conv.Convert("!diagram.png!", attachments)

	assert.Equal(t, "![diagram.png](attachments/diagram.png)", result.Markdown)
	assert.Empty(t, result.Unresolved)
}

func TestConvertCaseInsensitiveAttachmentFallback(t *testing.T) {
	conv := newTestConverter(t, Config{})
	attachments := AttachmentMap{"Diagram.PNG": "attachments/Diagram.PNG"}

	result := conv.Convert("!diagram.png!", attachments)

	assert.Equal(t, "![diagram.png](attachments/Diagram.PNG)", result.Markdown)
	assert.Empty(t, result.Unresolved)
}

func TestConvertUnresolvedAttachment(t *testing.T) {
	conv := newTestConverter(t, Config{})

	result := conv.Convert("!missing.png!", nil)

	assert.Equal(t, "!missing.png!", result.Markdown)
	assert.Equal(t, []string{"missing.png"}, result.Unresolved)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, WarningUnresolvedAttachment, result.Warnings[0].Type)
	assert.Equal(t, "missing.png", result.Warnings[0].Subject)
}

func TestConvertUnresolvedDeduplicated(t *testing.T) {
	conv := newTestConverter(t, Config{})

	src := "!a.png! and !b.png!\n\n!a.png! again"
	result := conv.Convert(src, nil)

	assert.Equal(t, []string{"a.png", "b.png"}, result.Unresolved)
}

func TestConvertFullDocument(t *testing.T) {
	conv := newTestConverter(t, Config{})
	attachments := AttachmentMap{"chart.png": "attachments/chart.png"}

	src := "h1. Release Notes\r\n" +
		"\r\n" +
		"Fixed *critical* bug in @parser.go@, see \"the ticket\":https://example.com/42\r\n" +
		"\r\n" +
		"* fixed parser\r\n" +
		"* updated docs\r\n" +
		"\r\n" +
		"!chart.png!\r\n" +
		"\r\n" +
		"bc(go). fmt.Println(\"done\")\r\n"

	result := conv.Convert(src, attachments)

	want := "# Release Notes\n" +
		"\n" +
		"Fixed **critical** bug in `parser.go`, see [the ticket](https://example.com/42)\n" +
		"\n" +
		"- fixed parser\n" +
		"- updated docs\n" +
		"\n" +
		"![chart.png](attachments/chart.png)\n" +
		"\n" +
		"```go\nfmt.Println(\"done\")\n```"

	assert.Equal(t, want, result.Markdown)
	assert.Empty(t, result.Unresolved)
}

// TestConvertOutputParsesAsMarkdown feeds the rendered output back through a
// GFM parser and checks the block structure arrives intact.
func TestConvertOutputParsesAsMarkdown(t *testing.T) {
	conv := newTestConverter(t, Config{})

	src := "h2. Overview\n\nSome *intro* text.\n\n|_. K |_. V |\n| a | 1 |\n\nbc. code here\n\n* one\n* two"
	result := conv.Convert(src, nil)

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader([]byte(result.Markdown)))

	counts := map[ast.NodeKind]int{}
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			counts[n.Kind()]++
		}
		return ast.WalkContinue, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, counts[ast.KindHeading])
	assert.Equal(t, 1, counts[east.KindTable])
	assert.Equal(t, 1, counts[east.KindTableHeader])
	assert.Equal(t, 1, counts[ast.KindFencedCodeBlock])
	assert.Equal(t, 1, counts[ast.KindList])
	assert.Equal(t, 2, counts[ast.KindListItem])
}

// TestConvertConcurrent exercises the documented model: one Converter and
// one AttachmentMap shared read-only across goroutines.
func TestConvertConcurrent(t *testing.T) {
	conv := newTestConverter(t, Config{})
	attachments := AttachmentMap{"a.png": "attachments/a.png"}

	src := "h1. Doc\n\n!a.png! and !missing.png!\n\n* item"

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := conv.Convert(src, attachments)
			assert.Contains(t, result.Markdown, "![a.png](attachments/a.png)")
			assert.Equal(t, []string{"missing.png"}, result.Unresolved)
		}()
	}
	wg.Wait()
}
