package textile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeHeadings(t *testing.T) {
	blocks := tokenize("h1. Title\n\nh6. Deep")

	require.Len(t, blocks, 2)
	assert.Equal(t, blockHeading, blocks[0].kind)
	assert.Equal(t, 1, blocks[0].level)
	assert.Equal(t, "Title", blocks[0].lines[0])
	assert.Equal(t, 6, blocks[1].level)
}

func TestTokenizeMalformedHeadingDegradesToParagraph(t *testing.T) {
	for _, src := range []string{"h9. Too deep", "h0. Zero", "h1.NoSpace", "h1. "} {
		blocks := tokenize(src)
		require.Len(t, blocks, 1, "source %q", src)
		assert.Equal(t, blockParagraph, blocks[0].kind, "source %q", src)
	}
}

func TestTokenizeNormalizesLineEndings(t *testing.T) {
	blocks := tokenize("h1. A\r\n\r\nplain\rtext")

	require.Len(t, blocks, 2)
	assert.Equal(t, blockHeading, blocks[0].kind)
	assert.Equal(t, []string{"plain", "text"}, blocks[1].lines)
}

func TestTokenizeListGrouping(t *testing.T) {
	blocks := tokenize("* one\n* two\n** nested\n# first\n\n# second")

	require.Len(t, blocks, 2)
	require.Equal(t, blockList, blocks[0].kind)
	require.Len(t, blocks[0].items, 4)
	assert.Equal(t, listItem{level: 1, ordered: false, text: "one"}, blocks[0].items[0])
	assert.Equal(t, listItem{level: 2, ordered: false, text: "nested"}, blocks[0].items[2])
	assert.Equal(t, listItem{level: 1, ordered: true, text: "first"}, blocks[0].items[3])

	// Blank line starts a fresh list block.
	require.Equal(t, blockList, blocks[1].kind)
	require.Len(t, blocks[1].items, 1)
}

func TestTokenizeTableGrouping(t *testing.T) {
	blocks := tokenize("|_. Name |_. Age |\n| Alice | 30 |")

	require.Len(t, blocks, 1)
	require.Equal(t, blockTable, blocks[0].kind)
	require.Len(t, blocks[0].rows, 2)
	assert.True(t, blocks[0].rows[0].header)
	assert.Equal(t, []string{"Name", "Age"}, blocks[0].rows[0].cells)
	assert.False(t, blocks[0].rows[1].header)
	assert.Equal(t, []string{"Alice", "30"}, blocks[0].rows[1].cells)
}

func TestTokenizeCodeParagraph(t *testing.T) {
	blocks := tokenize("bc. first line\nsecond line\n\nafter")

	require.Len(t, blocks, 2)
	require.Equal(t, blockCode, blocks[0].kind)
	assert.Empty(t, blocks[0].lang)
	assert.Equal(t, []string{"first line", "second line"}, blocks[0].lines)
	assert.Equal(t, blockParagraph, blocks[1].kind)
}

func TestTokenizeCodeParagraphWithClass(t *testing.T) {
	blocks := tokenize("bc(ruby). puts 1")

	require.Len(t, blocks, 1)
	assert.Equal(t, "ruby", blocks[0].lang)
	assert.Equal(t, []string{"puts 1"}, blocks[0].lines)
}

func TestTokenizePreWrapper(t *testing.T) {
	src := "<pre><code class=\"python\">\nprint(1)\nprint(2)\n</code></pre>"
	blocks := tokenize(src)

	require.Len(t, blocks, 1)
	require.Equal(t, blockCode, blocks[0].kind)
	assert.Equal(t, "python", blocks[0].lang)
	assert.Equal(t, []string{"print(1)", "print(2)"}, blocks[0].lines)
}

func TestTokenizePlainPreWrapperSingleLine(t *testing.T) {
	blocks := tokenize("<pre>x := 1</pre>")

	require.Len(t, blocks, 1)
	require.Equal(t, blockCode, blocks[0].kind)
	assert.Empty(t, blocks[0].lang)
	assert.Equal(t, []string{"x := 1"}, blocks[0].lines)
}

func TestTokenizeUnclosedPreDegradesToParagraph(t *testing.T) {
	blocks := tokenize("<pre>\nnever closed")

	require.NotEmpty(t, blocks)
	assert.Equal(t, blockParagraph, blocks[0].kind)
}

func TestTokenizeQuoteGrouping(t *testing.T) {
	blocks := tokenize("> outer\n>> inner\nbq. classic")

	require.Len(t, blocks, 1)
	require.Equal(t, blockQuote, blocks[0].kind)
	require.Len(t, blocks[0].quotes, 3)
	assert.Equal(t, quoteLine{level: 1, text: "outer"}, blocks[0].quotes[0])
	assert.Equal(t, quoteLine{level: 2, text: "inner"}, blocks[0].quotes[1])
	assert.Equal(t, quoteLine{level: 1, text: "classic"}, blocks[0].quotes[2])
}

func TestTokenizeHorizontalRule(t *testing.T) {
	blocks := tokenize("---\n\n****")

	require.Len(t, blocks, 2)
	assert.Equal(t, blockRule, blocks[0].kind)
	assert.Equal(t, blockRule, blocks[1].kind)
}

func TestTokenizeShortDashLineIsParagraph(t *testing.T) {
	blocks := tokenize("--")

	require.Len(t, blocks, 1)
	assert.Equal(t, blockParagraph, blocks[0].kind)
}

func TestTokenizeBlankLinesNeverEmitBlocks(t *testing.T) {
	blocks := tokenize("\n\n\n")

	assert.Empty(t, blocks)
}

func TestTokenizeParagraphAccumulation(t *testing.T) {
	blocks := tokenize("first\nsecond\n\nthird")

	require.Len(t, blocks, 2)
	assert.Equal(t, []string{"first", "second"}, blocks[0].lines)
	assert.Equal(t, []string{"third"}, blocks[1].lines)
}
