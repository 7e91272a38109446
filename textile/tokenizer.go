package textile

import "strings"

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockList
	blockTable
	blockCode
	blockQuote
	blockRule
)

// block is the unit produced by tokenization. Blocks are built once and
// never mutated afterwards; source order is preserved.
type block struct {
	kind   blockKind
	level  int         // heading level
	lang   string      // code fence language
	lines  []string    // paragraph and code content
	items  []listItem  // list items in source order
	rows   []tableRow  // table rows in source order
	quotes []quoteLine // blockquote lines in source order
}

type listItem struct {
	level   int
	ordered bool
	text    string
}

type tableRow struct {
	cells  []string
	header bool // row written with |_. header cells
}

type quoteLine struct {
	level int
	text  string
}

// tokenize normalizes line endings and groups the source into typed blocks.
// Blank lines separate blocks and are never emitted; malformed markers
// degrade to paragraph text.
func tokenize(source string) []block {
	lines := strings.Split(normalizeLineEndings(source), "\n")

	var blocks []block
	var para []string

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		blocks = append(blocks, block{kind: blockParagraph, lines: para})
		para = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.TrimSpace(line) == "":
			flushPara()

		case isHorizontalRule(line):
			flushPara()
			blocks = append(blocks, block{kind: blockRule})

		case isPreOpen(line):
			flushPara()
			b, consumed, ok := scanPreBlock(lines, i)
			if !ok {
				// No closing tag in sight: the line is paragraph text.
				para = append(para, line)
				continue
			}
			blocks = append(blocks, b)
			i = consumed

		case isCodeMarker(line):
			flushPara()
			b, consumed := scanCodeParagraph(lines, i)
			blocks = append(blocks, b)
			i = consumed

		default:
			if level, text, ok := matchHeading(line); ok {
				flushPara()
				blocks = append(blocks, block{kind: blockHeading, level: level, lines: []string{text}})
				continue
			}
			if item, ok := matchListItem(line); ok {
				flushPara()
				if n := len(blocks); n > 0 && blocks[n-1].kind == blockList && !blankBefore(lines, i) {
					blocks[n-1].items = append(blocks[n-1].items, item)
				} else {
					blocks = append(blocks, block{kind: blockList, items: []listItem{item}})
				}
				continue
			}
			if row, ok := matchTableRow(line); ok {
				flushPara()
				if n := len(blocks); n > 0 && blocks[n-1].kind == blockTable && !blankBefore(lines, i) {
					blocks[n-1].rows = append(blocks[n-1].rows, row)
				} else {
					blocks = append(blocks, block{kind: blockTable, rows: []tableRow{row}})
				}
				continue
			}
			if q, ok := matchQuoteLine(line); ok {
				flushPara()
				if n := len(blocks); n > 0 && blocks[n-1].kind == blockQuote && !blankBefore(lines, i) {
					blocks[n-1].quotes = append(blocks[n-1].quotes, q)
				} else {
					blocks = append(blocks, block{kind: blockQuote, quotes: []quoteLine{q}})
				}
				continue
			}
			para = append(para, line)
		}
	}
	flushPara()

	return blocks
}

// blankBefore reports whether the previous source line was blank, which ends
// the merge window for list, table and quote blocks.
func blankBefore(lines []string, i int) bool {
	return i > 0 && strings.TrimSpace(lines[i-1]) == ""
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// matchHeading recognizes "h1." through "h6." prefixes followed by a space.
// Out-of-range levels like h9. fail the match and stay paragraph text.
func matchHeading(line string) (int, string, bool) {
	if len(line) < 4 || line[0] != 'h' || line[2] != '.' {
		return 0, "", false
	}
	level := int(line[1] - '0')
	if level < 1 || level > 6 {
		return 0, "", false
	}
	rest := line[3:]
	if !strings.HasPrefix(rest, " ") {
		return 0, "", false
	}
	text := strings.TrimSpace(rest)
	if text == "" {
		return 0, "", false
	}
	return level, text, true
}

// matchListItem recognizes "*"/"#" run prefixes; the run length is the
// nesting level. Runs must be uniform and followed by a space.
func matchListItem(line string) (listItem, bool) {
	if line == "" || (line[0] != '*' && line[0] != '#') {
		return listItem{}, false
	}
	marker := line[0]
	n := 0
	for n < len(line) && line[n] == marker {
		n++
	}
	if n >= len(line) || line[n] != ' ' {
		return listItem{}, false
	}
	text := strings.TrimSpace(line[n:])
	if text == "" {
		return listItem{}, false
	}
	return listItem{level: n, ordered: marker == '#', text: text}, true
}

// matchTableRow splits a "|"-delimited line into trimmed cells, stripping
// the Textile "_." header prefix and remembering that it was present.
func matchTableRow(line string) (tableRow, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") {
		return tableRow{}, false
	}
	trimmed = strings.Trim(trimmed, "|")

	raw := strings.Split(trimmed, "|")
	row := tableRow{cells: make([]string, 0, len(raw))}
	for _, cell := range raw {
		cell = strings.TrimSpace(cell)
		if rest, ok := strings.CutPrefix(cell, "_."); ok {
			row.header = true
			cell = strings.TrimSpace(rest)
		}
		row.cells = append(row.cells, cell)
	}
	return row, true
}

// matchQuoteLine recognizes ">"-prefixed lines (nesting via repeated ">")
// and the single-line Textile "bq. " form.
func matchQuoteLine(line string) (quoteLine, bool) {
	trimmed := strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(trimmed, "bq. "); ok {
		text := strings.TrimSpace(rest)
		if text == "" {
			return quoteLine{}, false
		}
		return quoteLine{level: 1, text: text}, true
	}
	if !strings.HasPrefix(trimmed, ">") {
		return quoteLine{}, false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '>' {
		level++
	}
	return quoteLine{level: level, text: strings.TrimSpace(trimmed[level:])}, true
}

// isHorizontalRule recognizes lines consisting solely of three or more
// dashes or asterisks.
func isHorizontalRule(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 {
		return false
	}
	marker := trimmed[0]
	if marker != '-' && marker != '*' {
		return false
	}
	for i := 1; i < len(trimmed); i++ {
		if trimmed[i] != marker {
			return false
		}
	}
	return true
}

// isCodeMarker recognizes the "bc." paragraph marker, optionally carrying a
// Textile class used as the language tag: "bc(ruby). code".
func isCodeMarker(line string) bool {
	_, _, ok := splitCodeMarker(line)
	return ok
}

func splitCodeMarker(line string) (lang, rest string, ok bool) {
	if after, found := strings.CutPrefix(line, "bc."); found {
		return "", strings.TrimLeft(after, " "), true
	}
	after, found := strings.CutPrefix(line, "bc(")
	if !found {
		return "", "", false
	}
	end := strings.Index(after, ").")
	if end < 0 {
		return "", "", false
	}
	return after[:end], strings.TrimLeft(after[end+2:], " "), true
}

// scanCodeParagraph consumes a bc. block: the marker line plus following
// lines until the next blank line.
func scanCodeParagraph(lines []string, start int) (block, int) {
	lang, rest, _ := splitCodeMarker(lines[start])

	var content []string
	if rest != "" {
		content = append(content, rest)
	}

	i := start
	for i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
		i++
		content = append(content, lines[i])
	}

	return block{kind: blockCode, lang: lang, lines: content}, i
}

func isPreOpen(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "<pre>")
}

// scanPreBlock consumes a <pre> ... </pre> wrapper, honoring an optional
// <code class="lang"> tag. Returns ok=false when no closing tag exists,
// leaving the caller to degrade the line to paragraph text.
func scanPreBlock(lines []string, start int) (block, int, bool) {
	first := strings.TrimSpace(lines[start])
	first = strings.TrimPrefix(first, "<pre>")

	var lang string
	if after, ok := strings.CutPrefix(first, "<code"); ok {
		tagEnd := strings.Index(after, ">")
		if tagEnd < 0 {
			return block{}, 0, false
		}
		lang = parseClassAttr(after[:tagEnd])
		first = after[tagEnd+1:]
	}

	var content []string
	appendContent := func(line string) {
		line = strings.ReplaceAll(line, "</code>", "")
		line = strings.ReplaceAll(line, "</pre>", "")
		if strings.TrimSpace(line) != "" || len(content) > 0 {
			content = append(content, line)
		}
	}

	if strings.Contains(first, "</pre>") {
		appendContent(first)
		return block{kind: blockCode, lang: lang, lines: trimTrailingBlank(content)}, start, true
	}
	if first != "" {
		appendContent(first)
	}

	for i := start + 1; i < len(lines); i++ {
		if strings.Contains(lines[i], "</pre>") {
			appendContent(lines[i])
			return block{kind: blockCode, lang: lang, lines: trimTrailingBlank(content)}, i, true
		}
		appendContent(lines[i])
	}

	return block{}, 0, false
}

// parseClassAttr extracts the value of a class attribute from a tag body
// like ` class="ruby"` or ` class='ruby'`.
func parseClassAttr(attrs string) string {
	idx := strings.Index(attrs, "class=")
	if idx < 0 {
		return ""
	}
	value := attrs[idx+len("class="):]
	value = strings.Trim(value, `"'`)
	if end := strings.IndexAny(value, `"' `); end >= 0 {
		value = value[:end]
	}
	return value
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
