package textile

import (
	"fmt"
	"strings"
)

// renderBlock emits the Markdown for a single block, without trailing
// newlines; the facade joins blocks with one blank line.
func (s *state) renderBlock(b block) string {
	switch b.kind {
	case blockHeading:
		return strings.Repeat("#", b.level) + " " + s.transformInline(b.lines[0])

	case blockRule:
		return "---"

	case blockCode:
		return s.renderCode(b)

	case blockQuote:
		return s.renderQuote(b.quotes)

	case blockList:
		return s.renderList(b.items)

	case blockTable:
		return s.renderTable(b.rows)

	default:
		return s.renderParagraph(b.lines)
	}
}

// renderParagraph transforms each source line and preserves manual line
// breaks as a trailing two-space hard break.
func (s *state) renderParagraph(lines []string) string {
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		rendered = append(rendered, s.transformInline(line))
	}
	return strings.Join(rendered, "  \n")
}

func (s *state) renderCode(b block) string {
	lang := b.lang
	if mapped, ok := s.config.LanguageMap[lang]; ok {
		lang = mapped
	}
	// Content passes through without inline transformation.
	return "```" + lang + "\n" + strings.Join(b.lines, "\n") + "\n```"
}

// renderQuote prefixes each line with one ">" per nesting level.
func (s *state) renderQuote(quotes []quoteLine) string {
	lines := make([]string, 0, len(quotes))
	for _, q := range quotes {
		prefix := strings.Repeat(">", q.level)
		if q.text == "" {
			lines = append(lines, prefix)
			continue
		}
		lines = append(lines, prefix+" "+s.transformInline(q.text))
	}
	return strings.Join(lines, "\n")
}

// renderList emits list items with a two-space indent per nesting level.
// Ordered numbering is tracked per level and restarts with every top-level
// list block; descending a level resets the deeper counters.
func (s *state) renderList(items []listItem) string {
	var counters []int
	lines := make([]string, 0, len(items))

	for _, item := range items {
		level := item.level
		if level > len(counters)+1 {
			// A nesting jump (e.g. * straight to ***) clamps to one
			// level deeper rather than producing orphaned indent.
			level = len(counters) + 1
		}
		counters = counters[:min(level, len(counters))]
		for len(counters) < level {
			counters = append(counters, 0)
		}
		counters[level-1]++

		marker := string(s.config.BulletMarker)
		if item.ordered {
			marker = fmt.Sprintf("%d.", counters[level-1])
		}
		indent := strings.Repeat("  ", level-1)
		lines = append(lines, indent+marker+" "+s.transformInline(item.text))
	}

	return strings.Join(lines, "\n")
}

// renderTable emits a GFM pipe table. The header row comes from Textile
// |_. cells, or from a dash-filled second source row; otherwise a blank
// header is synthesized. Rows are padded to the widest column count.
func (s *state) renderTable(rows []tableRow) string {
	if len(rows) == 0 {
		return ""
	}

	var header []string
	var data []tableRow

	switch {
	case rows[0].header:
		header = rows[0].cells
		data = rows[1:]
	case len(rows) >= 2 && isSeparatorRow(rows[1]):
		header = rows[0].cells
		data = rows[2:]
	default:
		data = rows
	}

	colCount := len(header)
	for _, row := range data {
		if len(row.cells) > colCount {
			colCount = len(row.cells)
		}
	}
	if colCount == 0 {
		return ""
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i := 0; i < colCount; i++ {
			sb.WriteString(" ")
			if i < len(cells) {
				sb.WriteString(s.transformInline(cells[i]))
			}
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	if header == nil {
		header = make([]string, colCount)
	}
	writeRow(header)

	sb.WriteString("|")
	for i := 0; i < colCount; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")

	for _, row := range data {
		writeRow(row.cells)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// isSeparatorRow reports whether every cell consists solely of dashes.
func isSeparatorRow(row tableRow) bool {
	for _, cell := range row.cells {
		if cell == "" || strings.Trim(cell, "-") != "" {
			return false
		}
	}
	return len(row.cells) > 0
}
