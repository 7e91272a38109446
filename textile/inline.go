package textile

import "strings"

// transformInline rewrites Textile inline markup in a single line of text.
// Rules apply left to right in priority order: inline code, image/attachment
// macro, explicit link, bold, italic, underline, strikethrough, wiki
// cross-reference. Unmatched markup characters pass through literally and a
// backslash escapes the next character.
func (s *state) transformInline(text string) string {
	return s.transform(text, 0)
}

func (s *state) transform(text string, depth int) string {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		switch text[i] {
		case '\\':
			if i+1 < len(text) {
				b.WriteByte(text[i+1])
				i += 2
			} else {
				b.WriteByte('\\')
				i++
			}

		case '@':
			if code, next, ok := matchDelimited(text, i, '@'); ok {
				// Verbatim: no transformation inside code spans.
				b.WriteString("`")
				b.WriteString(code)
				b.WriteString("`")
				i = next
			} else {
				b.WriteByte('@')
				i++
			}

		case '!':
			if next, ok := s.writeImageMacro(&b, text, i); ok {
				i = next
			} else {
				b.WriteByte('!')
				i++
			}

		case '"':
			if next, ok := s.writeExplicitLink(&b, text, i, depth); ok {
				i = next
			} else {
				b.WriteByte('"')
				i++
			}

		case '*':
			if next, ok := s.writeEmphasis(&b, text, i, '*', "**", "**", depth); ok {
				i = next
			} else {
				b.WriteByte('*')
				i++
			}

		case '_':
			if next, ok := s.writeEmphasis(&b, text, i, '_', "*", "*", depth); ok {
				i = next
			} else {
				b.WriteByte('_')
				i++
			}

		case '+':
			open, closing := s.underlineDelimiters()
			if next, ok := s.writeEmphasis(&b, text, i, '+', open, closing, depth); ok {
				i = next
			} else {
				b.WriteByte('+')
				i++
			}

		case '-':
			if next, ok := s.writeEmphasis(&b, text, i, '-', "~~", "~~", depth); ok {
				i = next
			} else {
				b.WriteByte('-')
				i++
			}

		case '[':
			if next, ok := s.writeCrossRef(&b, text, i, depth); ok {
				i = next
			} else {
				b.WriteByte('[')
				i++
			}

		default:
			b.WriteByte(text[i])
			i++
		}
	}

	return b.String()
}

func (s *state) underlineDelimiters() (string, string) {
	switch s.config.UnderlineStyle {
	case UnderlineBold:
		return "**", "**"
	case UnderlineIgnore:
		return "", ""
	default:
		return "<u>", "</u>"
	}
}

// matchDelimited matches a simple non-empty span between two identical
// marker characters, with no nesting.
func matchDelimited(text string, start int, marker byte) (string, int, bool) {
	rel := strings.IndexByte(text[start+1:], marker)
	if rel < 0 {
		return "", 0, false
	}
	inner := text[start+1 : start+1+rel]
	if inner == "" {
		return "", 0, false
	}
	return inner, start + rel + 2, true
}

// writeEmphasis matches a Textile emphasis span at position i and writes the
// Markdown rendition. Openers must not sit inside a word (protects
// hyphenated and snake_case identifiers) and the span content must not
// start or end with whitespace. Inner text recurses through the
// transformer, bounded by MaxEmphasisDepth; past the bound the remainder is
// written literally.
func (s *state) writeEmphasis(b *strings.Builder, text string, i int, marker byte, open, closing string, depth int) (int, bool) {
	if i > 0 && (isWordByte(text[i-1]) || text[i-1] == marker) {
		return 0, false
	}
	if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == marker {
		return 0, false
	}

	j := i + 1
	for j < len(text) {
		if text[j] == '\\' {
			j += 2
			continue
		}
		if text[j] == marker && text[j-1] != ' ' {
			break
		}
		j++
	}
	if j >= len(text) {
		return 0, false
	}

	inner := text[i+1 : j]
	if inner == "" {
		return 0, false
	}

	b.WriteString(open)
	b.WriteString(s.nested(inner, depth))
	b.WriteString(closing)
	return j + 1, true
}

// nested recurses the transformer on captured inner text, truncating at the
// configured depth bound so adversarial nesting always terminates.
func (s *state) nested(inner string, depth int) string {
	if depth+1 >= s.config.MaxEmphasisDepth {
		if !s.depthExceeded {
			s.depthExceeded = true
			s.addWarning(WarningNestingDepth, "", "emphasis nesting exceeded depth bound; remainder kept literal")
		}
		return inner
	}
	return s.transform(inner, depth+1)
}

// writeImageMacro handles !filename!, !filename(alt)! and !http://...!
// macros. Remote sources pass through untouched; local filenames resolve
// through the attachment map or stay literal with the filename recorded as
// unresolved.
func (s *state) writeImageMacro(b *strings.Builder, text string, i int) (int, bool) {
	inner, next, ok := matchDelimited(text, i, '!')
	if !ok {
		return 0, false
	}

	src := inner
	alt := ""
	if open := strings.IndexByte(inner, '('); open > 0 && strings.HasSuffix(inner, ")") {
		src = inner[:open]
		alt = inner[open+1 : len(inner)-1]
	}
	if src == "" || strings.ContainsAny(src, " \t") {
		return 0, false
	}

	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		if alt == "" {
			alt = "image"
		}
		b.WriteString("![" + alt + "](" + src + ")")
		return next, true
	}

	path, resolved := s.resolveAttachment(src)
	if !resolved {
		s.markUnresolved(src)
		b.WriteString("!" + inner + "!")
		return next, true
	}

	if alt == "" {
		alt = src
	}
	b.WriteString("![" + alt + "](" + path + ")")
	return next, true
}

// / writeExplicitLink handles the "link text":url form. The label recurses
// through the transformer so emphasis inside links still renders.
func (s *state) writeExplicitLink(b *strings.Builder, text string, i int, depth int) (int, bool) {
	label, after, ok := matchDelimited(text, i, '"')
	if !ok {
		return 0, false
	}
	if after >= len(text) || text[after] != ':' {
		return 0, false
	}

	j := after + 1
	for j < len(text) && text[j] != ' ' && text[j] != '\t' {
		j++
	}
	url := text[after+1 : j]
	if url == "" {
		return 0, false
	}

	b.WriteString("[" + s.nested(label, depth) + "](" + url + ")")
	return j, true
}

// writeCrossRef handles [[page]] and [[page|display text]] wiki references.
// The target is kept verbatim; downstream layers decide how page names map
// to files.
func (s *state) writeCrossRef(b *strings.Builder, text string, i int, depth int) (int, bool) {
	if i+1 >= len(text) || text[i+1] != '[' {
		return 0, false
	}
	rel := strings.Index(text[i+2:], "]]")
	if rel < 0 {
		return 0, false
	}
	inner := text[i+2 : i+2+rel]
	if inner == "" {
		return 0, false
	}

	target, label, hasLabel := strings.Cut(inner, "|")
	if !hasLabel {
		label = target
	}
	if target == "" || label == "" {
		return 0, false
	}

	b.WriteString("[" + s.nested(label, depth) + "](" + target + ")")
	return i + rel + 4, true
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}
