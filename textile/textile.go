// Package textile converts the Redmine Textile dialect to Markdown.
//
// The converter handles the subset of Textile that Redmine emits for issue
// descriptions, journal notes and wiki pages: headings, emphasis, links,
// lists, tables, code blocks, blockquotes and attachment/image macros.
// Conversion never fails; malformed markup degrades to literal text and
// every anomaly is reported as data on the Result.
package textile

import (
	"fmt"
	"strings"
)

// UnderlineStyle controls how +underline+ spans are rendered.
type UnderlineStyle string

const (
	UnderlineHTML   UnderlineStyle = "html"
	UnderlineBold   UnderlineStyle = "bold"
	UnderlineIgnore UnderlineStyle = "ignore"
)

// DefaultMaxEmphasisDepth bounds recursive emphasis transformation.
const DefaultMaxEmphasisDepth = 8

// Config holds all converter configuration options.
type Config struct {
	UnderlineStyle   UnderlineStyle    `json:"underlineStyle,omitempty"`
	BulletMarker     rune              `json:"bulletMarker,omitempty"`
	MaxEmphasisDepth int               `json:"maxEmphasisDepth,omitempty"`
	LanguageMap      map[string]string `json:"languageMap,omitempty"`
}

func (c Config) applyDefaults() Config {
	if c.UnderlineStyle == "" {
		c.UnderlineStyle = UnderlineHTML
	}
	if c.BulletMarker == 0 {
		c.BulletMarker = '-'
	}
	if c.MaxEmphasisDepth == 0 {
		c.MaxEmphasisDepth = DefaultMaxEmphasisDepth
	}
	return c
}

// clone returns a deep copy of Config for map-backed fields.
func (c Config) clone() Config {
	cloned := c
	cloned.LanguageMap = cloneStringMap(c.LanguageMap)
	return cloned
}

// Validate checks that config values are valid.
func (c Config) Validate() error {
	if c.UnderlineStyle != UnderlineHTML && c.UnderlineStyle != UnderlineBold && c.UnderlineStyle != UnderlineIgnore {
		return fmt.Errorf("invalid underlineStyle %q", c.UnderlineStyle)
	}
	if c.BulletMarker != '-' && c.BulletMarker != '*' && c.BulletMarker != '+' {
		return fmt.Errorf("invalid bulletMarker %q: must be one of -, *, +", c.BulletMarker)
	}
	if c.MaxEmphasisDepth < 1 {
		return fmt.Errorf("maxEmphasisDepth must be positive, got %d", c.MaxEmphasisDepth)
	}
	for from, to := range c.LanguageMap {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return fmt.Errorf("languageMap keys and values must be non-empty")
		}
	}
	return nil
}

// AttachmentMap maps attachment filenames, exactly as written in the source
// markup, to the relative paths they were persisted under. The converter
// only reads it, so a single instance may be shared across concurrent
// Convert calls.
type AttachmentMap map[string]string

// Converter converts Textile to Markdown.
type Converter struct {
	config Config
}

// New creates a new Converter with the given config.
func New(config Config) (*Converter, error) {
	cfg := config.applyDefaults().clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Converter{config: cfg}, nil
}

// Convert turns Textile source into Markdown, resolving attachment macros
// through the given map. It is pure and deterministic: no I/O, no shared
// state, and it never fails — the worst case for a malformed line is that
// it passes through as literal paragraph text.
func (c *Converter) Convert(source string, attachments AttachmentMap) Result {
	s := &state{
		config:      c.config,
		attachments: attachments,
		seen:        make(map[string]struct{}),
	}

	blocks := tokenize(source)
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		rendered := s.renderBlock(b)
		if rendered == "" {
			continue
		}
		parts = append(parts, rendered)
	}

	markdown := strings.TrimSpace(collapseBlankRuns(strings.Join(parts, "\n\n")))

	return Result{
		Markdown:   markdown,
		Unresolved: s.unresolved,
		Warnings:   s.warnings,
	}
}

// state carries the per-call conversion context. Each Convert call owns its
// state, which keeps the Converter safe for concurrent use.
type state struct {
	config        Config
	attachments   AttachmentMap
	unresolved    []string
	seen          map[string]struct{}
	warnings      []Warning
	depthExceeded bool
}

func (s *state) addWarning(warnType WarningType, subject, message string) {
	s.warnings = append(s.warnings, Warning{
		Type:    warnType,
		Subject: subject,
		Message: message,
	})
}

// collapseBlankRuns compresses runs of blank lines down to a single blank
// line, leaving fenced code content untouched.
func collapseBlankRuns(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	prevBlank := false

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		blank := !inFence && strings.TrimSpace(line) == ""
		if blank && prevBlank {
			continue
		}
		prevBlank = blank
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

func cloneStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}

	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}

	return dst
}
