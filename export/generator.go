package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"

	"github.com/rgonek/redmine-md-exporter/redmine"
	"github.com/rgonek/redmine-md-exporter/textile"
)

// Generator turns fetched Redmine issues and wiki pages into Markdown
// documents on disk. The layout under the root directory is
//
//	<root>/<project>/issues/<padded id>.md
//	<root>/<project>/wiki/<sanitized title>.md
//	<root>/<project>/attachments/<id>_<sanitized filename>
type Generator struct {
	root    string
	conv    *textile.Converter
	factory *Factory
	log     zerolog.Logger

	skipExtraction bool
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger used for conversion warnings.
func WithLogger(log zerolog.Logger) GeneratorOption {
	return func(g *Generator) { g.log = log }
}

// WithoutExtraction disables attachment text extraction; attachments are
// still linked and described.
func WithoutExtraction() GeneratorOption {
	return func(g *Generator) { g.skipExtraction = true }
}

const processorCacheSize = 512

// NewGenerator builds a generator writing under root, converting markup
// with the given engine configuration.
func NewGenerator(root string, cfg textile.Config, opts ...GeneratorOption) (*Generator, error) {
	conv, err := textile.New(cfg)
	if err != nil {
		return nil, err
	}
	factory, err := NewFactory(processorCacheSize)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		root:    root,
		conv:    conv,
		factory: factory,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// AttachmentPath returns where an attachment's content is stored on disk.
func (g *Generator) AttachmentPath(project string, att redmine.Attachment) string {
	name := fmt.Sprintf("%d_%s", att.ID, SanitizeFilename(att.Filename))
	return filepath.Join(g.root, project, "attachments", name)
}

// issueFrontMatter is the YAML header of a generated issue document.
type issueFrontMatter struct {
	ID           int               `yaml:"id"`
	Project      string            `yaml:"project"`
	Tracker      string            `yaml:"tracker,omitempty"`
	Status       string            `yaml:"status,omitempty"`
	Priority     string            `yaml:"priority,omitempty"`
	Subject      string            `yaml:"subject"`
	Author       string            `yaml:"author,omitempty"`
	AssignedTo   string            `yaml:"assigned_to,omitempty"`
	DoneRatio    int               `yaml:"done_ratio,omitempty"`
	CreatedOn    string            `yaml:"created_on,omitempty"`
	UpdatedOn    string            `yaml:"updated_on,omitempty"`
	CustomFields map[string]string `yaml:"custom_fields,omitempty"`
}

type wikiFrontMatter struct {
	Title     string `yaml:"title"`
	Project   string `yaml:"project"`
	Version   int    `yaml:"version,omitempty"`
	Author    string `yaml:"author,omitempty"`
	Parent    string `yaml:"parent,omitempty"`
	CreatedOn string `yaml:"created_on,omitempty"`
	UpdatedOn string `yaml:"updated_on,omitempty"`
}

const frontMatterTime = "2006-01-02T15:04:05Z07:00"

// RenderIssue builds the full Markdown document for an issue.
func (g *Generator) RenderIssue(project string, issue redmine.Issue) (string, error) {
	fm := issueFrontMatter{
		ID:        issue.ID,
		Project:   issue.Project.Name,
		Tracker:   issue.Tracker.Name,
		Status:    issue.Status.Name,
		Priority:  issue.Priority.Name,
		Subject:   issue.Subject,
		Author:    issue.Author.Name,
		DoneRatio: issue.DoneRatio,
		CreatedOn: issue.CreatedOn.UTC().Format(frontMatterTime),
		UpdatedOn: issue.UpdatedOn.UTC().Format(frontMatterTime),
	}
	if issue.AssignedTo != nil {
		fm.AssignedTo = issue.AssignedTo.Name
	}
	if len(issue.CustomFields) > 0 {
		fm.CustomFields = make(map[string]string, len(issue.CustomFields))
		for _, cf := range issue.CustomFields {
			fm.CustomFields[cf.Name] = fmt.Sprint(cf.Value)
		}
	}

	var sb strings.Builder
	if err := writeFrontMatter(&sb, fm); err != nil {
		return "", err
	}

	fmt.Fprintf(&sb, "# Issue #%d: %s\n\n", issue.ID, issue.Subject)

	attachments := g.attachmentMap(issue.Attachments)
	subject := fmt.Sprintf("issue #%d", issue.ID)

	sb.WriteString("## Description\n\n")
	sb.WriteString(g.convert(issue.Description, attachments, subject))
	sb.WriteString("\n")

	if len(issue.Attachments) > 0 {
		sb.WriteString("\n## Attachments\n")
		for _, att := range issue.Attachments {
			g.writeAttachmentSection(&sb, project, att)
		}
	}

	if notes := journalsWithNotes(issue.Journals); len(notes) > 0 {
		sb.WriteString("\n## History\n")
		for _, j := range notes {
			fmt.Fprintf(&sb, "\n### %s (%s)\n\n", j.User.Name, j.CreatedOn.UTC().Format("2006-01-02 15:04"))
			sb.WriteString(g.convert(j.Notes, attachments, subject))
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

// RenderWikiPage builds the full Markdown document for a wiki page.
func (g *Generator) RenderWikiPage(project string, page redmine.WikiPage) (string, error) {
	fm := wikiFrontMatter{
		Title:     page.Title,
		Project:   project,
		Version:   page.Version,
		Author:    page.Author.Name,
		CreatedOn: page.CreatedOn.UTC().Format(frontMatterTime),
		UpdatedOn: page.UpdatedOn.UTC().Format(frontMatterTime),
	}
	if page.Parent != nil {
		fm.Parent = page.Parent.Title
	}

	var sb strings.Builder
	if err := writeFrontMatter(&sb, fm); err != nil {
		return "", err
	}

	fmt.Fprintf(&sb, "# %s\n\n", page.Title)
	sb.WriteString(g.convert(page.Text, g.attachmentMap(page.Attachments), "wiki "+page.Title))
	sb.WriteString("\n")

	if len(page.Attachments) > 0 {
		sb.WriteString("\n## Attachments\n")
		for _, att := range page.Attachments {
			g.writeAttachmentSection(&sb, project, att)
		}
	}

	return sb.String(), nil
}

// SaveIssue renders the issue and writes it under the project's issues
// directory, returning the written path.
func (g *Generator) SaveIssue(project string, issue redmine.Issue) (string, error) {
	doc, err := g.RenderIssue(project, issue)
	if err != nil {
		return "", err
	}
	path := filepath.Join(g.root, project, "issues", fmt.Sprintf("%06d.md", issue.ID))
	return path, writeDocument(path, doc)
}

// SaveWikiPage renders the wiki page and writes it under the project's
// wiki directory, returning the written path.
func (g *Generator) SaveWikiPage(project string, page redmine.WikiPage) (string, error) {
	doc, err := g.RenderWikiPage(project, page)
	if err != nil {
		return "", err
	}
	path := filepath.Join(g.root, project, "wiki", SanitizeFilename(page.Title)+".md")
	return path, writeDocument(path, doc)
}

// convert runs the markup engine and logs its warnings; it never fails.
func (g *Generator) convert(source string, attachments textile.AttachmentMap, subject string) string {
	res := g.conv.Convert(source, attachments)
	for _, name := range res.Unresolved {
		g.log.Warn().Str("subject", subject).Str("attachment", name).
			Msg("unresolved attachment reference")
	}
	for _, w := range res.Warnings {
		if w.Type == textile.WarningUnresolvedAttachment {
			continue // already reported per filename above
		}
		g.log.Warn().Str("subject", subject).Str("type", string(w.Type)).
			Msg(w.Message)
	}
	return res.Markdown
}

// attachmentMap maps attachment filenames to links relative to the
// generated document, which lives one directory below the project root.
func (g *Generator) attachmentMap(atts []redmine.Attachment) textile.AttachmentMap {
	if len(atts) == 0 {
		return nil
	}
	m := make(textile.AttachmentMap, len(atts))
	for _, att := range atts {
		name := fmt.Sprintf("%d_%s", att.ID, SanitizeFilename(att.Filename))
		m[att.Filename] = "../attachments/" + name
	}
	return m
}

func (g *Generator) writeAttachmentSection(sb *strings.Builder, project string, att redmine.Attachment) {
	ref := "../attachments/" + fmt.Sprintf("%d_%s", att.ID, SanitizeFilename(att.Filename))

	fmt.Fprintf(sb, "\n### %s\n\n", att.Filename)
	if att.IsImage() {
		fmt.Fprintf(sb, "![%s](%s)\n\n", att.Filename, ref)
	} else {
		fmt.Fprintf(sb, "[%s](%s)\n\n", att.Filename, ref)
	}
	fmt.Fprintf(sb, "*%s, %d bytes*\n", att.ContentType, att.Filesize)
	if att.Description != "" {
		fmt.Fprintf(sb, "\n%s\n", att.Description)
	}

	if g.skipExtraction {
		return
	}
	local := g.AttachmentPath(project, att)
	if _, err := os.Stat(local); err != nil {
		return // never downloaded
	}
	ex := g.factory.Process(local, att.ContentType)
	if ex.Err != nil {
		g.log.Warn().Str("attachment", att.Filename).Err(ex.Err).
			Msg("attachment extraction failed")
		return
	}
	if ex.Text == "" {
		return
	}
	if ex.Method == "csv" {
		fmt.Fprintf(sb, "\n%s\n", ex.Text)
	} else {
		fmt.Fprintf(sb, "\n```\n%s\n```\n", ex.Text)
	}
}

func writeFrontMatter(sb *strings.Builder, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("export: marshal front matter: %w", err)
	}
	sb.WriteString("---\n")
	sb.Write(data)
	sb.WriteString("---\n\n")
	return nil
}

func writeDocument(path, doc string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("export: write document: %w", err)
	}
	return nil
}

// journalsWithNotes filters out status-change-only journal entries.
func journalsWithNotes(journals []redmine.Journal) []redmine.Journal {
	var out []redmine.Journal
	for _, j := range journals {
		if strings.TrimSpace(j.Notes) != "" {
			out = append(out, j)
		}
	}
	return out
}

// SanitizeFilename makes a string safe to use as a single path element.
func SanitizeFilename(name string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r >= 0x80:
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				sb.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	out := strings.Trim(sb.String(), "._")
	if out == "" {
		return "untitled"
	}
	return out
}
