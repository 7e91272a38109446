package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgonek/redmine-md-exporter/redmine"
	"github.com/rgonek/redmine-md-exporter/textile"
)

func newTestGenerator(t *testing.T, opts ...GeneratorOption) *Generator {
	t.Helper()
	g, err := NewGenerator(t.TempDir(), textile.Config{}, opts...)
	require.NoError(t, err)
	return g
}

func sampleIssue() redmine.Issue {
	return redmine.Issue{
		ID:          42,
		Project:     redmine.Named{ID: 1, Name: "Alpha"},
		Tracker:     redmine.Named{ID: 1, Name: "Bug"},
		Status:      redmine.Named{ID: 2, Name: "Resolved"},
		Priority:    redmine.Named{ID: 3, Name: "High"},
		Author:      redmine.Named{ID: 4, Name: "Reporter"},
		AssignedTo:  &redmine.Named{ID: 5, Name: "Dev"},
		Subject:     "Crash on save",
		Description: "h2. Steps\n\n* open editor\n* press *save*",
		DoneRatio:   100,
		CreatedOn:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		UpdatedOn:   time.Date(2024, 5, 2, 11, 30, 0, 0, time.UTC),
	}
}

func TestRenderIssueFrontMatterRoundTrip(t *testing.T) {
	g := newTestGenerator(t)

	doc, err := g.RenderIssue("alpha", sampleIssue())
	require.NoError(t, err)

	var fm struct {
		ID         int    `yaml:"id"`
		Project    string `yaml:"project"`
		Tracker    string `yaml:"tracker"`
		Status     string `yaml:"status"`
		Priority   string `yaml:"priority"`
		Subject    string `yaml:"subject"`
		Author     string `yaml:"author"`
		AssignedTo string `yaml:"assigned_to"`
		DoneRatio  int    `yaml:"done_ratio"`
		CreatedOn  string `yaml:"created_on"`
	}
	body, err := frontmatter.Parse(strings.NewReader(doc), &fm)
	require.NoError(t, err)

	assert.Equal(t, 42, fm.ID)
	assert.Equal(t, "Alpha", fm.Project)
	assert.Equal(t, "Bug", fm.Tracker)
	assert.Equal(t, "Resolved", fm.Status)
	assert.Equal(t, "High", fm.Priority)
	assert.Equal(t, "Crash on save", fm.Subject)
	assert.Equal(t, "Reporter", fm.Author)
	assert.Equal(t, "Dev", fm.AssignedTo)
	assert.Equal(t, 100, fm.DoneRatio)
	assert.Equal(t, "2024-05-01T10:00:00Z", fm.CreatedOn)

	text := string(body)
	assert.Contains(t, text, "# Issue #42: Crash on save")
	assert.Contains(t, text, "## Steps")
	assert.Contains(t, text, "- press **save**")
}

func TestRenderIssueConvertsJournals(t *testing.T) {
	g := newTestGenerator(t)
	issue := sampleIssue()
	issue.Journals = []redmine.Journal{
		{ID: 1, User: redmine.Named{Name: "Dev"}, Notes: "",
			CreatedOn: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{ID: 2, User: redmine.Named{Name: "Dev"}, Notes: "fixed in @rev123@",
			CreatedOn: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
	}

	doc, err := g.RenderIssue("alpha", issue)
	require.NoError(t, err)

	assert.Contains(t, doc, "## History")
	assert.Contains(t, doc, "### Dev (2024-05-02 09:00)")
	assert.Contains(t, doc, "fixed in `rev123`")
	// The notes-free status-change entry is dropped.
	assert.NotContains(t, doc, "2024-05-01 12:00")
}

func TestRenderIssueLinksAttachments(t *testing.T) {
	g := newTestGenerator(t)
	issue := sampleIssue()
	issue.Description = "See !screenshot.png! for details."
	issue.Attachments = []redmine.Attachment{
		{ID: 7, Filename: "screenshot.png", Filesize: 2048, ContentType: "image/png"},
		{ID: 8, Filename: "screen shot 2.png", Filesize: 1024, ContentType: "image/png"},
	}

	doc, err := g.RenderIssue("alpha", issue)
	require.NoError(t, err)

	// The macro resolves against the on-disk name.
	assert.Contains(t, doc, "![screenshot.png](../attachments/7_screenshot.png)")
	// The attachment sections preview the images and list their metadata;
	// awkward filenames are sanitized in the link target only.
	assert.Contains(t, doc, "### screenshot.png")
	assert.Contains(t, doc, "*image/png, 2048 bytes*")
	assert.Contains(t, doc, "![screen shot 2.png](../attachments/8_screen_shot_2.png)")
}

func TestRenderIssueInlinesExtractedText(t *testing.T) {
	g := newTestGenerator(t)
	issue := sampleIssue()
	issue.Attachments = []redmine.Attachment{
		{ID: 9, Filename: "trace.log", Filesize: 11, ContentType: "text/plain"},
	}

	local := g.AttachmentPath("alpha", issue.Attachments[0])
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0o755))
	require.NoError(t, os.WriteFile(local, []byte("panic: oops"), 0o644))

	doc, err := g.RenderIssue("alpha", issue)
	require.NoError(t, err)
	assert.Contains(t, doc, "```\npanic: oops\n```")
}

func TestRenderIssueSkipsExtractionWhenDisabled(t *testing.T) {
	g := newTestGenerator(t, WithoutExtraction())
	issue := sampleIssue()
	issue.Attachments = []redmine.Attachment{
		{ID: 9, Filename: "trace.log", Filesize: 11, ContentType: "text/plain"},
	}

	local := g.AttachmentPath("alpha", issue.Attachments[0])
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0o755))
	require.NoError(t, os.WriteFile(local, []byte("panic: oops"), 0o644))

	doc, err := g.RenderIssue("alpha", issue)
	require.NoError(t, err)
	assert.Contains(t, doc, "[trace.log](../attachments/9_trace.log)")
	assert.NotContains(t, doc, "panic: oops")
}

func TestSaveIssueWritesPaddedPath(t *testing.T) {
	g := newTestGenerator(t)

	path, err := g.SaveIssue("alpha", sampleIssue())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(g.root, "alpha", "issues", "000042.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "---\n"))
}

func TestSaveWikiPageSanitizesTitle(t *testing.T) {
	g := newTestGenerator(t)
	page := redmine.WikiPage{
		Title:     "Setup / Install Guide",
		Text:      "h1. Install\n\nRun the installer.",
		Version:   3,
		Author:    redmine.Named{Name: "Writer"},
		CreatedOn: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedOn: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	path, err := g.SaveWikiPage("alpha", page)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.root, "alpha", "wiki", "Setup_Install_Guide.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fm struct {
		Title   string `yaml:"title"`
		Project string `yaml:"project"`
		Version int    `yaml:"version"`
		Author  string `yaml:"author"`
	}
	body, err := frontmatter.Parse(strings.NewReader(string(data)), &fm)
	require.NoError(t, err)

	assert.Equal(t, "Setup / Install Guide", fm.Title)
	assert.Equal(t, "alpha", fm.Project)
	assert.Equal(t, 3, fm.Version)
	assert.Equal(t, "Writer", fm.Author)
	assert.Contains(t, string(body), "# Setup / Install Guide")
	assert.Contains(t, string(body), "Run the installer.")
}

func TestRenderWikiPageParent(t *testing.T) {
	g := newTestGenerator(t)
	page := redmine.WikiPage{Title: "Child", Text: "body"}
	page.Parent = &struct {
		Title string `json:"title"`
	}{Title: "Root"}

	doc, err := g.RenderWikiPage("alpha", page)
	require.NoError(t, err)
	assert.Contains(t, doc, "parent: Root")
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"trace.log", "trace.log"},
		{"screen shot.png", "screen_shot.png"},
		{"a/b\\c:d", "a_b_c_d"},
		{"..hidden", "hidden"},
		{"résumé.pdf", "résumé.pdf"},
		{"///", "untitled"},
		{"many   spaces", "many_spaces"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), tc.in)
	}
}
