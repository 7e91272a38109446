package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/rgonek/redmine-md-exporter/config"
	"github.com/rgonek/redmine-md-exporter/export"
	"github.com/rgonek/redmine-md-exporter/redmine"
	"github.com/rgonek/redmine-md-exporter/state"
	"github.com/rgonek/redmine-md-exporter/textile"
)

const (
	modeFull        = "full"
	modeIncremental = "incremental"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: rmx <command> [options]

Commands:
  fetch          Export issues and wiki pages to Markdown
  list-projects  List projects visible to the configured API key
  convert        Convert a Textile file to Markdown

Run "rmx <command> --help" for command options.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "fetch":
		err = runFetch(os.Args[2:])
	case "list-projects":
		err = runListProjects(os.Args[2:])
	case "convert":
		err = runConvert(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. With format "auto" the console
// writer is used when stderr is a terminal, JSON otherwise.
func newLogger(cfg config.Logging) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	format := cfg.Format
	if format == "" || format == "auto" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "console"
		} else {
			format = "json"
		}
	}

	var w io.Writer = os.Stderr
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// engineConfig maps the processing section onto the converter options.
// Invalid values are left for the converter's own validation to reject.
func engineConfig(p config.Processing) textile.Config {
	cfg := textile.Config{LanguageMap: p.LanguageMap}
	if p.UnderlineStyle != "" {
		cfg.UnderlineStyle = textile.UnderlineStyle(p.UnderlineStyle)
	}
	return cfg
}

// selectProjects narrows an output's project list to the --projects flag,
// or returns it unchanged when the flag is empty.
func selectProjects(configured, requested []string) []string {
	if len(requested) == 0 {
		return configured
	}
	want := make(map[string]bool, len(requested))
	for _, p := range requested {
		want[p] = true
	}
	var out []string
	for _, p := range configured {
		if want[p] {
			out = append(out, p)
		}
	}
	return out
}

type fetchOptions struct {
	incremental     bool
	skipAttachments bool
	skipWiki        bool
	subprojects     bool
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	configPath := fs.String("config", "config.yml", "Path to configuration file")
	mode := fs.String("mode", modeFull, "Fetch mode: full|incremental")
	projects := fs.StringSlice("projects", nil, "Restrict to these project identifiers")
	skipAttachments := fs.Bool("skip-attachments", false, "Do not download attachments")
	skipWiki := fs.Bool("skip-wiki", false, "Do not export wiki pages")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mode != modeFull && *mode != modeIncremental {
		return fmt.Errorf("unknown mode %q (allowed: full, incremental)", *mode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Logging)

	client, err := redmine.NewClient(cfg.Redmine.URL, cfg.Redmine.APIKey)
	if err != nil {
		return err
	}
	store, err := state.Open(cfg.State.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, out := range cfg.Outputs {
		genOpts := []export.GeneratorOption{export.WithLogger(log)}
		if *skipAttachments || cfg.Processing.SkipAttachments {
			genOpts = append(genOpts, export.WithoutExtraction())
		}
		gen, err := export.NewGenerator(out.Path, engineConfig(cfg.Processing), genOpts...)
		if err != nil {
			return err
		}

		opts := fetchOptions{
			incremental:     *mode == modeIncremental,
			skipAttachments: *skipAttachments || cfg.Processing.SkipAttachments,
			skipWiki:        *skipWiki || cfg.Processing.SkipWiki,
			subprojects:     out.IncludeSubprojects,
		}
		for _, project := range selectProjects(out.Projects, *projects) {
			if err := fetchProject(ctx, log, client, store, gen, project, opts); err != nil {
				return fmt.Errorf("project %s: %w", project, err)
			}
		}
	}
	return nil
}

func fetchProject(ctx context.Context, log zerolog.Logger, client *redmine.Client,
	store *state.Store, gen *export.Generator, project string, opts fetchOptions) error {

	prev, known, err := store.Get(project)
	if err != nil {
		return err
	}
	next := prev
	next.Project = project
	next.LastRun = time.Now().UTC()

	filter := redmine.IssueFilter{Project: project, IncludeSubprojects: opts.subprojects}
	if opts.incremental && known {
		filter.UpdatedSince = prev.LastIssueUpdated
	}

	issues := 0
	err = client.EachIssue(ctx, filter, func(issue redmine.Issue) error {
		if !opts.skipAttachments {
			for _, att := range issue.Attachments {
				if err := downloadAttachment(ctx, client, gen, project, att); err != nil {
					log.Warn().Int("issue", issue.ID).Str("attachment", att.Filename).
						Err(err).Msg("attachment download failed")
				}
			}
		}
		path, err := gen.SaveIssue(project, issue)
		if err != nil {
			return err
		}
		log.Debug().Int("issue", issue.ID).Str("path", path).Msg("issue exported")
		issues++
		if issue.UpdatedOn.After(next.LastIssueUpdated) {
			next.LastIssueUpdated = issue.UpdatedOn
		}
		return nil
	})
	if err != nil {
		return err
	}
	next.IssuesProcessed += issues

	wikiPages := 0
	if !opts.skipWiki {
		wikiPages, err = fetchWiki(ctx, log, client, gen, project, opts, prev, &next)
		if err != nil {
			return err
		}
	}

	log.Info().Str("project", project).Int("issues", issues).
		Int("wiki_pages", wikiPages).Msg("project exported")
	return store.Put(next)
}

func fetchWiki(ctx context.Context, log zerolog.Logger, client *redmine.Client,
	gen *export.Generator, project string, opts fetchOptions,
	prev state.ProjectState, next *state.ProjectState) (int, error) {

	index, err := client.WikiPages(ctx, project)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range index {
		if opts.incremental && !entry.UpdatedOn.After(prev.LastWikiUpdated) {
			continue
		}
		page, err := client.WikiPage(ctx, project, entry.Title)
		if err != nil {
			return count, err
		}
		if !opts.skipAttachments {
			for _, att := range page.Attachments {
				if err := downloadAttachment(ctx, client, gen, project, att); err != nil {
					log.Warn().Str("page", page.Title).Str("attachment", att.Filename).
						Err(err).Msg("attachment download failed")
				}
			}
		}
		path, err := gen.SaveWikiPage(project, page)
		if err != nil {
			return count, err
		}
		log.Debug().Str("page", page.Title).Str("path", path).Msg("wiki page exported")
		count++
		if page.UpdatedOn.After(next.LastWikiUpdated) {
			next.LastWikiUpdated = page.UpdatedOn
		}
	}
	next.WikiPagesProcessed += count
	return count, nil
}

// downloadAttachment streams an attachment to its on-disk location,
// skipping files already present from a previous run.
func downloadAttachment(ctx context.Context, client *redmine.Client,
	gen *export.Generator, project string, att redmine.Attachment) error {

	path := gen.AttachmentPath(project, att)
	if info, err := os.Stat(path); err == nil && info.Size() == att.Filesize {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := client.DownloadAttachment(ctx, att.ContentURL, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func runListProjects(args []string) error {
	fs := flag.NewFlagSet("list-projects", flag.ContinueOnError)
	configPath := fs.String("config", "config.yml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	client, err := redmine.NewClient(cfg.Redmine.URL, cfg.Redmine.APIKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projects, err := client.Projects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Printf("%-30s %s\n", p.Identifier, p.Name)
	}
	return nil
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	output := fs.String("output", "", "Write Markdown here instead of stdout")
	underline := fs.String("underline", "html", "Underline style: html|bold|ignore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rmx convert [options] <textile-file>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	conv, err := textile.New(textile.Config{UnderlineStyle: textile.UnderlineStyle(*underline)})
	if err != nil {
		return err
	}
	result := conv.Convert(string(data), nil)
	for _, name := range result.Unresolved {
		fmt.Fprintf(os.Stderr, "Warning: unresolved attachment %q\n", name)
	}

	if *output == "" {
		fmt.Println(result.Markdown)
		return nil
	}
	return os.WriteFile(*output, []byte(result.Markdown+"\n"), 0o644)
}
