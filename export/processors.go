package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Extracted is the outcome of running a processor over an attachment.
// Extraction failures are carried in Err; a processor never panics and
// never aborts an export.
type Extracted struct {
	Text     string
	Method   string
	Metadata map[string]string
	Err      error
}

// Processor extracts searchable text from an attachment on disk.
type Processor interface {
	Process(path string) Extracted
}

const (
	// maxTextBytes caps how much of a text attachment is inlined into the
	// generated document.
	maxTextBytes = 64 * 1024

	// maxCSVRows caps how many data rows of a CSV attachment become
	// Markdown table rows.
	maxCSVRows = 100
)

// CSVProcessor renders a CSV attachment as a Markdown table.
type CSVProcessor struct{}

func (CSVProcessor) Process(path string) Extracted {
	f, err := os.Open(path)
	if err != nil {
		return Extracted{Method: "csv", Err: fmt.Errorf("open attachment: %w", err)}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var sb strings.Builder
	rows := 0
	truncated := false
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Extracted{Method: "csv", Err: fmt.Errorf("parse csv: %w", err)}
		}
		if rows > maxCSVRows {
			truncated = true
			break
		}
		writeCSVRow(&sb, record)
		if rows == 0 {
			writeCSVSeparator(&sb, len(record))
		}
		rows++
	}
	if rows == 0 {
		return Extracted{Method: "csv", Metadata: map[string]string{"rows": "0"}}
	}

	meta := map[string]string{"rows": fmt.Sprint(rows)}
	if truncated {
		meta["truncated"] = "true"
	}
	return Extracted{Text: strings.TrimRight(sb.String(), "\n"), Method: "csv", Metadata: meta}
}

func writeCSVRow(sb *strings.Builder, record []string) {
	sb.WriteString("|")
	for _, cell := range record {
		sb.WriteString(" ")
		sb.WriteString(strings.ReplaceAll(strings.TrimSpace(cell), "|", "\\|"))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

func writeCSVSeparator(sb *strings.Builder, cols int) {
	sb.WriteString("|")
	for i := 0; i < cols; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
}

// TextProcessor passes plain-text attachments through, capped at
// maxTextBytes.
type TextProcessor struct{}

func (TextProcessor) Process(path string) Extracted {
	f, err := os.Open(path)
	if err != nil {
		return Extracted{Method: "text", Err: fmt.Errorf("open attachment: %w", err)}
	}
	defer f.Close()

	buf := make([]byte, maxTextBytes+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Extracted{Method: "text", Err: fmt.Errorf("read attachment: %w", err)}
	}

	meta := map[string]string{}
	if n > maxTextBytes {
		n = maxTextBytes
		meta["truncated"] = "true"
	}
	return Extracted{Text: strings.TrimRight(string(buf[:n]), "\n"), Method: "text", Metadata: meta}
}

// FallbackProcessor handles binaries, images and anything without a text
// extractor: it records file metadata and extracts nothing.
type FallbackProcessor struct{}

func (FallbackProcessor) Process(path string) Extracted {
	meta := map[string]string{"filename": filepath.Base(path)}
	if info, err := os.Stat(path); err == nil {
		meta["size"] = fmt.Sprint(info.Size())
	}
	return Extracted{Method: "none", Metadata: meta}
}

// Factory picks a processor by MIME type and caches extraction results by
// path, so incremental re-runs skip re-extraction.
type Factory struct {
	cache    *lru.Cache[string, Extracted]
	csv      Processor
	text     Processor
	fallback Processor
}

// NewFactory builds a factory with an LRU result cache of the given size.
func NewFactory(cacheSize int) (*Factory, error) {
	cache, err := lru.New[string, Extracted](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("export: build processor cache: %w", err)
	}
	return &Factory{
		cache:    cache,
		csv:      CSVProcessor{},
		text:     TextProcessor{},
		fallback: FallbackProcessor{},
	}, nil
}

// extTypes covers extensions Redmine attachments commonly carry with a
// missing or generic content type. mime.TypeByExtension alone is not
// enough: its table leaves out .txt and .csv on hosts without mime.types.
var extTypes = map[string]string{
	".txt":  "text/plain",
	".log":  "text/plain",
	".md":   "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/x-yaml",
	".yml":  "application/x-yaml",
}

// ProcessorFor resolves the processor for a content type, falling back to
// a guess from the filename extension when the type is missing or generic.
func (f *Factory) ProcessorFor(contentType, filename string) Processor {
	ct := normalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ext := strings.ToLower(filepath.Ext(filename))
		if known, ok := extTypes[ext]; ok {
			ct = known
		} else {
			ct = normalizeContentType(mime.TypeByExtension(ext))
		}
	}

	switch {
	case ct == "text/csv":
		return f.csv
	case strings.HasPrefix(ct, "text/"),
		ct == "application/json",
		ct == "application/xml",
		ct == "application/x-yaml":
		return f.text
	default:
		return f.fallback
	}
}

// Process runs the matching processor for the attachment at path, serving
// repeat calls for the same path from the cache.
func (f *Factory) Process(path, contentType string) Extracted {
	if cached, ok := f.cache.Get(path); ok {
		return cached
	}

	out := f.ProcessorFor(contentType, path).Process(path)
	if out.Err == nil {
		f.cache.Add(path, out)
	}
	return out
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
