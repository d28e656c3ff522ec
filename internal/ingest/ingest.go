// Package ingest loads guideline documents into the knowledge base:
// text extraction, chunking, then concurrent chunk upload.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// chunkSize is the target chunk length in characters. Chunks break on
// paragraph boundaries where possible.
const chunkSize = 2000

// uploadConcurrency bounds simultaneous chunk uploads.
const uploadConcurrency = 4

// Uploader indexes one chunk into the knowledge base.
type Uploader interface {
	UploadDoc(ctx context.Context, docID, source, text string) error
}

// Ingester extracts, chunks, and uploads documents.
type Ingester struct {
	uploader Uploader
}

func New(uploader Uploader) *Ingester {
	return &Ingester{uploader: uploader}
}

// IngestFile loads one .pdf or .txt file into the knowledge base and
// returns the number of chunks uploaded.
func (i *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	var text string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = extractPDF(path)
	case ".txt", ".md":
		var raw []byte
		raw, err = os.ReadFile(path)
		text = string(raw)
	default:
		return 0, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return 0, fmt.Errorf("extracting %s: %w", path, err)
	}

	chunks := chunk(text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no extractable text in %s", path)
	}

	source := filepath.Base(path)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for n, c := range chunks {
		g.Go(func() error {
			docID := fmt.Sprintf("%s-%03d-%s", strings.TrimSuffix(source, filepath.Ext(source)), n, uuid.NewString()[:8])
			if err := i.uploader.UploadDoc(ctx, docID, source, c); err != nil {
				return fmt.Errorf("uploading chunk %d: %w", n, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	slog.Info("document ingested", "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for p := 1; p <= r.NumPage(); p++ {
		page := r.Page(p)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable page", "path", path, "page", p, "error", err)
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// chunk splits text into chunkSize pieces, preferring paragraph breaks.
func chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)

		// A single oversized paragraph is split hard.
		for current.Len() > chunkSize {
			s := current.String()
			chunks = append(chunks, s[:chunkSize])
			current.Reset()
			current.WriteString(s[chunkSize:])
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
