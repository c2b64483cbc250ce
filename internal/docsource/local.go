package docsource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/earthquery/internal/search"
)

// LoadPath loads a local corpus file. JSON files are decoded and normalized
// like the remote corpus; PDFs become one document per page, with the page's
// plain text as content and a placeholder embedding.
func LoadPath(path string) ([]search.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSON(path)
	case ".pdf":
		return loadPDF(path)
	default:
		return nil, fmt.Errorf("unsupported corpus file type %q", filepath.Ext(path))
	}
}

func loadJSON(path string) ([]search.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()

	var raws []rawDocument
	if err := json.NewDecoder(f).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decoding corpus file %s: %w", path, err)
	}
	return Normalize(raws), nil
}

func loadPDF(path string) ([]search.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	var docs []search.Document
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting text from page %d of %s: %w", i, path, err)
		}
		docs = append(docs, search.Document{
			ID:         strconv.Itoa(i),
			PageChunk:  text,
			Embedding:  placeholderEmbedding(),
			PageNumber: i,
		})
	}
	return docs, nil
}
