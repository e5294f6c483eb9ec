package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// LoadDocuments reads every supported document under dir, sorted by path for
// deterministic ingestion order. Subdirectories are walked; unsupported file
// types are skipped. An empty document set is an error because ingesting
// nothing always means a misconfigured docs directory.
func LoadDocuments(dir string, logger *slog.Logger) ([]*model.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, helper.NewError("reading docs directory", err)
	}
	if !info.IsDir() {
		return nil, helper.NewError("reading docs directory", fmt.Errorf("%s is not a directory", dir))
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, helper.NewError("walking docs directory", err)
	}

	if len(paths) == 0 {
		return nil, helper.NewError("loading documents", fmt.Errorf("no .txt or .md documents found in %s", dir))
	}
	sort.Strings(paths)

	documents := make([]*model.Document, 0, len(paths))
	for _, path := range paths {
		document, err := model.NewDocumentFromFile(path, model.Metadata{})
		if err != nil {
			return nil, helper.NewError("loading document", err)
		}
		documents = append(documents, document)

		if logger != nil {
			logger.Info("loaded document",
				slog.String("source", document.Source),
				slog.Int("bytes", len(document.Content)))
		}
	}

	return documents, nil
}
