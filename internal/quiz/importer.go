package quiz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/quizhall/internal/model"
)

// ErrInvalidDocument is returned when an import document is not a JSON array.
var ErrInvalidDocument = errors.New("import document must be a JSON array of questions")

// ImportReport summarizes a question import.
type ImportReport struct {
	Imported        int  `json:"imported"`
	Skipped         int  `json:"skipped"`
	AlreadyImported bool `json:"alreadyImported,omitempty"`
}

// ImportQuestions adds the questions of a JSON array document to the bank,
// attached to category. Items without text or type, or with an answer that
// does not fit their type, are skipped.
func ImportQuestions(ctx context.Context, qs QuestionStore, data []byte, category model.Category) (ImportReport, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return ImportReport{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var report ImportReport
	for i, raw := range items {
		var head struct {
			Text string `json:"text"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.Text == "" || head.Type == "" {
			slog.Warn("skipping question without text or type", "index", i)
			report.Skipped++
			continue
		}
		var q model.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			slog.Warn("skipping malformed question", "index", i, "error", err)
			report.Skipped++
			continue
		}
		q.ID = ""
		q.CreatedAt = time.Time{}
		q.CategoryID = category.ID
		q.CategoryName = category.Name
		if err := qs.CreateQuestion(ctx, &q); err != nil {
			return report, fmt.Errorf("create question %d: %w", i, err)
		}
		report.Imported++
	}
	slog.Info("questions imported", "category", category.Name,
		"imported", report.Imported, "skipped", report.Skipped)
	return report, nil
}

// ImportOnce imports data unless a document with the same content was
// imported before. The content hash is kept in the ledger.
func ImportOnce(ctx context.Context, repo Repository, data []byte, category model.Category, force bool) (ImportReport, error) {
	sum := sha256.Sum256(data)
	key := "import:" + hex.EncodeToString(sum[:])
	if !force {
		prev, err := repo.GetMetadata(ctx, key)
		if err != nil {
			return ImportReport{}, fmt.Errorf("check import ledger: %w", err)
		}
		if prev != "" {
			slog.Info("document already imported", "at", prev)
			return ImportReport{AlreadyImported: true}, nil
		}
	}
	report, err := ImportQuestions(ctx, repo, data, category)
	if err != nil {
		return report, err
	}
	if err := repo.SetMetadata(ctx, key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return report, fmt.Errorf("record import: %w", err)
	}
	return report, nil
}

// ExportQuestions returns the whole bank as an indented JSON array in the
// import format.
func ExportQuestions(ctx context.Context, qs QuestionStore) ([]byte, error) {
	questions, err := qs.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return json.MarshalIndent(questions, "", "  ")
}

// CategoryByName returns the category called name, creating it if needed.
func CategoryByName(ctx context.Context, cs CategoryStore, name string) (model.Category, error) {
	c, err := cs.GetCategoryByName(ctx, name)
	if err == nil {
		return c, nil
	}
	if !isNotFound(err) {
		return model.Category{}, fmt.Errorf("get category: %w", err)
	}
	c = model.Category{Name: name}
	if err := cs.CreateCategory(ctx, &c); err != nil {
		return model.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}
