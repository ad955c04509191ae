// Package migrate exports local records to a backup file and imports them
// back as new pending rows.
package migrate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/fintrack/internal/model"
	"gopkg.in/yaml.v3"
)

// Format is the on-disk layout of an export.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "jsonl", "json":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want jsonl or yaml)", s)
	}
}

// FormatForPath guesses the format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

// ErrEmptyExport is returned when an export with no records would replace a
// non-empty file.
var ErrEmptyExport = errors.New("refusing to overwrite non-empty export with zero records")

// Source is the read side of the local store.
type Source interface {
	ListTransactionsContext(ctx context.Context, userID int64) ([]*model.Transaction, error)
	ListGoalsContext(ctx context.Context, userID int64) ([]*model.Goal, error)
}

// Sink is the write side of the local store.
type Sink interface {
	CreateTransactionContext(ctx context.Context, tx *model.Transaction) (int64, error)
	CreateGoalContext(ctx context.Context, g *model.Goal) (int64, error)
}

// Entry is one JSONL line.
type Entry struct {
	Kind   model.Entity    `json:"kind"`
	Record json.RawMessage `json:"record"`
}

// Document is the YAML layout.
type Document struct {
	Transactions []*model.Transaction `yaml:"transactions"`
	Goals        []*model.Goal        `yaml:"goals"`
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	Transactions int
	Goals        int
	Path         string
}

// Export writes every local record of userID to path.
func Export(ctx context.Context, src Source, userID int64, path string, format Format) (*ExportResult, error) {
	txs, err := src.ListTransactionsContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	goals, err := src.ListGoalsContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}

	if len(txs)+len(goals) == 0 {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrEmptyExport)
		}
	}

	var data []byte
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(&Document{Transactions: txs, Goals: goals})
	case FormatJSONL:
		data, err = encodeJSONL(txs, goals)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}

	return &ExportResult{Transactions: len(txs), Goals: len(goals), Path: path}, nil
}

func encodeJSONL(txs []*model.Transaction, goals []*model.Goal) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	write := func(kind model.Entity, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return enc.Encode(Entry{Kind: kind, Record: raw})
	}

	for _, tx := range txs {
		if err := write(model.EntityTransaction, tx); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tx.LocalID, err)
		}
	}
	for _, g := range goals {
		if err := write(model.EntityGoal, g); err != nil {
			return nil, fmt.Errorf("goal %d: %w", g.LocalID, err)
		}
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Options contains configuration for an import.
type Options struct {
	DryRun bool // Parse and validate without writing
}

// Result contains statistics about an import.
type Result struct {
	Transactions int
	Goals        int
	Errors       []string
}

// Import reads a backup and inserts each record as a new pending row owned
// by userID. Remote ids and sync flags in the file are discarded so the next
// push uploads the records again.
//
// Records that fail validation or insertion are reported in Result.Errors
// and skipped. A file that cannot be parsed fails the whole import.
func Import(ctx context.Context, dst Sink, userID int64, path string, opts Options) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	var (
		txs   []*model.Transaction
		goals []*model.Goal
	)
	switch FormatForPath(path) {
	case FormatYAML:
		var doc Document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		txs, goals = doc.Transactions, doc.Goals
	default:
		txs, goals, err = decodeJSONL(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
	}

	result := &Result{}

	for _, src := range txs {
		tx := &model.Transaction{
			OwnerUserID: userID,
			Amount:      src.Amount,
			Description: src.Description,
			Kind:        src.Kind,
			Category:    src.Category,
			OccurredAt:  src.OccurredAt,
		}
		if err := tx.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("transaction %d: %v", src.LocalID, err))
			continue
		}
		if !opts.DryRun {
			if _, err := dst.CreateTransactionContext(ctx, tx); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("transaction %d: %v", src.LocalID, err))
				continue
			}
		}
		result.Transactions++
	}

	for _, src := range goals {
		g := &model.Goal{
			OwnerUserID:  userID,
			TargetAmount: src.TargetAmount,
			TargetMonth:  src.TargetMonth,
			TargetYear:   src.TargetYear,
			CreatedAt:    src.CreatedAt,
		}
		if err := g.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("goal %d: %v", src.LocalID, err))
			continue
		}
		if !opts.DryRun {
			if _, err := dst.CreateGoalContext(ctx, g); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("goal %d: %v", src.LocalID, err))
				continue
			}
		}
		result.Goals++
	}

	return result, nil
}

func decodeJSONL(r io.Reader) ([]*model.Transaction, []*model.Goal, error) {
	var (
		txs   []*model.Transaction
		goals []*model.Goal
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		switch entry.Kind {
		case model.EntityTransaction:
			var tx model.Transaction
			if err := json.Unmarshal(entry.Record, &tx); err != nil {
				return nil, nil, fmt.Errorf("invalid transaction at line %d: %w", lineNum, err)
			}
			txs = append(txs, &tx)
		case model.EntityGoal:
			var g model.Goal
			if err := json.Unmarshal(entry.Record, &g); err != nil {
				return nil, nil, fmt.Errorf("invalid goal at line %d: %w", lineNum, err)
			}
			goals = append(goals, &g)
		default:
			return nil, nil, fmt.Errorf("unknown record kind %q at line %d", entry.Kind, lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read backup: %w", err)
	}

	return txs, goals, nil
}
