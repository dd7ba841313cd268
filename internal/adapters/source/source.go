// Package source loads raw observation records from files and databases.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/okian/abbayes/internal/domain/model"
)

// Column names of the input contract.
const (
	ColTreat       = "treat"
	ColArmID       = "arm_id"
	ColConversions = "conversions"
	ColTrials      = "trials"
)

// Columns lists the required columns in canonical order.
var Columns = []string{ColTreat, ColArmID, ColConversions, ColTrials}

// DefaultTable is the SQLite table read when none is configured.
const DefaultTable = "observations"

// Format names a supported input encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// ErrUnsupportedFormat is returned when a path's format cannot be detected.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Source yields the raw records of one data set.
type Source interface {
	Records(ctx context.Context) ([]model.Record, error)
}

// Detect derives the format from a file extension.
func Detect(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
}

// Open returns the source for path. The format comes from WithFormat or, by
// default, from the extension.
func Open(path string, opts ...Option) (Source, error) {
	cfg := options{table: DefaultTable}
	for _, opt := range opts {
		opt(&cfg)
	}
	format := cfg.format
	if format == "" {
		f, err := Detect(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	switch format {
	case FormatCSV:
		return &fileSource{path: path, decode: DecodeCSV}, nil
	case FormatJSON:
		return &fileSource{path: path, decode: DecodeJSON}, nil
	case FormatSQLite:
		if !validIdent(cfg.table) {
			return nil, fmt.Errorf("invalid table name %q", cfg.table)
		}
		return &sqliteSource{path: path, table: cfg.table}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Load opens path and reads every record.
func Load(ctx context.Context, path string, opts ...Option) ([]model.Record, error) {
	src, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return src.Records(ctx)
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
