package source

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/okian/abbayes/internal/domain/model"
)

// EncodeCSV writes records with a header row in canonical column order.
// Unset fields become empty cells.
func EncodeCSV(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	row := make([]string, len(Columns))
	for _, r := range records {
		row[0] = ""
		if r.Treat != nil {
			row[0] = strconv.Itoa(*r.Treat)
		}
		row[1] = string(r.ArmID)
		row[2] = formatCount(r.Conversions)
		row[3] = formatCount(r.Trials)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// EncodeJSON writes one record per line, the newline-delimited form
// DecodeJSON accepts.
func EncodeJSON(w io.Writer, records []model.Record) error {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
	}
	return nil
}

// Write stores records at path in the given format, or in the format the
// extension implies when f is empty.
func Write(ctx context.Context, path string, f Format, records []model.Record, opts ...Option) (err error) {
	cfg := options{table: DefaultTable}
	for _, opt := range opts {
		opt(&cfg)
	}
	if f == "" {
		if f, err = Detect(path); err != nil {
			return err
		}
	}

	var encode func(io.Writer, []model.Record) error
	switch f {
	case FormatSQLite:
		return WriteSQLite(ctx, path, cfg.table, records)
	case FormatCSV:
		encode = EncodeCSV
	case FormatJSON:
		encode = EncodeJSON
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { err = errors.Join(err, out.Close()) }()
	return encode(out, records)
}
