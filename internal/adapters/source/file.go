package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/okian/abbayes/internal/domain/model"
)

type fileSource struct {
	path   string
	decode func(io.Reader) ([]model.Record, error)
}

func (s *fileSource) Records(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()
	return s.decode(f)
}

// DecodeCSV reads a CSV file with a header row. Column order is free and
// extra columns are ignored; a missing required column wraps
// model.ErrSchema. Empty cells leave the field unset.
func DecodeCSV(r io.Reader) ([]model.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty csv, expected header %s", model.ErrSchema, strings.Join(Columns, ","))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSchema, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	cols := make([]int, len(Columns))
	for i, c := range Columns {
		pos, ok := idx[c]
		if !ok {
			return nil, fmt.Errorf("%w: csv header lacks column %q", model.ErrSchema, c)
		}
		cols[i] = pos
	}

	var out []model.Record
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrSchema, err)
		}
		r, err := parseRow(rec[cols[0]], rec[cols[1]], rec[cols[2]], rec[cols[3]])
		if err != nil {
			return nil, fmt.Errorf("%w: csv row %d: %w", model.ErrSchema, row, err)
		}
		out = append(out, r)
	}
}

func parseRow(treat, arm, conv, trials string) (model.Record, error) {
	var r model.Record
	if s := strings.TrimSpace(treat); s != "" {
		t, err := parseTreat(s)
		if err != nil {
			return r, err
		}
		r.Treat = &t
	}
	r.ArmID = armID(arm)
	var err error
	if r.Conversions, err = parseCount(ColConversions, conv); err != nil {
		return r, err
	}
	if r.Trials, err = parseCount(ColTrials, trials); err != nil {
		return r, err
	}
	return r, nil
}

// parseTreat accepts "1" and "1.0".
func parseTreat(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", ColTreat, s)
	}
	return model.TreatFlag(f)
}

// armID reads numeric ids the way the JSON decoder does.
func armID(s string) model.ArmID {
	if id, ok := model.NumericArmID(s); ok {
		return id
	}
	return model.ArmID(strings.TrimSpace(s))
}

func parseCount(col, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not a number", col, s)
	}
	return &v, nil
}

// DecodeJSON reads either a JSON array of records or newline-delimited
// records. Type mismatches wrap model.ErrSchema.
func DecodeJSON(r io.Reader) ([]model.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if data[0] == '[' {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrSchema, err)
		}
	} else if data[0] != '{' {
		return nil, fmt.Errorf("%w: expected an array or objects", model.ErrSchema)
	}

	var out []model.Record
	for dec.More() {
		var rec model.Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", model.ErrSchema, len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
