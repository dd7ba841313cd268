// Package model contains the domain types passed between pipeline stages.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ArmID is a categorical arm identifier. JSON accepts strings and numbers.
type ArmID string

// UnmarshalJSON accepts "a", 7 and 7.0 alike.
func (a *ArmID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = ArmID(s)
		return nil
	}
	id, ok := NumericArmID(string(b))
	if !ok {
		return fmt.Errorf("%w: arm_id must be a string or a number, got %s", ErrSchema, b)
	}
	*a = id
	return nil
}

// NumericArmID canonicalises an arm id written as a number literal, so the
// same arm reads alike from every storage format. Whole numbers in the int64
// range print as integers ("7.0" becomes "7"); any other number keeps its
// literal text. ok is false when text is not a number literal.
func NumericArmID(text string) (id ArmID, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" || !json.Valid([]byte(text)) || (text[0] != '-' && (text[0] < '0' || text[0] > '9')) {
		return "", false
	}
	n := json.Number(text)
	if i, err := n.Int64(); err == nil {
		return ArmID(strconv.FormatInt(i, 10)), true
	}
	f, err := n.Float64()
	if err == nil && f == math.Trunc(f) && math.Abs(f) < maxExactInt64 {
		return ArmID(strconv.FormatInt(int64(f), 10)), true
	}
	return ArmID(text), true
}

// maxExactInt64 is 2^63; float64 values below it in magnitude convert to
// int64 without overflow.
const maxExactInt64 = 1 << 63

// TreatFlag converts a numeric treatment flag read from storage. Whole
// values such as 1.0 are accepted; the 0/1 range is checked by validation.
func TreatFlag(f float64) (int, error) {
	if math.IsNaN(f) || f != math.Trunc(f) || math.Abs(f) >= maxExactInt64 {
		return 0, fmt.Errorf("%w: treat %v is not an integer", ErrSchema, f)
	}
	return int(f), nil
}

// Record is one raw input row as read from storage. Pointer fields let the
// validator tell a missing column from a zero.
type Record struct {
	Treat       *int     `json:"treat" validate:"required,oneof=0 1"`
	ArmID       ArmID    `json:"arm_id" validate:"required"`
	Conversions *float64 `json:"conversions" validate:"required"`
	Trials      *float64 `json:"trials" validate:"required"`
}

// UnmarshalJSON reads treat as a number so 1 and 1.0 agree with the CSV and
// SQLite readers. Type mismatches wrap ErrSchema.
func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	aux := struct {
		Treat *float64 `json:"treat"`
		*plain
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	r.Treat = nil
	if aux.Treat != nil {
		t, err := TreatFlag(*aux.Treat)
		if err != nil {
			return err
		}
		r.Treat = &t
	}
	return nil
}

// NewRecord builds a complete record.
func NewRecord(treat int, armID string, conversions, trials float64) Record {
	return Record{Treat: &treat, ArmID: ArmID(armID), Conversions: &conversions, Trials: &trials}
}

// Observation is a schema-valid record with whole-number counts. Counts may
// still be logically impossible; the aggregator checks that.
type Observation struct {
	Treat       int
	ArmID       string
	Conversions int64
	Trials      int64
}

// ArmKey identifies an aggregate.
type ArmKey struct {
	Treat int    `json:"treat"`
	ArmID string `json:"arm_id"`
}

func (k ArmKey) String() string {
	return fmt.Sprintf("arm %s (treat=%d)", k.ArmID, k.Treat)
}

// ArmAggregate holds the sufficient statistics of one arm.
type ArmAggregate struct {
	Key         ArmKey   `json:"key"`
	Trials      int64    `json:"trials"`
	Conversions int64    `json:"conversions"`
	Utility     *float64 `json:"utility,omitempty"`
}

// WithUtility returns a copy carrying the given payoff per conversion.
func (a ArmAggregate) WithUtility(u float64) ArmAggregate {
	a.Utility = &u
	return a
}
