// Package synthetic generates reproducible observation data for demos and
// end-to-end checks.
package synthetic

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Defaults of a generated experiment.
const (
	DefaultUnits         = 100
	DefaultTrialsPerUnit = 10
	DefaultSeed          = 12345
)

// ErrInvalidArm is returned for an arm that cannot be simulated.
var ErrInvalidArm = errors.New("invalid arm")

// Arm is one simulated experiment arm with its true conversion rate.
type Arm struct {
	Treat int
	ArmID string
	Rate  float64
}

func (a Arm) validate() error {
	switch {
	case a.Treat != 0 && a.Treat != 1:
		return fmt.Errorf("%w: treat must be 0 or 1, got %d", ErrInvalidArm, a.Treat)
	case a.ArmID == "":
		return fmt.Errorf("%w: empty arm id", ErrInvalidArm)
	case math.IsNaN(a.Rate) || a.Rate < 0 || a.Rate > 1:
		return fmt.Errorf("%w: arm %s rate must be in [0, 1], got %v", ErrInvalidArm, a.ArmID, a.Rate)
	}
	return nil
}

// ParseArm reads "treat:arm_id:rate", e.g. "1:1:0.06".
func ParseArm(s string) (Arm, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Arm{}, fmt.Errorf("%w: %q is not treat:arm_id:rate", ErrInvalidArm, s)
	}
	treat, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Arm{}, fmt.Errorf("%w: treat %q: %w", ErrInvalidArm, parts[0], err)
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return Arm{}, fmt.Errorf("%w: rate %q: %w", ErrInvalidArm, parts[2], err)
	}
	a := Arm{Treat: treat, ArmID: strings.TrimSpace(parts[1]), Rate: rate}
	return a, a.validate()
}

// Config holds the shape of a generated data set.
type Config struct {
	Arms          []Arm
	Units         int // rows per arm
	TrialsPerUnit int
	Seed          uint64
}

// DefaultConfig is the two-arm experiment used throughout the docs: 5% and 6%
// true conversion with 1000 trials per arm.
func DefaultConfig() Config {
	return Config{
		Arms: []Arm{
			{Treat: 0, ArmID: "0", Rate: 0.05},
			{Treat: 1, ArmID: "1", Rate: 0.06},
		},
		Units:         DefaultUnits,
		TrialsPerUnit: DefaultTrialsPerUnit,
		Seed:          DefaultSeed,
	}
}
