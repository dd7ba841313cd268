package synthetic

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
)

// Generate returns Units rows per arm, each with TrialsPerUnit trials and a
// Binomial(TrialsPerUnit, Rate) conversion count. Arm i draws from its own
// PCG stream, so adding an arm does not change the rows of the others.
func Generate(ctx context.Context, cfg Config, opts ...Option) ([]model.Record, error) {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if len(cfg.Arms) == 0 {
		return nil, fmt.Errorf("%w: no arms", ErrInvalidArm)
	}
	if cfg.Units <= 0 || cfg.TrialsPerUnit <= 0 {
		return nil, fmt.Errorf("units and trials per unit must be positive, got %d and %d", cfg.Units, cfg.TrialsPerUnit)
	}

	out := make([]model.Record, 0, len(cfg.Arms)*cfg.Units)
	for i, arm := range cfg.Arms {
		if err := arm.validate(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dist := distuv.Binomial{
			N:   float64(cfg.TrialsPerUnit),
			P:   arm.Rate,
			Src: rand.New(rand.NewPCG(cfg.Seed, uint64(i))),
		}
		var conversions float64
		for u := 0; u < cfg.Units; u++ {
			y := dist.Rand()
			conversions += y
			out = append(out, model.NewRecord(arm.Treat, arm.ArmID, y, float64(cfg.TrialsPerUnit)))
		}
		o.logger.Debug(ctx, "arm generated",
			logger.String("arm_id", arm.ArmID),
			logger.Int("treat", arm.Treat),
			logger.Float64("rate", arm.Rate),
			logger.Float64("conversions", conversions),
			logger.Int("trials", cfg.Units*cfg.TrialsPerUnit),
		)
	}
	return out, nil
}
