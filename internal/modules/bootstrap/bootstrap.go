// Package bootstrap estimates the uncertainty of reconstruction metrics
// by multinomial resampling of the observed counts.
package bootstrap

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/internal/modules/measurement"
	"github.com/qforge/tomo/internal/modules/reconstruction"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config controls a bootstrap run.
type Config struct {
	// Samples is the number of resamples B.
	Samples int
	// Workers bounds the parallel resample fan-out; zero means GOMAXPROCS.
	Workers int
	// ConfidenceLevel is the central interval mass attached to the
	// returned distribution, e.g. 0.95.
	ConfidenceLevel float64
	// FailureThreshold is the largest tolerated fraction of resamples
	// whose reconstruction fails to converge.
	FailureThreshold float64
	// Seed makes resampling reproducible. Each resample derives its own
	// stream from (Seed, index), so results do not depend on scheduling.
	Seed uint64
}

// DefaultConfig returns the bootstrap defaults.
func DefaultConfig() Config {
	return Config{
		Samples:          100,
		ConfidenceLevel:  0.95,
		FailureThreshold: 0.1,
		Seed:             1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Samples <= 0 {
		return fmt.Errorf("%w: bootstrap sample count must be positive", domain.ErrInputValidation)
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		return fmt.Errorf("%w: confidence level must be in (0, 1)", domain.ErrInputValidation)
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return fmt.Errorf("%w: failure threshold must be in [0, 1]", domain.ErrInputValidation)
	}
	return nil
}

// Metric scores a certified estimate, e.g. fidelity against a target.
type Metric func(est *reconstruction.Estimate) (float64, error)

// Distribution is the empirical bootstrap distribution of a metric.
// Values keeps resample order for reproducibility; the distribution as a
// multiset is invariant to processing order. Lower and Upper are the
// central percentile interval at the run's configured confidence level.
type Distribution struct {
	RunID       uuid.UUID
	Values      []float64
	Samples     int
	Failures    int
	FailureRate float64
	Level       float64
	Lower       float64
	Upper       float64
}

// Mean returns the empirical mean of the metric.
func (d *Distribution) Mean() float64 {
	return stat.Mean(d.Values, nil)
}

// Interval returns the central percentile interval of the given mass.
func (d *Distribution) Interval(level float64) (lo, hi float64) {
	sorted := append([]float64(nil), d.Values...)
	sort.Float64s(sorted)
	alpha := (1 - level) / 2
	lo = stat.Quantile(alpha, stat.Empirical, sorted, nil)
	hi = stat.Quantile(1-alpha, stat.Empirical, sorted, nil)
	return lo, hi
}

// Estimator runs resample-and-reconstruct rounds against a fixed
// measurement model. The model and basis are shared read-only across
// workers; every resample is an independent unit of work.
type Estimator struct {
	engine *reconstruction.Engine
	log    zerolog.Logger
}

// NewEstimator creates a bootstrap estimator around a reconstruction
// engine.
func NewEstimator(engine *reconstruction.Engine, log zerolog.Logger) *Estimator {
	return &Estimator{
		engine: engine,
		log:    log.With().Str("component", "bootstrap").Logger(),
	}
}

// Run resamples the model's records B times, reconstructs each resample
// under recCfg, scores the certified estimates with metric and returns
// the empirical distribution. Resamples whose reconstruction terminates
// Infeasible or Timeout are excluded and counted; the run fails only if
// the failure rate exceeds the configured threshold.
func (e *Estimator) Run(
	model *measurement.Model,
	b *basis.Basis,
	recCfg reconstruction.Config,
	cfg Config,
	metric Metric,
) (*Distribution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := recCfg.Validate(); err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, fmt.Errorf("%w: nil metric", domain.ErrInputValidation)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	type outcome struct {
		value float64
		ok    bool
	}
	outcomes := make([]outcome, cfg.Samples)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < cfg.Samples; i++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
			resampled := resampleRecords(model.Records(), rng)
			resampledModel, err := model.WithObservations(resampled)
			if err != nil {
				return err
			}
			result, err := e.engine.Reconstruct(resampledModel, b, recCfg)
			if err != nil {
				return err
			}
			if !result.Status.Consumable() {
				e.log.Debug().
					Int("resample", i).
					Str("status", string(result.Status)).
					Msg("Resample reconstruction failed, excluding from distribution")
				return nil
			}
			v, err := metric(result.Estimate)
			if err != nil {
				return err
			}
			outcomes[i] = outcome{value: v, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dist := &Distribution{RunID: uuid.New(), Samples: cfg.Samples}
	for _, o := range outcomes {
		if o.ok {
			dist.Values = append(dist.Values, o.value)
		} else {
			dist.Failures++
		}
	}
	dist.FailureRate = float64(dist.Failures) / float64(cfg.Samples)
	if dist.FailureRate > cfg.FailureThreshold {
		return nil, fmt.Errorf("%w: bootstrap failure rate %.2f exceeds threshold %.2f",
			domain.ErrReconstructionFailed, dist.FailureRate, cfg.FailureThreshold)
	}
	dist.Level = cfg.ConfidenceLevel
	if len(dist.Values) > 0 {
		dist.Lower, dist.Upper = dist.Interval(cfg.ConfidenceLevel)
	}
	e.log.Info().
		Str("run_id", dist.RunID.String()).
		Int("samples", dist.Samples).
		Int("failures", dist.Failures).
		Float64("interval_lower", dist.Lower).
		Float64("interval_upper", dist.Upper).
		Msg("Bootstrap run complete")
	return dist, nil
}

// resampleRecords draws a fresh multinomial count vector for every record
// from its observed outcome frequencies at the original shot count.
func resampleRecords(records []measurement.Record, rng *rand.Rand) []measurement.Record {
	out := make([]measurement.Record, len(records))
	for i, r := range records {
		outcomes, freqs := r.Frequencies()
		counts := make(map[string]int, len(outcomes))
		for _, o := range outcomes {
			counts[o] = 0
		}
		cat := distuv.NewCategorical(freqs, rng)
		for s := 0; s < r.Shots; s++ {
			counts[outcomes[int(cat.Rand())]]++
		}
		out[i] = measurement.Record{
			Setting:     r.Setting,
			Preparation: r.Preparation,
			Counts:      counts,
			Shots:       r.Shots,
		}
	}
	return out
}
