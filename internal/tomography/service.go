// Package tomography wires the full reconstruction pipeline: ingest
// measurement records, build the linear model, seed with linear
// inversion, certify with the constrained engine and attach quality
// metrics. It owns no I/O; inputs and outputs are plain structured data.
package tomography

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/internal/modules/bootstrap"
	"github.com/qforge/tomo/internal/modules/measurement"
	"github.com/qforge/tomo/internal/modules/metrics"
	"github.com/qforge/tomo/internal/modules/reconstruction"
	"github.com/rs/zerolog"
)

// Service runs tomography reconstructions end to end.
type Service struct {
	basisFamily basis.Family
	engine      *reconstruction.Engine
	boot        *bootstrap.Estimator
	log         zerolog.Logger
}

// NewService creates the pipeline. A nil solver selects the gonum-backed
// default.
func NewService(family basis.Family, solver reconstruction.Solver, log zerolog.Logger) *Service {
	engine := reconstruction.NewEngine(solver, log)
	return &Service{
		basisFamily: family,
		engine:      engine,
		boot:        bootstrap.NewEstimator(engine, log),
		log:         log.With().Str("component", "tomography").Logger(),
	}
}

// Report is the structured output handed to downstream consumers: the
// certified estimate, the solver status, model diagnostics and scalar
// quality metrics.
type Report struct {
	ID           uuid.UUID
	Mode         reconstruction.Mode
	Status       reconstruction.Status
	Estimate     *reconstruction.Estimate
	Complete     bool
	Rank         int
	RequiredRank int
	TPDeviation  float64
	Metrics      map[string]float64
}

// ReconstructState ingests state tomography records and returns a
// certified density matrix estimate with its quality report, or a typed
// failure naming the stage that rejected the run.
func (s *Service) ReconstructState(records []measurement.Record, cfg reconstruction.Config) (*Report, error) {
	if cfg.Mode != reconstruction.ModeState {
		return nil, fmt.Errorf("%w: ReconstructState requires mode %q, got %q",
			domain.ErrInputValidation, reconstruction.ModeState, cfg.Mode)
	}
	b, model, err := s.prepare(records, reconstruction.ModeState)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Reconstruct(model, b, cfg)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	report := s.newReport(reconstruction.ModeState, result, model)
	purity, err := metrics.Purity(result.Estimate.State)
	if err != nil {
		return nil, err
	}
	report.Metrics["purity"] = purity
	s.log.Info().
		Str("report_id", report.ID.String()).
		Float64("purity", purity).
		Bool("complete", report.Complete).
		Msg("State reconstruction complete")
	return report, nil
}

// ReconstructProcess ingests process tomography records and returns a
// certified channel estimate (Pauli-transfer and Choi form) with its
// quality report.
func (s *Service) ReconstructProcess(records []measurement.Record, cfg reconstruction.Config) (*Report, error) {
	if cfg.Mode != reconstruction.ModeProcess {
		return nil, fmt.Errorf("%w: ReconstructProcess requires mode %q, got %q",
			domain.ErrInputValidation, reconstruction.ModeProcess, cfg.Mode)
	}
	b, model, err := s.prepare(records, reconstruction.ModeProcess)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Reconstruct(model, b, cfg)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	report := s.newReport(reconstruction.ModeProcess, result, model)
	report.Metrics["tp_deviation"] = result.TPDeviation
	s.log.Info().
		Str("report_id", report.ID.String()).
		Float64("tp_deviation", result.TPDeviation).
		Bool("complete", report.Complete).
		Msg("Process reconstruction complete")
	return report, nil
}

// BootstrapMetric estimates the uncertainty of a metric of the certified
// estimate by resampling the records and reconstructing each resample.
func (s *Service) BootstrapMetric(
	records []measurement.Record,
	recCfg reconstruction.Config,
	bootCfg bootstrap.Config,
	metric bootstrap.Metric,
) (*bootstrap.Distribution, error) {
	b, model, err := s.prepare(records, recCfg.Mode)
	if err != nil {
		return nil, err
	}
	return s.boot.Run(model, b, recCfg, bootCfg, metric)
}

// prepare validates the records and builds the basis and linear model.
func (s *Service) prepare(records []measurement.Record, mode reconstruction.Mode) (*basis.Basis, *measurement.Model, error) {
	if err := measurement.ValidateRecords(records); err != nil {
		return nil, nil, err
	}
	b, err := basis.New(s.basisFamily, records[0].Qubits())
	if err != nil {
		return nil, nil, err
	}
	var model *measurement.Model
	switch mode {
	case reconstruction.ModeState:
		model, err = measurement.BuildStateModel(b, records, s.log)
	case reconstruction.ModeProcess:
		model, err = measurement.BuildProcessModel(b, records, s.log)
	default:
		return nil, nil, fmt.Errorf("%w: unknown reconstruction mode %q", domain.ErrInputValidation, mode)
	}
	if err != nil {
		return nil, nil, err
	}
	return b, model, nil
}

func (s *Service) newReport(mode reconstruction.Mode, result *reconstruction.Result, model *measurement.Model) *Report {
	return &Report{
		ID:           uuid.New(),
		Mode:         mode,
		Status:       result.Status,
		Estimate:     result.Estimate,
		Complete:     model.Complete(),
		Rank:         model.Rank(),
		RequiredRank: model.RequiredRank(),
		TPDeviation:  result.TPDeviation,
		Metrics:      make(map[string]float64),
	}
}
