// Package main is the entry point for the tomo reconstruction tool. It
// reads measurement records from a file, runs a certified state or
// process reconstruction and writes the report to stdout as JSON.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/qforge/tomo/internal/config"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/internal/modules/measurement"
	"github.com/qforge/tomo/internal/modules/reconstruction"
	"github.com/qforge/tomo/internal/tomography"
	"github.com/qforge/tomo/pkg/logger"
	"github.com/qforge/tomo/pkg/qmat"
)

// report is the JSON shape written to stdout. Complex matrices are
// rendered as [re, im] pairs; the Pauli-transfer matrix is real.
type report struct {
	ID           string             `json:"id"`
	Mode         string             `json:"mode"`
	Status       string             `json:"status"`
	Complete     bool               `json:"complete"`
	Rank         int                `json:"rank"`
	RequiredRank int                `json:"required_rank"`
	Coeffs       []float64          `json:"coeffs"`
	State        [][][2]float64     `json:"state,omitempty"`
	PTM          [][]float64        `json:"ptm,omitempty"`
	Choi         [][][2]float64     `json:"choi,omitempty"`
	Metrics      map[string]float64 `json:"metrics"`
}

func main() {
	var (
		modeFlag  = flag.String("mode", "state", "reconstruction mode: state or process")
		inputFlag = flag.String("input", "", "measurement records file (.json or .msgpack)")
	)
	flag.Parse()

	mode := reconstruction.Mode(*modeFlag)
	cfg, err := config.Load(mode)
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	if *inputFlag == "" {
		log.Fatal().Msg("Missing required -input flag")
	}
	data, err := os.ReadFile(*inputFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", *inputFlag).Msg("Failed to read records")
	}
	encoding := measurement.EncodingJSON
	if strings.HasSuffix(*inputFlag, ".msgpack") {
		encoding = measurement.EncodingMsgpack
	}
	records, err := measurement.DecodeRecords(data, encoding)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode records")
	}

	svc := tomography.NewService(basis.Family(cfg.BasisFamily), nil, log)

	var result *tomography.Report
	switch mode {
	case reconstruction.ModeState:
		result, err = svc.ReconstructState(records, cfg.Reconstruction)
	case reconstruction.ModeProcess:
		result, err = svc.ReconstructProcess(records, cfg.Reconstruction)
	default:
		log.Fatal().Str("mode", *modeFlag).Msg("Unknown reconstruction mode")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Reconstruction failed")
	}

	out := report{
		ID:           result.ID.String(),
		Mode:         string(result.Mode),
		Status:       string(result.Status),
		Complete:     result.Complete,
		Rank:         result.Rank,
		RequiredRank: result.RequiredRank,
		Coeffs:       result.Estimate.Coeffs,
		Metrics:      result.Metrics,
	}
	if result.Estimate.State != nil {
		out.State = complexRows(result.Estimate.State)
	}
	if result.Estimate.Choi != nil {
		out.Choi = complexRows(result.Estimate.Choi)
	}
	if result.Estimate.PTM != nil {
		rows, cols := result.Estimate.PTM.Dims()
		out.PTM = make([][]float64, rows)
		for i := 0; i < rows; i++ {
			out.PTM[i] = make([]float64, cols)
			for j := 0; j < cols; j++ {
				out.PTM[i][j] = result.Estimate.PTM.At(i, j)
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}
}

func complexRows(m *qmat.Matrix) [][][2]float64 {
	n := m.Dim()
	rows := make([][][2]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([][2]float64, n)
		for j := 0; j < n; j++ {
			v := m.At(i, j)
			rows[i][j] = [2]float64{real(v), imag(v)}
		}
	}
	return rows
}
