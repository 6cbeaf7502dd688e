package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/ranking"
)

type rankOptions struct {
	source
	temperature float64
	strategy    string
	calibration string
	policy      string
	maxGraph    int
	top         int
	diffusion   engine.DiffusionOptions
	boost       engine.BoostOptions
	axis        string
}

func newRankCmd(a *app) *cobra.Command {
	o := rankOptions{
		diffusion: engine.DefaultDiffusionOptions(),
		boost:     engine.DefaultBoostOptions(),
	}
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank a candidate set, optionally with a graph strategy",
		Long: `Rank runs the engine over candidates read from a JSON file or a SQLite
dataset and prints the result as JSON. The temperature is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.rank(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.input, "input", "", "candidate JSON file (prepare export or candidate array)")
	f.StringVar(&o.sqlitePath, "sqlite", "", "read candidates from this SQLite database")
	f.StringVar(&o.dataset, "dataset", "", "dataset name for --sqlite")
	f.Float64Var(&o.temperature, "temperature", 0, "softmax temperature (> 0)")
	f.StringVar(&o.strategy, "strategy", "", "none, graph_diffusion or neighborhood_boost")
	f.StringVar(&o.calibration, "calibration", "", "calibration file with scoring weights (.json or .toml)")
	f.StringVar(&o.policy, "oversize-policy", string(engine.PolicyCap), "reject, cap or subsample")
	f.IntVar(&o.maxGraph, "max-graph-candidates", engine.DefaultMaxGraphCandidates, "largest candidate set the graph strategies accept")
	f.IntVar(&o.top, "top", 0, "print only the first N candidates")
	f.IntVar(&o.diffusion.K, "k", o.diffusion.K, "neighbors per node for graph diffusion")
	f.IntVar(&o.diffusion.Iterations, "iterations", o.diffusion.Iterations, "diffusion iterations")
	f.Float64Var(&o.diffusion.MixRate, "mix-rate", o.diffusion.MixRate, "diffusion mix rate in [0, 1]")
	f.BoolVar(&o.diffusion.IncludeHistory, "history", false, "include the per-iteration probability history")
	f.Float64Var(&o.boost.Alpha, "alpha", o.boost.Alpha, "neighborhood boost strength in [0, 1]")
	f.IntVar(&o.boost.K, "boost-k", o.boost.K, "neighbors per candidate for the boost")
	f.StringVar(&o.axis, "axis", string(o.boost.Axis), "descriptor used as the boost distance axis")
	_ = cmd.MarkFlagRequired("temperature")
	return cmd
}

func (a *app) rank(cmd *cobra.Command, o rankOptions) error {
	if err := ranking.ValidateTemperature(o.temperature); err != nil {
		return err
	}
	strategy, err := engine.ParseStrategy(o.strategy)
	if err != nil {
		return err
	}
	policy, err := engine.ParseOversizePolicy(o.policy)
	if err != nil {
		return err
	}
	var weights *ranking.Weights
	if o.calibration != "" {
		if weights, err = ranking.LoadCalibration(o.calibration); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	cands, err := o.source.load(ctx)
	if err != nil {
		return err
	}

	o.boost.Axis = candidate.Descriptor(o.axis)
	eng := engine.New(engine.Config{
		MaxGraphCandidates: o.maxGraph,
		OversizePolicy:     policy,
		Logger:             a.logger,
	})
	res, err := eng.Run(ctx, engine.Request{
		Candidates:  cands,
		Weights:     weights,
		Temperature: o.temperature,
		Strategy:    strategy,
		Diffusion:   o.diffusion,
		Boost:       o.boost,
	})
	if err != nil {
		return err
	}
	if o.top > 0 && o.top < len(res.Candidates) {
		res.Candidates = res.Candidates[:o.top]
	}
	a.logger.Debug("ranked candidates", "count", len(cands), "strategy", strategy, "dropped", res.Dropped)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
