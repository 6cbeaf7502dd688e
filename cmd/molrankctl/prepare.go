package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/onnwee/molrank/internal/artifact"
	"github.com/onnwee/molrank/internal/dataset"
	"github.com/onnwee/molrank/internal/store"
)

type prepareOptions struct {
	pubchem string
	delaney string
	quantum string

	outCSV   string
	outJSON  string
	report   string
	features string

	sqlitePath string
	dataset    string
	upload     bool
}

func newPrepareCmd(a *app) *cobra.Command {
	var o prepareOptions
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Clean and harmonize source CSVs into a scored candidate table",
		Long: `Prepare loads the PubChem, Delaney and quantum candidate CSVs, removes
duplicates, winsorizes and imputes numeric columns, derives the efficacy and
safety indices and writes the harmonized table sorted by drug score.

With no output flags the table is written to stdout as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.prepare(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.pubchem, "pubchem", "", "PubChem antibiotics CSV")
	f.StringVar(&o.delaney, "delaney", "", "Delaney solubility CSV")
	f.StringVar(&o.quantum, "quantum", "", "quantum candidates CSV")
	f.StringVar(&o.outCSV, "out-csv", "", "write the table as CSV")
	f.StringVar(&o.outJSON, "out-json", "", "write the table as JSON")
	f.StringVar(&o.report, "report", "", "write a data quality report")
	f.StringVar(&o.features, "features", "", "write descriptions of the engineered feature columns")
	f.StringVar(&o.sqlitePath, "sqlite", "", "upsert candidates into this SQLite database")
	f.StringVar(&o.dataset, "dataset", "", "dataset name for --sqlite and --upload")
	f.BoolVar(&o.upload, "upload", false, "upload the JSON export to the configured R2 bucket")
	return cmd
}

func (a *app) prepare(cmd *cobra.Command, o prepareOptions) error {
	if o.pubchem == "" && o.delaney == "" && o.quantum == "" {
		return errors.New("at least one of --pubchem, --delaney or --quantum is required")
	}
	if o.sqlitePath != "" || o.upload {
		if o.dataset == "" {
			return errors.New("--dataset is required with --sqlite or --upload")
		}
		if err := store.ValidateDataset(o.dataset); err != nil {
			return err
		}
	}

	var in dataset.Inputs
	for _, src := range []struct {
		path string
		dst  *io.Reader
	}{
		{o.pubchem, &in.PubChem},
		{o.delaney, &in.Delaney},
		{o.quantum, &in.Quantum},
	} {
		if src.path == "" {
			continue
		}
		f, err := os.Open(src.path)
		if err != nil {
			return err
		}
		defer f.Close()
		*src.dst = f
	}

	res, err := dataset.Prepare(in, a.logger)
	if err != nil {
		return err
	}

	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{o.outCSV, func(w io.Writer) error { return dataset.WriteCSV(w, res.Rows) }},
		{o.outJSON, func(w io.Writer) error { return dataset.WriteJSON(w, res.Rows) }},
		{o.report, func(w io.Writer) error { return dataset.WriteQualityReport(w, res.Profiles, res.Rows) }},
		{o.features, func(w io.Writer) error {
			_, err := io.WriteString(w, dataset.FeatureDescription)
			return err
		}},
	}
	wrote := false
	for _, out := range outputs {
		if out.path == "" {
			continue
		}
		if err := writeFile(out.path, out.write); err != nil {
			return err
		}
		a.logger.Info("wrote output", "path", out.path)
		wrote = true
	}

	ctx := cmd.Context()
	if o.sqlitePath != "" {
		repo := store.NewSQLiteRepository(o.sqlitePath)
		if err := repo.Init(ctx); err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer repo.Close()
		if err := repo.Upsert(ctx, o.dataset, dataset.Candidates(res.Rows)); err != nil {
			return err
		}
		a.logger.Info("candidates stored", "dataset", o.dataset, "count", len(res.Rows), "path", o.sqlitePath)
		wrote = true
	}

	if o.upload {
		var buf bytes.Buffer
		if err := dataset.WriteJSON(&buf, res.Rows); err != nil {
			return err
		}
		obj, err := a.upload(ctx, o.dataset, artifact.KindJSON, buf.Bytes())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), obj.Key)
		wrote = true
	}

	if !wrote {
		return dataset.WriteJSON(cmd.OutOrStdout(), res.Rows)
	}
	return nil
}

// writeFile creates path and streams write into it.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
