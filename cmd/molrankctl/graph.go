package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/onnwee/molrank/internal/api"
	"github.com/onnwee/molrank/internal/artifact"
	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/graph"
)

type graphOptions struct {
	source
	k        int
	maxGraph int
	encoding string
	out      string
	upload   bool
}

func newGraphCmd(a *app) *cobra.Command {
	o := graphOptions{k: engine.DefaultDiffusionOptions().K}
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build the k-nearest-neighbor graph of candidate embeddings",
		Long: `Graph builds the Euclidean k-nearest-neighbor graph over candidate embeddings and
encodes it as a base64 neighbor buffer or a CBOR document.

With --out the raw encoding is written to the file. Otherwise a JSON
document with n, k, encoding and buffer is printed; CBOR is base64 encoded
there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.graph(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.input, "input", "", "candidate JSON file (prepare export or candidate array)")
	f.StringVar(&o.sqlitePath, "sqlite", "", "read candidates from this SQLite database")
	f.StringVar(&o.dataset, "dataset", "", "dataset name for --sqlite and --upload")
	f.IntVar(&o.k, "k", o.k, "neighbors per node")
	f.IntVar(&o.maxGraph, "max-graph-candidates", engine.DefaultMaxGraphCandidates, "largest embedding set accepted")
	f.StringVar(&o.encoding, "encoding", api.EncodingBase64, "base64 or cbor")
	f.StringVar(&o.out, "out", "", "write the raw encoding to this file")
	f.BoolVar(&o.upload, "upload", false, "upload the encoding to the configured R2 bucket")
	return cmd
}

func (a *app) graph(cmd *cobra.Command, o graphOptions) error {
	if o.encoding != api.EncodingBase64 && o.encoding != api.EncodingCBOR {
		return fmt.Errorf("--encoding must be %s or %s", api.EncodingBase64, api.EncodingCBOR)
	}
	if o.upload && o.dataset == "" {
		return fmt.Errorf("--dataset is required with --upload")
	}

	ctx := cmd.Context()
	cands, err := o.source.load(ctx)
	if err != nil {
		return err
	}
	embeddings := make([][]float64, len(cands))
	for i := range cands {
		embeddings[i] = cands[i].Embedding
	}

	eng := engine.New(engine.Config{MaxGraphCandidates: o.maxGraph, Logger: a.logger})
	g, err := eng.BuildGraph(ctx, embeddings, o.k)
	if err != nil {
		return err
	}

	var raw []byte
	kind := artifact.KindBuffer
	if o.encoding == api.EncodingCBOR {
		if raw, err = graph.EncodeCBOR(g); err != nil {
			return err
		}
		kind = artifact.KindCBOR
	} else {
		raw = []byte(graph.EncodeBuffer(g))
	}

	if o.upload {
		obj, err := a.upload(ctx, o.dataset, kind, raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), obj.Key)
		return nil
	}
	if o.out != "" {
		return writeFile(o.out, func(w io.Writer) error {
			_, err := w.Write(raw)
			return err
		})
	}

	buffer := string(raw)
	if o.encoding == api.EncodingCBOR {
		buffer = base64.StdEncoding.EncodeToString(raw)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(api.GraphResponse{N: g.N(), K: g.K, Encoding: o.encoding, Buffer: buffer})
}
