package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onnwee/molrank/internal/artifact"
	"github.com/onnwee/molrank/internal/config"
)

// uploader stores exported artifacts.
type uploader interface {
	Upload(ctx context.Context, dataset string, kind artifact.Kind, body []byte) (*artifact.Uploaded, error)
}

// app carries state shared by the subcommands.
type app struct {
	logger      *slog.Logger
	configPath  string
	newUploader func(cfg *config.Config) (uploader, error)
}

func newApp() *app {
	return &app{
		logger: slog.Default(),
		newUploader: func(cfg *config.Config) (uploader, error) {
			return artifact.NewUploader(artifact.Config{
				BucketName:      cfg.R2BucketName,
				AccessKeyID:     cfg.R2AccessKeyID,
				SecretAccessKey: cfg.R2SecretAccessKey,
				Endpoint:        cfg.R2Endpoint,
				MaxSizeMB:       cfg.R2MaxUploadSizeMB,
			})
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "molrankctl",
		Short: "molrankctl prepares candidate datasets and ranks them offline",
		Long: `molrankctl runs the molrank pipeline without the API server. It can
clean and merge source CSVs into a scored candidate table, store the result
in SQLite, upload exports to an S3-compatible bucket, and run the ranking
engine or the similarity graph builder over a candidate file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file with R2 settings")

	root.AddCommand(newPrepareCmd(a), newRankCmd(a), newGraphCmd(a))
	return root
}

// artifactUploader builds an uploader from the config file and
// environment. All R2 settings must be present.
func (a *app) artifactUploader() (uploader, error) {
	cfg, errs := config.Load(a.configPath)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if !cfg.R2Enabled() {
		return nil, errors.New("upload requires R2_BUCKET_NAME, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY and R2_ENDPOINT")
	}
	up, err := a.newUploader(cfg)
	if err != nil {
		return nil, fmt.Errorf("create uploader: %w", err)
	}
	return up, nil
}

func (a *app) upload(ctx context.Context, name string, kind artifact.Kind, body []byte) (*artifact.Uploaded, error) {
	up, err := a.artifactUploader()
	if err != nil {
		return nil, err
	}
	obj, err := up.Upload(ctx, name, kind, body)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", kind, err)
	}
	a.logger.Info("artifact uploaded", "key", obj.Key, "size_bytes", obj.SizeBytes)
	return obj, nil
}
