package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dreamware/lloyd/internal/config"
	"github.com/dreamware/lloyd/internal/dataset"
	"github.com/dreamware/lloyd/internal/logging"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) s3Options() dataset.S3Options {
	return dataset.S3Options{
		Endpoint:  a.cfg.S3.Endpoint,
		AccessKey: a.cfg.S3.AccessKey,
		SecretKey: a.cfg.S3.SecretKey,
		Region:    a.cfg.S3.Region,
		UseSSL:    a.cfg.S3.UseSSL,
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kmeans",
		Short: "Cluster 2-D points with Lloyd's algorithm",
		Long: `kmeans partitions 2-D points into k clusters with a fixed number of
Lloyd iterations. The serial, shared-memory, distributed and hybrid
strategies produce the same centroids and labels for the same input.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file (default $LLOYD_CONFIG)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newRunCmd(a), newGenerateCmd(a))
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = getenv("LLOYD_CONFIG", "")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}
