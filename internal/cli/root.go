package cli

import (
	"fmt"
	"io"

	"github.com/soyeahso/dlscribe/internal/config"
	"github.com/soyeahso/dlscribe/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	envFile   string
	outputDir string

	// loaded at init time
	paths     config.Paths
	cfg       config.Config
	log       *logging.Logger
	logCloser io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlscribe",
		Short: "Direct Line conversation fetcher and transcript builder",
		Long: "dlscribe replays Bot Framework Direct Line conversations page by page, " +
			"archives the raw activities and turns them into chronological transcripts.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFiles()...); err != nil {
				return err
			}

			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			cfg, err = config.Load(paths.Config)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if outputDir != "" {
				cfg.Output.Dir = outputDir
			}
			paths = paths.WithOutputDir(cfg.Output.Dir)
			if cfg.Store.Path != "" {
				paths.Database = cfg.Store.Path
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			log, logCloser, err = logging.NewWithOptions(logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.dlscribe/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading config (default .env)")
	cmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "directory for exported activities and transcripts")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newActivitiesCmd())
	cmd.AddCommand(newTranscriptCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newListenCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newArchiveCmd())

	return cmd
}

func envFiles() []string {
	if envFile != "" {
		return []string{envFile}
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
