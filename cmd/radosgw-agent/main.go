package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/isabella232/radosgw-agent/internal/agent"
	"github.com/isabella232/radosgw-agent/internal/config"
	"github.com/isabella232/radosgw-agent/internal/utils"
	"github.com/isabella232/radosgw-agent/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "radosgw-agent",
	Short:   "Replicate metadata and data between two radosgw sites",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("config unmarshal: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true
		if err := setupLogging(cfg.LogFile); err != nil {
			return err
		}

		a, err := agent.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		if err := a.Run(cmd.Context()); err != nil {
			if errors.Is(err, agent.ErrShardsFailed) {
				slog.Error("replication pass left failed shards behind")
			}
			return err
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Detailed())
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.SortFlags = false
	flags.String("src-endpoint", "", "source gateway endpoint URL")
	flags.String("src-access-key", "", "source gateway access key")
	flags.String("src-secret-key", "", "source gateway secret key")
	flags.String("src-zone", "", "source zone name, used for object copies")
	flags.String("dest-endpoint", "", "destination gateway endpoint URL")
	flags.String("dest-access-key", "", "destination gateway access key")
	flags.String("dest-secret-key", "", "destination gateway secret key")
	flags.IntP("num-workers", "w", 1, "number of pool workers")
	flags.String("sync-scope", config.SyncScopeIncremental, "full or incremental sync")
	flags.Bool("metadata-only", false, "sync metadata only, skip bucket data")
	flags.Duration("incremental-sync-delay", 30*time.Second, "seconds to wait between incremental passes")
	flags.Bool("once", false, "run a single pass and exit")
	flags.String("status-addr", "127.0.0.1:8143", "local status server address")

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file path")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// .env is optional, for local development
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(filepath.Dir(config.DefaultConfigPath)))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("source.endpoint", cmd.Flags().Lookup("src-endpoint"))
	viper.BindPFlag("source.access_key", cmd.Flags().Lookup("src-access-key"))
	viper.BindPFlag("source.secret_key", cmd.Flags().Lookup("src-secret-key"))
	viper.BindPFlag("source.zone", cmd.Flags().Lookup("src-zone"))
	viper.BindPFlag("destination.endpoint", cmd.Flags().Lookup("dest-endpoint"))
	viper.BindPFlag("destination.access_key", cmd.Flags().Lookup("dest-access-key"))
	viper.BindPFlag("destination.secret_key", cmd.Flags().Lookup("dest-secret-key"))
	viper.BindPFlag("num_workers", cmd.Flags().Lookup("num-workers"))
	viper.BindPFlag("sync_scope", cmd.Flags().Lookup("sync-scope"))
	viper.BindPFlag("metadata_only", cmd.Flags().Lookup("metadata-only"))
	viper.BindPFlag("incremental_sync_delay", cmd.Flags().Lookup("incremental-sync-delay"))
	viper.BindPFlag("once", cmd.Flags().Lookup("once"))
	viper.BindPFlag("status_addr", cmd.Flags().Lookup("status-addr"))

	viper.SetEnvPrefix("RADOSGW_AGENT")
	viper.AutomaticEnv()

	return nil
}

// setupLogging sends every record to a colorized stdout handler and, when a
// log file is configured, to a plain text handler on that file.
func setupLogging(logFile string) error {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	handlers := []slog.Handler{stdoutHandler}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	slog.SetDefault(slog.New(utils.NewFanoutHandler(handlers...)))
	return nil
}
