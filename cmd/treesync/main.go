package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/treesync/internal/client/config"
	"github.com/openmined/treesync/internal/utils"
	"github.com/openmined/treesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	envPrefix      = "TREESYNC"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "treesync",
		Short:         "Synchronize directory trees with a remote data store",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "treesync config file")
	flags.String("catalog", config.DefaultCatalogPath, "catalog database path")
	flags.String("blob-dir", config.DefaultBlobDir, "directory for data object contents")
	flags.String("remote-home", config.DefaultRemoteHome, "remote home collection")
	flags.String("log-file", config.DefaultLogFilePath, "log file path")
	flags.BoolP("verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newMetaCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	if utils.FileExists(".env") {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	configFilePath, _ := cmd.Flags().GetString("config")
	if cmd.Flags().Changed("config") {
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.AddConfigPath(filepath.Join(home, ".config", "treesync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.BindPFlag("catalog_path", cmd.Flags().Lookup("catalog"))
	v.BindPFlag("blob_dir", cmd.Flags().Lookup("blob-dir"))
	v.BindPFlag("remote_home", cmd.Flags().Lookup("remote-home"))
	v.BindPFlag("log_file", cmd.Flags().Lookup("log-file"))

	// TREESYNC_S3_BUCKET etc.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := config.Default()
	cfg.Path = configFilePath
	cfg.CatalogPath = v.GetString("catalog_path")
	cfg.BlobDir = v.GetString("blob_dir")
	cfg.RemoteHome = v.GetString("remote_home")
	cfg.Exclude = v.GetStringSlice("exclude")
	if v.IsSet("threads") {
		cfg.Threads = v.GetInt("threads")
	}
	cfg.LogFile = v.GetString("log_file")
	if used := v.ConfigFileUsed(); used != "" {
		cfg.Path = used
	}
	if bucket := v.GetString("s3.bucket"); bucket != "" {
		cfg.S3 = &config.S3Config{
			Bucket:    bucket,
			Region:    v.GetString("s3.region"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
			Endpoint:  v.GetString("s3.endpoint"),
			Prefix:    v.GetString("s3.prefix"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger sends logs to stderr and the log file. The returned closer
// flushes the file.
func setupLogger(logFile string, verbose bool) (io.Closer, error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stderrHandler, fileHandler)))
	return file, nil
}
