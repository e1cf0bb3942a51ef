package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jward/binscope/internal/config"
)

var (
	flagConfig  string
	flagFormat  string
	flagVerbose bool
	flagServer  string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// Set by the root command's PersistentPreRunE.
var (
	cfg    *config.Config
	logger = zap.NewNop()
)

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "binscope",
	Short:         "Query lifted binary programs",
	Long:          "Binscope loads lifted programs, simplifies their IR and serves structural queries over JSON-RPC.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		l, err := newLogger(cfg.Log, flagVerbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: binscope.yaml in . or $HOME)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "development logging at debug level")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://127.0.0.1:3030", "server URL for query and script commands")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(scriptCmd)
}

// flagKeys maps command-line flags to config keys. Flags override every
// other config source only when set explicitly.
var flagKeys = map[string]string{
	"server":         "server",
	"listen":         "listen",
	"workers":        "workers",
	"fixpoint-limit": "fixpoint_limit",
	"archive":        "archive",
	"restore":        "restore",
	"log-level":      "log.level",
}

// loadConfig reads flags, BINSCOPE_* environment variables and the config
// file, in that order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	v := config.New(flagConfig, dirs...)

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("binding flags: %w", bindErr)
	}

	if err := config.Read(v); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// newLogger builds a zap logger writing to stderr. verbose forces a
// development logger at debug level.
func newLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development || verbose {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
