package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/app"
	"github.com/dgnsrekt/colab_agent/internal/config"
	"github.com/spf13/cobra"
)

const defaultAddr = "http://127.0.0.1:8190"

var (
	flagAddr    string
	flagDirect  bool
	flagJSON    bool
	flagVerbose bool
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "colabctl",
	Short:         "Run or interrupt every notebook tab whose title matches a keyword",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	addr := os.Getenv("COLABCTL_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", addr, "controller API base URL")
	rootCmd.PersistentFlags().BoolVar(&flagDirect, "direct", false, "talk to the browser in-process instead of a running controller")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging to stderr")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "overall request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = io.WriteString(os.Stderr, errorStyle.Render("error: ")+err.Error()+"\n")
		os.Exit(1)
	}
}

// backend is what every subcommand talks to: the controller API or an
// in-process controller.
type backend interface {
	Start(ctx context.Context, keyword *string, wait bool) (result, error)
	Stop(ctx context.Context, keyword *string, wait bool) (result, error)
	Toggle(ctx context.Context, keyword *string) (result, error)
	Status(ctx context.Context) (result, error)
	Batch(ctx context.Context, batchID string) (result, error)
	Tabs(ctx context.Context, keyword string) (result, error)
	Keyword(ctx context.Context) (string, error)
	SetKeyword(ctx context.Context, keyword string) error
	Close()
}

func openBackend(ctx context.Context) (backend, error) {
	if !flagDirect {
		return newAPIBackend(flagAddr), nil
	}
	cfg, err := config.LoadController()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &directBackend{app: a}, nil
}

// withBackend runs fn with a backend and a context bounded by --timeout.
func withBackend(fn func(ctx context.Context, b backend) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func keywordArg(args []string) *string {
	if len(args) == 0 {
		return nil
	}
	return &args[0]
}
