package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"douyin-image-miner/config"
	appfx "douyin-image-miner/internal/app/fx"
	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/envutil"
	"douyin-image-miner/internal/export"
	"douyin-image-miner/internal/ledger"
	"douyin-image-miner/internal/pipeline"
)

type options struct {
	output     string
	cookies    string
	dryRun     bool
	cacheDir   string
	upscale    float64
	maxSize    int
	iterations int
	format     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "dyimg <share-text-or-url>",
		Short: "Download a Douyin product's images with the background removed",
		Long: "dyimg resolves a Douyin share link (short link, long link or pasted share text) to its product,\n" +
			"downloads the gallery images, removes their backgrounds and writes upscaled PNGs.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
				_ = cmd.Usage()
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "ERROR:", err)
				return errUsage
			}
			return run(cmd, opts, args[0])
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprintln(cmd.ErrOrStderr(), "ERROR:", err)
		_ = cmd.Usage()
		return errUsage
	})

	f := rootCmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "output", "Directory the PNGs are written to")
	f.StringVar(&opts.cookies, "cookies", "", "Cookie header for Douyin requests (default $DY_COOKIES, also read from .env)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Resolve the product and stop before downloading")
	f.StringVar(&opts.cacheDir, "cache", "", "Directory for the download cache (default: in-memory, or Redis when REDIS_HOST is set)")
	f.Float64Var(&opts.upscale, "upscale", 2.0, "Upscale factor applied after background removal")
	f.IntVar(&opts.maxSize, "max-size", 2048, "Cap on the long edge of exported images, in pixels")
	f.IntVar(&opts.iterations, "iterations", 5, "Segmentation refinement iterations")
	f.StringVar(&opts.format, "format", "png", "Output format: png or tiff")
	f.StringVar(&opts.logLevel, "log-level", envutil.String(os.Getenv, "LOG_LEVEL", "warn"), "Log level written to stderr")

	return rootCmd
}

func (o options) validate() error {
	if _, err := export.ParseFormat(o.format); err != nil {
		return err
	}
	if o.upscale <= 0 {
		return fmt.Errorf("--upscale must be positive, got %g", o.upscale)
	}
	if o.maxSize <= 0 {
		return fmt.Errorf("--max-size must be positive, got %d", o.maxSize)
	}
	if o.iterations <= 0 {
		return fmt.Errorf("--iterations must be positive, got %d", o.iterations)
	}
	if !o.dryRun && strings.TrimSpace(o.output) == "" {
		return errors.New("--output must not be empty")
	}
	return nil
}

// apply layers explicitly set flags over the environment configuration.
func (o options) apply(cmd *cobra.Command) func(*config.Config) *config.Config {
	changed := cmd.Flags().Changed
	return func(cfg *config.Config) *config.Config {
		out := *cfg
		out.LogLevel = o.logLevel
		if changed("cookies") {
			out.Douyin.Cookies = strings.TrimSpace(o.cookies)
		}
		if changed("cache") {
			// An explicit directory wins over a configured Redis.
			out.Cache.Dir = o.cacheDir
			out.RedisHost = ""
		}
		if changed("upscale") {
			out.Export.UpscaleFactor = o.upscale
		}
		if changed("max-size") {
			out.Export.MaxLongEdge = o.maxSize
		}
		if changed("iterations") {
			out.Segment.Iterations = o.iterations
		}
		if changed("format") {
			out.Export.Format = strings.ToLower(strings.TrimSpace(o.format))
		}
		return &out
	}
}

func run(cmd *cobra.Command, opts options, shareText string) error {
	var (
		p     *pipeline.Pipeline
		store *ledger.Store
	)
	app := fx.New(
		fx.NopLogger,
		appfx.Module,
		fx.Decorate(opts.apply(cmd)),
		fx.Populate(&p, &store),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, 30*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelStop()
		_ = app.Stop(stopCtx)
	}()

	report, runErr := p.Run(ctx, pipeline.Request{
		ShareText: shareText,
		OutputDir: opts.output,
		DryRun:    opts.dryRun,
	})
	if err := store.Record(ctx, ledger.RecordInput{Report: report, RunErr: runErr}); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "WARN: ledger:", err)
	}

	printReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), report)
	if runErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "ERROR:", runErr)
		if errors.Is(runErr, douyin.ErrProductNotResolved) {
			fmt.Fprintln(cmd.ErrOrStderr(), "HINT:", douyin.Remediation)
		}
		return errFailed
	}
	return nil
}

// printReport writes exported paths to stdout and per-asset failures to stderr.
func printReport(stdout, stderr io.Writer, r pipeline.Report) {
	if r.Product.IsProductPage {
		fmt.Fprintf(stdout, "product %s (%s via %s)\n",
			strconv.FormatUint(r.Product.ProductID, 10), r.Product.CanonicalURL, r.Strategy)
	}
	for _, o := range r.Outcomes {
		if o.OK() {
			fmt.Fprintln(stdout, o.Path)
			continue
		}
		fmt.Fprintf(stderr, "WARN: image %d failed at %s: %v\n", o.Ordinal, o.Stage, o.Err)
	}
	if !r.DryRun && len(r.Outcomes) > 0 {
		fmt.Fprintf(stdout, "exported %d of %d images\n", r.Succeeded(), len(r.Outcomes))
	}
}
