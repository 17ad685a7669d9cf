package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opd-ai/ebookbot/bookcompiler"
	ebookbot "github.com/opd-ai/ebookbot/src"
)

var (
	configPath = flag.String("config", "", "optional YAML config file")
	outputDir  = flag.String("out", "", "output directory for artifacts and the final PDF (default from config)")
	reuse      = flag.Bool("reuse", false, "reuse existing stage artifacts instead of calling the model")
	maxPages   = flag.Int("max-pages", 0, "read at most this many pages of the source PDF (default from config)")
	logLevel   = flag.String("log-level", "", "debug, info, warn or error (default from config)")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <source.pdf> <reference.pdf>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if flag.NArg() != 2 {
		flag.Usage()
		return 2
	}

	cfg, err := ebookbot.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 2
	}
	applyFlags(&cfg)
	cfg.Logger = ebookbot.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logger := cfg.Logger

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return 2
	}

	shutdownTracing, err := ebookbot.InitTracing(context.Background(), cfg.Tracing)
	if err != nil {
		logger.Error("initialising tracing", "err", err)
		return 2
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing traces", "err", err)
		}
	}()

	src, err := ebookbot.LoadSource(flag.Arg(0), cfg.Input)
	if err != nil {
		logger.Error("loading source document", "err", err)
		return 2
	}
	ref, err := ebookbot.LoadReference(flag.Arg(1), cfg.Input)
	if err != nil {
		logger.Error("loading reference document", "err", err)
		return 2
	}

	imageClient, err := ebookbot.NewImageClient(cfg.Images)
	if err != nil {
		logger.Error("creating image client", "err", err)
		return 2
	}
	images := ebookbot.NewImageCache(cfg.ImageCacheDir(), imageClient, cfg.Images, logger)
	pipeline := ebookbot.NewPipeline(cfg, ebookbot.NewClaudeClient(cfg), images, bookcompiler.NewBookCompiler(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx, src, ref)
	if errors.Is(err, ebookbot.ErrOutputLocked) {
		logger.Error("cannot start run", "err", err)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed in stage %s: %v\n", summary.FailedStage, err)
		return 1
	}

	fmt.Printf("Ebook written to %s\n", summary.Artifacts[ebookbot.ArtifactPDF])
	if summary.ImagesFailed > 0 {
		fmt.Printf("%d image(s) could not be generated and were left out\n", summary.ImagesFailed)
	}
	return 0
}

// applyFlags lets explicitly set flags override the loaded config.
func applyFlags(cfg *ebookbot.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.OutputDir = *outputDir
		case "reuse":
			cfg.Reuse = *reuse
		case "max-pages":
			cfg.Input.MaxPages = *maxPages
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
}
