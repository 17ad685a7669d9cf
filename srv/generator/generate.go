package generator

import (
	"context"
	"fmt"
	"log/slog"

	ebookbot "github.com/opd-ai/ebookbot/src"
)

// Runner builds one ebook per call, each in its own output directory. The
// language model client and the image cache are shared between runs.
type Runner struct {
	Config      ebookbot.Config
	Client      ebookbot.Client
	Images      *ebookbot.ImageCache
	NewRenderer func(logger *slog.Logger) ebookbot.Renderer

	LoadSource    func(path string, cfg ebookbot.InputConfig) (ebookbot.Source, error)
	LoadReference func(path string, cfg ebookbot.InputConfig) (ebookbot.Reference, error)
}

// Generate runs the pipeline for the two uploaded PDFs and reports every
// transition to progress. progress is finished before Generate returns.
func (r *Runner) Generate(ctx context.Context, progress *Progress, sourcePath, referencePath, outputDir string) error {
	logger := r.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run", progress.RunID)

	loadSource, loadReference := r.LoadSource, r.LoadReference
	if loadSource == nil {
		loadSource = ebookbot.LoadSource
	}
	if loadReference == nil {
		loadReference = ebookbot.LoadReference
	}

	progress.SendUpdate("update", "Reading input documents...")
	src, err := loadSource(sourcePath, r.Config.Input)
	if err != nil {
		err = fmt.Errorf("loading source document: %w", err)
		progress.Finish(nil, err)
		return err
	}
	ref, err := loadReference(referencePath, r.Config.Input)
	if err != nil {
		err = fmt.Errorf("loading reference document: %w", err)
		progress.Finish(nil, err)
		return err
	}

	cfg := r.Config
	cfg.OutputDir = outputDir
	cfg.Logger = logger
	pipeline := ebookbot.NewPipeline(cfg, r.Client, r.Images, r.NewRenderer(logger))
	pipeline.SetObserver(progress.Observe)

	summary, err := pipeline.Run(ctx, src, ref)
	if err != nil {
		logger.Error("run failed", "err", err)
	}
	progress.Finish(&summary, err)
	return err
}
