package ebookbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Renderer draws a layout plan into a PDF at pdfPath.
type Renderer interface {
	Render(ctx context.Context, plan LayoutPlan, pdfPath string) (RenderResult, error)
}

var tracer = otel.Tracer("github.com/opd-ai/ebookbot")

// Pipeline runs the stages of one ebook build in order.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	store     *ArtifactStore
	structure *StructureExtractor
	layout    *LayoutAnalyzer
	planner   *IllustrationPlanner
	images    *ImageCache
	renderer  Renderer
	observer  Observer
}

func NewPipeline(cfg Config, client Client, images *ImageCache, renderer Renderer) *Pipeline {
	logger := loggerOr(cfg.Logger)
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		store:     NewArtifactStore(cfg.OutputDir),
		structure: NewStructureExtractor(client, logger),
		layout:    NewLayoutAnalyzer(client, logger),
		planner:   NewIllustrationPlanner(client, cfg.Images, logger),
		images:    images,
		renderer:  renderer,
	}
}

// SetObserver registers fn to be called on every state transition.
func (p *Pipeline) SetObserver(fn Observer) {
	p.observer = fn
}

// Store gives access to the run's artifacts.
func (p *Pipeline) Store() *ArtifactStore { return p.store }

// run holds the state of a single Run call.
type run struct {
	*Pipeline
	id      string
	logger  *slog.Logger
	machine *stateMachine
	summary RunSummary
}

// Run builds the ebook from src using ref as the style reference. It returns
// a nil error only when the run reaches Done. A second concurrent run on the
// same output directory fails with ErrOutputLocked before any stage starts.
func (p *Pipeline) Run(ctx context.Context, src Source, ref Reference) (RunSummary, error) {
	id := uuid.NewString()
	unlock, err := p.store.Lock(id)
	if err != nil {
		return RunSummary{}, err
	}
	defer func() {
		if err := unlock(); err != nil {
			p.logger.Warn("releasing output lock", "err", err)
		}
	}()

	logger := p.logger.With("run_id", id)
	r := &run{
		Pipeline: p,
		id:       id,
		logger:   logger,
		machine:  newStateMachine(p.observer, logger),
		summary: RunSummary{
			RunID:     id,
			State:     StateNotStarted,
			Artifacts: map[string]string{},
			StartedAt: time.Now().UTC(),
		},
	}
	logger.Info("run started", "source", src.Path, "reference", ref.Path, "output_dir", p.store.Dir())

	runErr := r.execute(ctx, src, ref)
	r.finish(runErr)
	return r.summary, runErr
}

func (r *run) execute(ctx context.Context, src Source, ref Reference) error {
	maxVerify := r.cfg.Pipeline.MaxVerifyAttempts
	if maxVerify < 1 {
		maxVerify = 1
	}

	for attempt := 1; ; attempt++ {
		r.summary.VerifyAttempts = attempt
		reuse := r.cfg.Reuse && attempt == 1

		if err := r.stage(ctx, StateStructuring, r.llmStage(ArtifactStructure, reuse, func(ctx context.Context) (interface{}, error) {
			return r.structure.Extract(ctx, src)
		})); err != nil {
			return err
		}

		if attempt == 1 {
			if err := r.stage(ctx, StateLayoutAnalyzing, r.llmStage(ArtifactTokens, reuse, func(ctx context.Context) (interface{}, error) {
				return r.layout.Analyze(ctx, ref)
			})); err != nil {
				return err
			}
		}

		if err := r.stage(ctx, StateImagePlanning, r.llmStage(ArtifactRequests, reuse, func(ctx context.Context) (interface{}, error) {
			var doc StructuredDocument
			if err := r.store.Load(ArtifactStructure, &doc); err != nil {
				return nil, err
			}
			return r.planner.Plan(ctx, doc)
		})); err != nil {
			return err
		}

		if err := r.stage(ctx, StateImageGenerating, r.generateImages); err != nil {
			return err
		}
		if err := r.stage(ctx, StateAligning, r.align); err != nil {
			return err
		}
		if err := r.stage(ctx, StateRendering, r.render); err != nil {
			return err
		}

		err := r.verify(ctx)
		if err == nil {
			return r.machine.transition(StateDone)
		}
		if !errors.Is(err, ErrVerification) || attempt >= maxVerify {
			return &StageError{Stage: StateVerifying, Attempts: attempt, Err: err}
		}
		r.logger.Warn("consistency check failed, rebuilding", "attempt", attempt, "max_attempts", maxVerify, "err", err)
	}
}

type stageFunc func(ctx context.Context) error

// stage enters state and runs fn, retrying transient failures.
func (r *run) stage(ctx context.Context, state State, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: state, Err: err}
	}
	if err := r.machine.transition(state); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "pipeline."+string(state),
		trace.WithAttributes(attribute.String("run.id", r.id), attribute.String("stage", string(state))))
	defer span.End()

	start := time.Now()
	attempts, err := retry(ctx, r.cfg.Pipeline.MaxAttempts, r.cfg.Pipeline.RetryDelay, IsTransient, r.logger.With("stage", state), func(ctx context.Context) error {
		err := fn(ctx)
		result := "ok"
		if err != nil {
			result = "error"
		}
		stageRuns.WithLabelValues(string(state), result).Inc()
		return err
	})
	stageDuration.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("stage.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: state, Attempts: attempts, Err: err}
	}
	r.logger.Info("stage finished", "stage", state, "attempts", attempts, "duration", time.Since(start))
	return nil
}

// llmStage wraps a model-backed step: in reuse mode an existing artifact is
// kept, otherwise the step runs and its result is saved as artifact.
func (r *run) llmStage(artifact string, reuse bool, produce func(ctx context.Context) (interface{}, error)) stageFunc {
	return func(ctx context.Context) error {
		if reuse && r.store.Exists(artifact) {
			r.logger.Info("reusing artifact", "artifact", artifact)
			return nil
		}
		v, err := produce(ctx)
		if err != nil {
			return err
		}
		return r.store.Save(artifact, v)
	}
}

// generateImages resolves every planned request. A request that still fails
// after its retries is recorded and left out of the book.
func (r *run) generateImages(ctx context.Context) error {
	var requests []ImageRequest
	if err := r.store.Load(ArtifactRequests, &requests); err != nil {
		return err
	}

	results := make([]ImageResult, 0, len(requests))
	failed := 0
	for _, req := range requests {
		req.CacheKey = CacheKey(req.Prompt)
		res := ImageResult{Request: req}

		var asset ImageAsset
		_, err := retry(ctx, r.cfg.Images.MaxAttempts, r.cfg.Images.RetryDelay, always, r.logger.With("cache_key", req.CacheKey), func(ctx context.Context) error {
			var err error
			asset, err = r.resolveImage(ctx, req)
			return err
		})
		if err != nil {
			failed++
			res.Error = err.Error()
			r.logger.Error("image omitted", "chapter_id", req.ChapterID, "cache_key", req.CacheKey, "err", err)
		} else {
			res.Asset = &asset
		}
		results = append(results, res)
	}
	r.summary.ImagesFailed = failed
	return r.store.Save(ArtifactImages, results)
}

func (r *run) resolveImage(ctx context.Context, req ImageRequest) (ImageAsset, error) {
	if r.images == nil {
		return ImageAsset{}, fmt.Errorf("image cache not configured")
	}
	return r.images.Resolve(ctx, req)
}

func (r *run) align(context.Context) error {
	var (
		doc     StructuredDocument
		tokens  DesignTokens
		results []ImageResult
	)
	if err := r.store.Load(ArtifactStructure, &doc); err != nil {
		return err
	}
	if err := r.store.Load(ArtifactTokens, &tokens); err != nil {
		return err
	}
	if err := r.store.Load(ArtifactImages, &results); err != nil {
		return err
	}

	var assets []ImageAsset
	for _, res := range results {
		if res.Asset != nil {
			assets = append(assets, *res.Asset)
		}
	}
	plan := Align(doc, tokens, assets, r.cfg.Pipeline.TOCDepth)
	return r.store.Save(ArtifactPlan, plan)
}

func (r *run) render(ctx context.Context) error {
	if r.renderer == nil {
		return fmt.Errorf("no renderer configured")
	}
	var plan LayoutPlan
	if err := r.store.Load(ArtifactPlan, &plan); err != nil {
		return err
	}
	result, err := r.renderer.Render(ctx, plan, r.store.Path(ArtifactPDF))
	if err != nil {
		return fmt.Errorf("rendering pdf: %w", err)
	}
	r.logger.Info("pdf rendered", "path", result.PDFPath, "pages", result.PageCount)
	return r.store.Save(ArtifactRender, result)
}

// verify runs the consistency check. It is not retried as a stage; the
// caller rebuilds from Structuring instead.
func (r *run) verify(ctx context.Context) error {
	if err := r.machine.transition(StateVerifying); err != nil {
		return err
	}
	_, span := tracer.Start(ctx, "pipeline."+string(StateVerifying), trace.WithAttributes(attribute.String("run.id", r.id)))
	defer span.End()

	var (
		doc    StructuredDocument
		result RenderResult
	)
	if err := r.store.Load(ArtifactStructure, &doc); err != nil {
		return err
	}
	if err := r.store.Load(ArtifactRender, &result); err != nil {
		return err
	}
	err := VerifyTOC(result.TOC, doc, r.cfg.Pipeline.TOCDepth)
	stageResult := "ok"
	if err != nil {
		stageResult = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	stageRuns.WithLabelValues(string(StateVerifying), stageResult).Inc()
	return err
}

func (r *run) finish(runErr error) {
	if runErr != nil {
		var stageErr *StageError
		if errors.As(runErr, &stageErr) {
			r.summary.FailedStage = stageErr.Stage
		}
		r.summary.Error = runErr.Error()
		if !r.machine.Current().Terminal() {
			if err := r.machine.transition(StateFailed); err != nil {
				r.logger.Error("entering Failed", "err", err)
			}
		}
		// A failed run never leaves a final PDF behind.
		if err := r.store.Remove(ArtifactPDF); err != nil {
			r.logger.Error("discarding unverified pdf", "err", err)
		}
		r.logger.Error("run failed", "stage", r.summary.FailedStage, "err", runErr)
	} else {
		r.logger.Info("run finished", "pdf", r.store.Path(ArtifactPDF))
	}

	r.summary.State = r.machine.Current()
	r.summary.FinishedAt = time.Now().UTC()
	for _, name := range []string{
		ArtifactStructure, ArtifactTokens, ArtifactRequests, ArtifactImages,
		ArtifactPlan, ArtifactRender, ArtifactPDF,
	} {
		if r.store.Exists(name) {
			r.summary.Artifacts[name] = r.store.Path(name)
		}
	}
	runsFinished.WithLabelValues(string(r.summary.State)).Inc()
	if err := r.store.Save(ArtifactSummary, r.summary); err != nil {
		r.logger.Error("writing run summary", "err", err)
	}
}
