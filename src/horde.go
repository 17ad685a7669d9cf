package ebookbot

import (
	"context"
	"fmt"
	"time"

	"github.com/opd-ai/horde"
)

// HordeClient generates images on the AI Horde. An empty API key uses the
// anonymous queue.
type HordeClient struct {
	*horde.Client
	timeout time.Duration
}

func NewHordeClient(apiKey string, timeout time.Duration) *HordeClient {
	if apiKey == "" {
		apiKey = "0000000000"
	}
	return &HordeClient{
		Client:  horde.NewClient(apiKey),
		timeout: timeout,
	}
}

type hordeResult struct {
	data []byte
	err  error
}

// ImageGenerate submits the prompt and waits for the first generation. The
// horde client does not take a context, so the wait runs in a goroutine and
// is abandoned when ctx ends.
func (c *HordeClient) ImageGenerate(ctx context.Context, prompt string, params ImageParams) ([]byte, error) {
	params = params.withDefaults()
	if params.Model == "" {
		params.Model = horde.DefaultModel
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan hordeResult, 1)
	go func() {
		data, err := c.generate(prompt, params)
		done <- hordeResult{data: data, err: err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: horde generation: %v", ErrTransient, ctx.Err())
	}
}

func (c *HordeClient) generate(prompt string, params ImageParams) ([]byte, error) {
	req := horde.GenerationRequest{
		Prompt: prompt,
		Params: horde.Params{
			Steps:     params.Steps,
			Width:     params.Width,
			Height:    params.Height,
			ModelName: params.Model,
		},
	}

	resp, err := c.RequestGeneration(req)
	if err != nil {
		return nil, fmt.Errorf("%w: requesting generation: %v", ErrTransient, err)
	}
	status, err := c.WaitForCompletion(resp.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for generation %s: %v", ErrTransient, resp.ID, err)
	}
	if len(status.Generation) == 0 {
		return nil, fmt.Errorf("%w: generation %s returned no images", ErrTransient, resp.ID)
	}
	imageData, err := c.DownloadImage(status.Generation[0].Image)
	if err != nil {
		return nil, fmt.Errorf("%w: downloading image: %v", ErrTransient, err)
	}
	return imageData, nil
}
