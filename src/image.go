package ebookbot

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opd-ai/horde"
)

// ImageParams are the generation settings passed to a backend. Zero values
// mean "use the backend default".
type ImageParams struct {
	Steps  int
	Width  int
	Height int
	Model  string
}

func paramsFromConfig(cfg ImageConfig) ImageParams {
	return ImageParams{Steps: cfg.Steps, Width: cfg.Width, Height: cfg.Height, Model: cfg.Model}
}

func (p ImageParams) withDefaults() ImageParams {
	if p.Steps == 0 {
		p.Steps = horde.DefaultSteps
	}
	if p.Width == 0 {
		p.Width = horde.DefaultWidth
	}
	if p.Height == 0 {
		p.Height = horde.DefaultHeight
	}
	return p
}

type ImageClient interface {
	ImageGenerate(ctx context.Context, prompt string, params ImageParams) ([]byte, error)
}

// NewImageClient returns the backend selected by cfg.Backend.
func NewImageClient(cfg ImageConfig) (ImageClient, error) {
	switch cfg.Backend {
	case "horde":
		return NewHordeClient(cfg.HordeAPIKey, cfg.Timeout), nil
	case "sdwebui":
		return NewLocalClient(cfg.SDWebUIURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown image backend %q", cfg.Backend)
	}
}

// LocalClient talks to a self-hosted Stable Diffusion WebUI.
type LocalClient struct {
	baseURL string
	client  *http.Client
}

func NewLocalClient(baseURL string, timeout time.Duration) *LocalClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute // SD generation can take a while
	}
	return &LocalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SDWebUIRequest represents the request structure for the Stable Diffusion WebUI API
type SDWebUIRequest struct {
	Prompt           string                 `json:"prompt"`
	NegativePrompt   string                 `json:"negative_prompt,omitempty"`
	Steps            int                    `json:"steps"`
	Width            int                    `json:"width"`
	Height           int                    `json:"height"`
	CFGScale         float64                `json:"cfg_scale,omitempty"`
	BatchSize        int                    `json:"batch_size,omitempty"`
	OverrideSettings map[string]interface{} `json:"override_settings,omitempty"`
}

// SDWebUIResponse represents the response structure from the Stable Diffusion WebUI API
type SDWebUIResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
	Error  string   `json:"error,omitempty"`
}

const defaultNegativePrompt = "text, letters, watermark, signature, logo"

func (l *LocalClient) ImageGenerate(ctx context.Context, prompt string, params ImageParams) ([]byte, error) {
	params = params.withDefaults()
	requestData := SDWebUIRequest{
		Prompt:         prompt,
		NegativePrompt: defaultNegativePrompt,
		Steps:          params.Steps,
		Width:          params.Width,
		Height:         params.Height,
		CFGScale:       3.0,
		BatchSize:      1,
	}
	if params.Model != "" {
		requestData.OverrideSettings = map[string]interface{}{"sd_model_checkpoint": params.Model}
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sd-webui request: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sd-webui response: %v", ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("sd-webui status %d: %s", resp.StatusCode, truncateEllipsis(string(body), 200))
		if transientStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, err
	}

	var sdResponse SDWebUIResponse
	if err := json.Unmarshal(body, &sdResponse); err != nil {
		return nil, fmt.Errorf("decoding sd-webui response: %w", err)
	}
	if sdResponse.Error != "" {
		return nil, fmt.Errorf("sd-webui: %s", sdResponse.Error)
	}
	if len(sdResponse.Images) == 0 {
		return nil, fmt.Errorf("sd-webui returned no images")
	}

	imageBytes, err := base64.StdEncoding.DecodeString(sdResponse.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return imageBytes, nil
}

func truncateEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
