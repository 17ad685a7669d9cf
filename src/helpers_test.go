package ebookbot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// scriptedClient answers each system prompt with a scripted reply function.
// n is the 1-based call count for that prompt.
type scriptedClient struct {
	mu      sync.Mutex
	replies map[string]func(n int) (string, error)
	calls   map[string]int
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		replies: map[string]func(int) (string, error){},
		calls:   map[string]int{},
	}
}

func (c *scriptedClient) on(systemPrompt string, fn func(n int) (string, error)) *scriptedClient {
	c.replies[systemPrompt] = fn
	return c
}

func (c *scriptedClient) SendMessage(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.calls[systemPrompt]++
	n := c.calls[systemPrompt]
	fn := c.replies[systemPrompt]
	c.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("no reply scripted for prompt")
	}
	return fn(n)
}

func (c *scriptedClient) count(systemPrompt string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[systemPrompt]
}

func (c *scriptedClient) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func reply(s string) func(int) (string, error) {
	return func(int) (string, error) { return s, nil }
}

// countingImageClient returns a small PNG and counts calls.
type countingImageClient struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingImageClient) ImageGenerate(ctx context.Context, prompt string, params ImageParams) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return pngBytes(8, 6), nil
}

func (c *countingImageClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeRenderer writes a placeholder file and reports every plan entry in
// the TOC, optionally with one title changed.
type fakeRenderer struct {
	mu       sync.Mutex
	calls    int
	plans    []LayoutPlan
	mangle   func(call int, toc []TOCEntry) []TOCEntry
	renderFn func(plan LayoutPlan) error
}

func (r *fakeRenderer) Render(ctx context.Context, plan LayoutPlan, pdfPath string) (RenderResult, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.plans = append(r.plans, plan)
	r.mu.Unlock()

	if r.renderFn != nil {
		if err := r.renderFn(plan); err != nil {
			return RenderResult{}, err
		}
	}
	toc := make([]TOCEntry, len(plan.TOC))
	for i, e := range plan.TOC {
		e.Page = i + 3
		toc[i] = e
	}
	if r.mangle != nil {
		toc = r.mangle(call, toc)
	}
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.3\n"), 0o644); err != nil {
		return RenderResult{}, err
	}
	return RenderResult{PDFPath: pdfPath, PageCount: len(plan.Entries) + 2, TOC: toc}, nil
}

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pngBytes(w, h), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		APIKey:    "test-key",
		Logger:    discardLogger(),
		OutputDir: t.TempDir(),
		Images: ImageConfig{
			Backend:     "horde",
			Max:         4,
			MaxAttempts: 2,
			RetryDelay:  time.Millisecond,
		},
		Pipeline: PipelineConfig{
			MaxAttempts:       3,
			RetryDelay:        time.Millisecond,
			MaxVerifyAttempts: 3,
			TOCDepth:          2,
		},
	}
}

const (
	twoChapterText = "Getting Started\nInstall the tools and open a terminal.\n\nGoing Further\nWrite larger programs and share them."

	twoChapterStructure = `{"document_title": "A Small Guide", "chapters": [
		{"title": "Getting Started", "anchor": "Getting Started", "children": []},
		{"title": "Going Further", "anchor": "Going Further", "children": []}
	]}`

	emptyLayout = `{"tokens": {}}`

	noImages = `{"images": []}`
)

func twoChapterSource() Source {
	return Source{Path: "guide.pdf", Title: "Guide", Text: twoChapterText, PageCount: 2}
}

func testReference() Reference {
	return Reference{Path: "reference.pdf", PageCount: 4, Width: 612, Height: 792, SampleText: "Sample"}
}
