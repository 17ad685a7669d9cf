package ebookbot

import (
	"strconv"
	"time"
)

// ChapterNode is one section of the source document. Level 1 is a chapter.
type ChapterNode struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Level    int           `json:"level"`
	Body     string        `json:"body,omitempty"`
	Children []ChapterNode `json:"children,omitempty"`
}

// StructuredDocument is the chapter tree plus the document title.
type StructuredDocument struct {
	Title    string        `json:"title"`
	Chapters []ChapterNode `json:"chapters"`
}

// Walk visits every node depth-first in document order.
func (d StructuredDocument) Walk(fn func(n ChapterNode)) {
	var visit func(nodes []ChapterNode)
	visit = func(nodes []ChapterNode) {
		for _, n := range nodes {
			fn(n)
			visit(n.Children)
		}
	}
	visit(d.Chapters)
}

// Count returns the number of nodes in the tree.
func (d StructuredDocument) Count() int {
	n := 0
	d.Walk(func(ChapterNode) { n++ })
	return n
}

// DesignTokens maps a style name to a number or a string.
type DesignTokens map[string]interface{}

// Float returns the numeric token name, or def when it is missing or not a number.
func (t DesignTokens) Float(name string, def float64) float64 {
	switch v := t[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// String returns the string token name, or def.
func (t DesignTokens) String(name, def string) string {
	if v, ok := t[name].(string); ok && v != "" {
		return v
	}
	return def
}

// Clone returns a copy that can be modified without touching t.
func (t DesignTokens) Clone() DesignTokens {
	out := make(DesignTokens, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

type ImageRequest struct {
	Prompt    string `json:"prompt"`
	ChapterID string `json:"chapter_id"`
	Caption   string `json:"caption,omitempty"`
	CacheKey  string `json:"cache_key"`
}

type ImageAsset struct {
	Path      string `json:"path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CacheKey  string `json:"cache_key"`
	ChapterID string `json:"chapter_id"`
	Caption   string `json:"caption,omitempty"`
	Cached    bool   `json:"cached"`
}

// ImageResult records what happened to one request. Exactly one of Asset and
// Error is set.
type ImageResult struct {
	Request ImageRequest `json:"request"`
	Asset   *ImageAsset  `json:"asset,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Layout types an entry can be drawn with.
const (
	LayoutFullWidthText  = "full_width_text"
	LayoutImageFullWidth = "image_full_width"
	LayoutImageWithText  = "image_with_text"
)

type LayoutEntry struct {
	ChapterID string       `json:"chapter_id"`
	Title     string       `json:"title"`
	Level     int          `json:"level"`
	Body      string       `json:"body,omitempty"`
	Style     EntryStyle   `json:"style"`
	Layout    string       `json:"layout"`
	Images    []ImageAsset `json:"images,omitempty"`
}

// EntryStyle is the subset of the design tokens that applies to one entry.
type EntryStyle struct {
	HeadingFont     string  `json:"heading_font"`
	HeadingSize     float64 `json:"heading_size"`
	HeadingColor    string  `json:"heading_color"`
	BodyFont        string  `json:"body_font"`
	BodySize        float64 `json:"body_size"`
	LineHeight      float64 `json:"line_height"`
	PageBreakBefore bool    `json:"page_break_before"`
}

type TOCEntry struct {
	ChapterID string `json:"chapter_id,omitempty"`
	Title     string `json:"title"`
	Level     int    `json:"level"`
	Page      int    `json:"page,omitempty"`
}

// LayoutPlan is everything the renderer needs to draw the book.
type LayoutPlan struct {
	Title   string        `json:"title"`
	Entries []LayoutEntry `json:"entries"`
	TOC     []TOCEntry    `json:"toc"`
	Tokens  DesignTokens  `json:"tokens"`
}

// AssetCount returns the number of images placed in the plan.
func (p LayoutPlan) AssetCount() int {
	n := 0
	for _, e := range p.Entries {
		n += len(e.Images)
	}
	return n
}

type RenderResult struct {
	PDFPath   string     `json:"pdf_path"`
	PageCount int        `json:"page_count"`
	TOC       []TOCEntry `json:"toc"`
}

// RunSummary is written at the end of every run.
type RunSummary struct {
	RunID          string            `json:"run_id"`
	State          State             `json:"state"`
	FailedStage    State             `json:"failed_stage,omitempty"`
	VerifyAttempts int               `json:"verify_attempts"`
	Artifacts      map[string]string `json:"artifacts"`
	ImagesFailed   int               `json:"images_failed"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}
