package ebookbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SafeFonts are the core PDF fonts the renderer can use without embedding.
var SafeFonts = []string{"Arial", "Helvetica", "Times", "Courier"}

// Token names the renderer and aligner read.
const (
	TokenPageWidth        = "page_width"
	TokenPageHeight       = "page_height"
	TokenMarginLeft       = "margin_left"
	TokenMarginRight      = "margin_right"
	TokenMarginTop        = "margin_top"
	TokenMarginBottom     = "margin_bottom"
	TokenHeadingFont      = "heading_font_family"
	TokenHeading1Size     = "heading1_font_size"
	TokenHeading2Size     = "heading2_font_size"
	TokenHeading3Size     = "heading3_font_size"
	TokenHeadingColor     = "heading_color"
	TokenBodyFont         = "body_font_family"
	TokenBodySize         = "body_font_size"
	TokenLineHeight       = "line_height"
	TokenParagraphSpacing = "paragraph_spacing"
	TokenAccentColor      = "accent_color"
	TokenChapterPageBreak = "chapter_page_break"
)

// DefaultDesignTokens is an A4 layout used for any token the reference does
// not provide.
func DefaultDesignTokens() DesignTokens {
	return DesignTokens{
		TokenPageWidth:        595.28,
		TokenPageHeight:       841.89,
		TokenMarginLeft:       56.0,
		TokenMarginRight:      56.0,
		TokenMarginTop:        64.0,
		TokenMarginBottom:     64.0,
		TokenHeadingFont:      "Helvetica",
		TokenHeading1Size:     24.0,
		TokenHeading2Size:     18.0,
		TokenHeading3Size:     14.0,
		TokenHeadingColor:     "#1F2937",
		TokenBodyFont:         "Times",
		TokenBodySize:         11.0,
		TokenLineHeight:       1.4,
		TokenParagraphSpacing: 6.0,
		TokenAccentColor:      "#2563EB",
		TokenChapterPageBreak: 1.0,
	}
}

type layoutResponse struct {
	Tokens map[string]interface{} `json:"tokens"`
}

// LayoutAnalyzer derives design tokens from the reference document.
type LayoutAnalyzer struct {
	agent *Agent
}

func NewLayoutAnalyzer(client Client, logger *slog.Logger) *LayoutAnalyzer {
	return &LayoutAnalyzer{agent: NewAgent("layout", GetLayoutPrompt(), client, logger)}
}

const maxReferenceSample = 8000

func (l *LayoutAnalyzer) Analyze(ctx context.Context, ref Reference) (DesignTokens, error) {
	sample := truncate(ref.SampleText, maxReferenceSample)
	prompt := fmt.Sprintf("Page width: %.2fpt\nPage height: %.2fpt\nPage count: %d\n\nSample text:\n%s",
		ref.Width, ref.Height, ref.PageCount, sample)

	var resp layoutResponse
	if err := l.agent.Invoke(ctx, prompt, &resp); err != nil {
		return nil, err
	}
	tokens := mergeTokens(ref, resp.Tokens)
	if err := ValidateTokens(tokens); err != nil {
		return nil, l.agent.HandleFailure(err)
	}
	l.agent.Log("design tokens derived", "tokens", len(tokens))
	return tokens, nil
}

func mergeTokens(ref Reference, fromModel map[string]interface{}) DesignTokens {
	tokens := DefaultDesignTokens()
	if ref.Width > 0 && ref.Height > 0 {
		tokens[TokenPageWidth] = ref.Width
		tokens[TokenPageHeight] = ref.Height
	}
	for k, v := range fromModel {
		if v == nil {
			continue
		}
		tokens[k] = v
	}
	for _, k := range []string{TokenHeadingFont, TokenBodyFont} {
		if name, ok := tokens[k].(string); ok {
			tokens[k] = canonicalFont(name)
		}
	}
	return tokens
}

func canonicalFont(name string) string {
	for _, f := range SafeFonts {
		if strings.EqualFold(strings.TrimSpace(name), f) {
			return f
		}
	}
	return name
}

// ValidateTokens reports the first token that would make the book unrenderable.
func ValidateTokens(t DesignTokens) error {
	for _, k := range []string{
		TokenPageWidth, TokenPageHeight,
		TokenHeading1Size, TokenHeading2Size, TokenHeading3Size,
		TokenBodySize, TokenLineHeight,
	} {
		if t.Float(k, -1) <= 0 {
			return schemaErrorf("token %s must be a positive number, got %v", k, t[k])
		}
	}
	for _, k := range []string{TokenMarginLeft, TokenMarginRight, TokenMarginTop, TokenMarginBottom} {
		if t.Float(k, -1) < 0 {
			return schemaErrorf("token %s must be a non-negative number, got %v", k, t[k])
		}
	}
	if t.Float(TokenMarginLeft, 0)+t.Float(TokenMarginRight, 0) >= t.Float(TokenPageWidth, 0) {
		return schemaErrorf("horizontal margins leave no room on the page")
	}
	if t.Float(TokenMarginTop, 0)+t.Float(TokenMarginBottom, 0) >= t.Float(TokenPageHeight, 0) {
		return schemaErrorf("vertical margins leave no room on the page")
	}
	for _, k := range []string{TokenHeadingFont, TokenBodyFont} {
		name, _ := t[k].(string)
		if !isSafeFont(name) {
			return schemaErrorf("token %s: font %q is not one of %s", k, name, strings.Join(SafeFonts, ", "))
		}
	}
	return nil
}

func isSafeFont(name string) bool {
	for _, f := range SafeFonts {
		if name == f {
			return true
		}
	}
	return false
}
