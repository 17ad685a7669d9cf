package ebookbot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

type illustrationResponse struct {
	Images []struct {
		ChapterID string `json:"chapter_id"`
		Value     string `json:"value"`
		Prompt    string `json:"prompt"`
		Caption   string `json:"caption"`
	} `json:"images"`
}

// CacheKey is the hex SHA-256 of the exact prompt text.
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// NewImageRequest builds a request with its cache key filled in.
func NewImageRequest(chapterID, prompt, caption string) ImageRequest {
	return ImageRequest{
		Prompt:    prompt,
		ChapterID: chapterID,
		Caption:   caption,
		CacheKey:  CacheKey(prompt),
	}
}

// IllustrationPlanner decides which chapters get an illustration.
type IllustrationPlanner struct {
	agent *Agent
	max   int
	style string
}

func NewIllustrationPlanner(client Client, cfg ImageConfig, logger *slog.Logger) *IllustrationPlanner {
	return &IllustrationPlanner{
		agent: NewAgent("illustration", GetIllustrationPrompt(), client, logger),
		max:   cfg.Max,
		style: strings.TrimSpace(cfg.Style),
	}
}

const outlineExcerptChars = 600

func (p *IllustrationPlanner) Plan(ctx context.Context, doc StructuredDocument) ([]ImageRequest, error) {
	if p.max <= 0 {
		p.agent.Log("image generation disabled")
		return []ImageRequest{}, nil
	}

	var resp illustrationResponse
	if err := p.agent.Invoke(ctx, outline(doc), &resp); err != nil {
		return nil, err
	}

	order := map[string]int{}
	i := 0
	doc.Walk(func(n ChapterNode) {
		order[n.ID] = i
		i++
	})

	byChapter := map[string]ImageRequest{}
	for _, img := range resp.Images {
		if !strings.EqualFold(strings.TrimSpace(img.Value), "high") {
			continue
		}
		prompt := strings.TrimSpace(img.Prompt)
		if _, ok := order[img.ChapterID]; !ok || prompt == "" {
			p.agent.logger.Warn("dropping image request", "chapter_id", img.ChapterID, "empty_prompt", prompt == "")
			continue
		}
		if _, dup := byChapter[img.ChapterID]; dup {
			continue
		}
		if p.style != "" {
			prompt = prompt + ", " + p.style
		}
		byChapter[img.ChapterID] = NewImageRequest(img.ChapterID, prompt, strings.TrimSpace(img.Caption))
	}

	requests := make([]ImageRequest, 0, len(byChapter))
	doc.Walk(func(n ChapterNode) {
		if req, ok := byChapter[n.ID]; ok && len(requests) < p.max {
			requests = append(requests, req)
		}
	})
	p.agent.Log("illustrations planned", "requested", len(resp.Images), "kept", len(requests))
	return requests, nil
}

// outline renders the tree as the planner's user prompt.
func outline(doc StructuredDocument) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Book: %s\n\n", doc.Title)
	doc.Walk(func(n ChapterNode) {
		indent := strings.Repeat("  ", max(n.Level-1, 0))
		fmt.Fprintf(&sb, "%s- [%s] %s\n", indent, n.ID, n.Title)
		excerpt := strings.Join(strings.Fields(n.Body), " ")
		if len(excerpt) > outlineExcerptChars {
			excerpt = truncate(excerpt, outlineExcerptChars) + "..."
		}
		if excerpt != "" {
			fmt.Fprintf(&sb, "%s  %s\n", indent, excerpt)
		}
	})
	return sb.String()
}
