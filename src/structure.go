package ebookbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type structureResponse struct {
	DocumentTitle string       `json:"document_title"`
	Chapters      []rawChapter `json:"chapters"`
}

type rawChapter struct {
	Title    string       `json:"title"`
	Anchor   string       `json:"anchor"`
	Body     string       `json:"body"`
	Children []rawChapter `json:"children"`
}

// StructureExtractor turns the raw source text into a chapter tree.
type StructureExtractor struct {
	agent *Agent
}

func NewStructureExtractor(client Client, logger *slog.Logger) *StructureExtractor {
	return &StructureExtractor{agent: NewAgent("structure", GetStructurePrompt(), client, logger)}
}

func (s *StructureExtractor) Extract(ctx context.Context, src Source) (StructuredDocument, error) {
	prompt := fmt.Sprintf("Title hint: %s\n\nText:\n%s", src.Title, src.Text)

	var resp structureResponse
	if err := s.agent.Invoke(ctx, prompt, &resp); err != nil {
		return StructuredDocument{}, err
	}
	doc, err := buildDocument(resp, src)
	if err != nil {
		return StructuredDocument{}, s.agent.HandleFailure(err)
	}
	s.agent.Log("structure extracted", "title", doc.Title, "nodes", doc.Count())
	return doc, nil
}

func buildDocument(resp structureResponse, src Source) (StructuredDocument, error) {
	if len(resp.Chapters) == 0 {
		return StructuredDocument{}, schemaErrorf("no chapters in response")
	}
	if err := checkTitles(resp.Chapters, ""); err != nil {
		return StructuredDocument{}, err
	}
	fillBodies(flatten(resp.Chapters), src.Text)

	title := strings.TrimSpace(resp.DocumentTitle)
	if title == "" {
		title = src.Title
	}
	return StructuredDocument{
		Title:    title,
		Chapters: toNodes(resp.Chapters, "chapter", 1),
	}, nil
}

func checkTitles(chapters []rawChapter, path string) error {
	for i, c := range chapters {
		where := fmt.Sprintf("%s%d", path, i+1)
		if strings.TrimSpace(c.Title) == "" {
			return schemaErrorf("chapter %s has no title", where)
		}
		if err := checkTitles(c.Children, where+"."); err != nil {
			return err
		}
	}
	return nil
}

// flatten returns pointers to every node in document order.
func flatten(chapters []rawChapter) []*rawChapter {
	var out []*rawChapter
	for i := range chapters {
		out = append(out, &chapters[i])
		out = append(out, flatten(chapters[i].Children)...)
	}
	return out
}

// fillBodies gives every node without a body the source text between its
// heading and the next heading found after it.
func fillBodies(nodes []*rawChapter, text string) {
	lower := strings.ToLower(text)
	foldable := len(lower) == len(text)

	start := make([]int, len(nodes))
	headEnd := make([]int, len(nodes))
	cursor := 0
	for i, n := range nodes {
		start[i] = -1
		for _, needle := range []string{n.Anchor, n.Title} {
			needle = strings.TrimSpace(needle)
			if needle == "" {
				continue
			}
			idx := strings.Index(text[cursor:], needle)
			if idx < 0 && foldable {
				idx = strings.Index(lower[cursor:], strings.ToLower(needle))
			}
			if idx >= 0 {
				start[i] = cursor + idx
				headEnd[i] = start[i] + len(needle)
				cursor = headEnd[i]
				break
			}
		}
	}

	for i, n := range nodes {
		if strings.TrimSpace(n.Body) != "" || start[i] < 0 {
			n.Body = strings.TrimSpace(n.Body)
			continue
		}
		next := len(text)
		for j := i + 1; j < len(nodes); j++ {
			if start[j] >= 0 {
				next = start[j]
				break
			}
		}
		n.Body = strings.TrimSpace(text[headEnd[i]:next])
	}
}

func toNodes(chapters []rawChapter, prefix string, level int) []ChapterNode {
	nodes := make([]ChapterNode, 0, len(chapters))
	for i, c := range chapters {
		id := fmt.Sprintf("%s_%d", prefix, i+1)
		nodes = append(nodes, ChapterNode{
			ID:       id,
			Title:    strings.TrimSpace(c.Title),
			Level:    level,
			Body:     c.Body,
			Children: toNodes(c.Children, id, level+1),
		})
	}
	return nodes
}
