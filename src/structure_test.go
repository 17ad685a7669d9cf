package ebookbot

import (
	"context"
	"errors"
	"testing"
)

func TestBuildDocument(t *testing.T) {
	text := "Intro\nWelcome to the book.\nPart One\nSetting up.\nDetails\nThe fine print.\nPart Two\nThe end."
	resp := structureResponse{
		DocumentTitle: "",
		Chapters: []rawChapter{
			{Title: "Intro", Anchor: "Intro"},
			{Title: "Part One", Anchor: "Part One", Children: []rawChapter{
				{Title: "Details", Anchor: "Details"},
			}},
			{Title: "Part Two", Body: "Given body."},
		},
	}

	doc, err := buildDocument(resp, Source{Title: "Hint Title", Text: text})
	if err != nil {
		t.Fatalf("buildDocument() error = %v", err)
	}
	if doc.Title != "Hint Title" {
		t.Errorf("Title = %q, want title hint", doc.Title)
	}
	if doc.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", doc.Count())
	}

	var got []ChapterNode
	doc.Walk(func(n ChapterNode) { got = append(got, n) })

	want := []struct {
		id    string
		level int
		body  string
	}{
		{"chapter_1", 1, "Welcome to the book."},
		{"chapter_2", 1, "Setting up."},
		{"chapter_2_1", 2, "The fine print."},
		{"chapter_3", 1, "Given body."},
	}
	for i, w := range want {
		if got[i].ID != w.id || got[i].Level != w.level || got[i].Body != w.body {
			t.Errorf("node %d = {%s %d %q}, want {%s %d %q}",
				i, got[i].ID, got[i].Level, got[i].Body, w.id, w.level, w.body)
		}
	}
}

func TestBuildDocumentSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		resp structureResponse
	}{
		{"no chapters", structureResponse{DocumentTitle: "Book"}},
		{"empty title", structureResponse{Chapters: []rawChapter{{Title: "  "}}}},
		{"empty child title", structureResponse{Chapters: []rawChapter{
			{Title: "One", Children: []rawChapter{{Title: ""}}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildDocument(tt.resp, Source{Text: "text"})
			if !errors.Is(err, ErrSchema) {
				t.Errorf("buildDocument() error = %v, want ErrSchema", err)
			}
		})
	}
}

func TestFillBodiesCaseInsensitiveAndMissing(t *testing.T) {
	text := "CHAPTER ONE\nfirst body\nChapter Two\nsecond body"
	nodes := []rawChapter{
		{Title: "Chapter One"},
		{Title: "Missing Heading"},
		{Title: "Chapter Two"},
	}
	fillBodies(flatten(nodes), text)

	if nodes[0].Body != "first body" {
		t.Errorf("body[0] = %q, want %q", nodes[0].Body, "first body")
	}
	if nodes[1].Body != "" {
		t.Errorf("body[1] = %q, want empty for heading not in source", nodes[1].Body)
	}
	if nodes[2].Body != "second body" {
		t.Errorf("body[2] = %q, want %q", nodes[2].Body, "second body")
	}
}

func TestStructureExtractorExtract(t *testing.T) {
	client := newScriptedClient().on(GetStructurePrompt(), reply(twoChapterStructure))
	doc, err := NewStructureExtractor(client, nil).Extract(context.Background(), twoChapterSource())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if doc.Title != "A Small Guide" {
		t.Errorf("Title = %q", doc.Title)
	}
	if len(doc.Chapters) != 2 || doc.Chapters[1].Body != "Write larger programs and share them." {
		t.Errorf("Chapters = %+v", doc.Chapters)
	}
}
