package bookcompiler

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ebookbot "github.com/opd-ai/ebookbot/src"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPlan(t *testing.T) ebookbot.LayoutPlan {
	t.Helper()
	doc := ebookbot.StructuredDocument{
		Title: "The \u201cQuiet\u201d Garden",
		Chapters: []ebookbot.ChapterNode{
			{ID: "chapter_1", Title: "Seeds", Level: 1, Body: "Plant them **early**.\n\n1. Dig\n2. Sow\n\n> Patience.", Children: []ebookbot.ChapterNode{
				{ID: "chapter_1_1", Title: "Soil", Level: 2, Body: "| Type | pH |\n|---|---|\n| Loam | 6.5 |\n\n```\nmix = soil + compost\n```"},
			}},
			{ID: "chapter_2", Title: "Harvest", Level: 1, Body: strings.Repeat("A long paragraph of text. ", 400)},
		},
	}

	imgPath := filepath.Join(t.TempDir(), "seed.png")
	writeImage(t, imgPath, 30, 20)
	assets := []ebookbot.ImageAsset{{ChapterID: "chapter_1", Path: imgPath, Width: 30, Height: 20, Caption: "Seeds in a tray"}}

	return ebookbot.Align(doc, ebookbot.DefaultDesignTokens(), assets, 2)
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 20, G: uint8(x * 8), B: uint8(y * 12), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompile(t *testing.T) {
	plan := testPlan(t)
	out := filepath.Join(t.TempDir(), "book", "final_ebook.pdf")

	result, err := NewBookCompiler(quietLogger()).Render(context.Background(), plan, out)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("output does not start with a PDF header")
	}
	if result.PDFPath != out {
		t.Errorf("PDFPath = %q, want %q", result.PDFPath, out)
	}
	// cover, contents, chapter 1 and at least two pages of chapter 2
	if result.PageCount < 5 {
		t.Errorf("PageCount = %d, want at least 5", result.PageCount)
	}

	if len(result.TOC) != 3 {
		t.Fatalf("len(TOC) = %d, want 3", len(result.TOC))
	}
	pages := map[string]int{}
	for _, e := range result.TOC {
		pages[e.ChapterID] = e.Page
	}
	if pages["chapter_1"] != 3 {
		t.Errorf("chapter_1 page = %d, want 3", pages["chapter_1"])
	}
	if pages["chapter_1_1"] < pages["chapter_1"] {
		t.Errorf("chapter_1_1 page %d before its parent", pages["chapter_1_1"])
	}
	if pages["chapter_2"] <= pages["chapter_1_1"] {
		t.Errorf("chapter_2 page = %d, want a new page after %d", pages["chapter_2"], pages["chapter_1_1"])
	}
}

func TestCompileSkipsMissingImages(t *testing.T) {
	plan := testPlan(t)
	plan.Entries[0].Images[0].Path = filepath.Join(t.TempDir(), "gone.png")

	out := filepath.Join(t.TempDir(), "book.pdf")
	if _, err := NewBookCompiler(quietLogger()).Compile(context.Background(), plan, out); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
}

func TestCompileErrors(t *testing.T) {
	bc := NewBookCompiler(quietLogger())
	if _, err := bc.Compile(context.Background(), ebookbot.LayoutPlan{}, filepath.Join(t.TempDir(), "x.pdf")); err == nil {
		t.Error("Compile() of an empty plan should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bc.Compile(ctx, testPlan(t), filepath.Join(t.TempDir(), "x.pdf")); err == nil {
		t.Error("Compile() with a canceled context should fail")
	}
}

func TestParseHexColor(t *testing.T) {
	def := [3]int{1, 2, 3}
	tests := []struct {
		in   string
		want [3]int
	}{
		{"#1F2937", [3]int{31, 41, 55}},
		{"ffffff", [3]int{255, 255, 255}},
		{" #000000 ", [3]int{0, 0, 0}},
		{"#fff", def},
		{"blue", def},
		{"#zzzzzz", def},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in, def); got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCollapseSpaces(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"a  b", "a b"},
		{"\n  a\tb  ", " a b "},
		{"   ", " "},
	}
	for _, tt := range tests {
		if got := collapseSpaces(tt.in); got != tt.want {
			t.Errorf("collapseSpaces(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	bc := NewBookCompiler(quietLogger())
	got := bc.cleanText("\u201cHi\u201d \u2018there\u2019\u2026 done\u200b")
	if want := "\"Hi\" 'there'... done"; got != want {
		t.Errorf("cleanText() = %q, want %q", got, want)
	}
}
