package bookcompiler

import (
	"log/slog"

	"github.com/jung-kurt/gofpdf"
)

// BookCompiler draws a layout plan into a PDF.
type BookCompiler struct {
	pdf         *gofpdf.Fpdf
	tr          func(string) string
	logger      *slog.Logger
	page        PageSetup
	chapterFont string
	textFont    string
	textSize    float64
	lineHt      float64
	paraSpacing float64
	accent      [3]int
	toc         []ToCEntry
	pageNumbers bool
	tocTitle    string
	tocLevels   map[int]TextStyle // Different styles for different ToC levels
}

// PageSetup is the page geometry in points.
type PageSetup struct {
	Width, Height                                    float64
	MarginLeft, MarginRight, MarginTop, MarginBottom float64
}

// ContentWidth is the width between the side margins.
func (p PageSetup) ContentWidth() float64 {
	return p.Width - p.MarginLeft - p.MarginRight
}

// ContentHeight is the height between the top and bottom margins.
func (p PageSetup) ContentHeight() float64 {
	return p.Height - p.MarginTop - p.MarginBottom
}

// ToCEntry represents a table of contents entry
type ToCEntry struct {
	ChapterID string
	Title     string
	Level     int
	PageNum   int
	Link      int // Internal PDF link identifier
}

// TextStyle holds current text formatting state
type TextStyle struct {
	FontFamily string
	Style      string
	Size       float64
	Alignment  string
}
