package bookcompiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"

	ebookbot "github.com/opd-ai/ebookbot/src"
)

// NewBookCompiler creates a new instance of BookCompiler. A compiler holds
// the state of one document and is not safe for concurrent use.
func NewBookCompiler(logger *slog.Logger) *BookCompiler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &BookCompiler{
		logger:      logger.With("component", "bookcompiler"),
		pageNumbers: true,
		tocTitle:    "Contents",
		tocLevels:   make(map[int]TextStyle),
	}
}

// Render draws plan into pdfPath.
func (bc *BookCompiler) Render(ctx context.Context, plan ebookbot.LayoutPlan, pdfPath string) (ebookbot.RenderResult, error) {
	return bc.Compile(ctx, plan, pdfPath)
}

// Add configuration methods
func (bc *BookCompiler) SetPageNumbers(enable bool) {
	bc.pageNumbers = enable
}

func (bc *BookCompiler) SetToCTitle(title string) {
	bc.tocTitle = title
}

// configure reads page geometry and fonts from the design tokens.
func (bc *BookCompiler) configure(tokens ebookbot.DesignTokens) {
	def := ebookbot.DefaultDesignTokens()
	num := func(name string) float64 { return tokens.Float(name, def.Float(name, 0)) }
	str := func(name string) string { return tokens.String(name, def.String(name, "")) }

	bc.page = PageSetup{
		Width:        num(ebookbot.TokenPageWidth),
		Height:       num(ebookbot.TokenPageHeight),
		MarginLeft:   num(ebookbot.TokenMarginLeft),
		MarginRight:  num(ebookbot.TokenMarginRight),
		MarginTop:    num(ebookbot.TokenMarginTop),
		MarginBottom: num(ebookbot.TokenMarginBottom),
	}
	bc.chapterFont = str(ebookbot.TokenHeadingFont)
	bc.textFont = str(ebookbot.TokenBodyFont)
	bc.textSize = num(ebookbot.TokenBodySize)
	bc.lineHt = bc.textSize * num(ebookbot.TokenLineHeight)
	bc.paraSpacing = num(ebookbot.TokenParagraphSpacing)
	bc.accent = parseHexColor(str(ebookbot.TokenAccentColor), [3]int{37, 99, 235})

	// Configure ToC styles
	bc.tocLevels[1] = TextStyle{FontFamily: bc.chapterFont, Style: "B", Size: bc.textSize + 3} // Chapter titles
	bc.tocLevels[2] = TextStyle{FontFamily: bc.chapterFont, Style: "", Size: bc.textSize + 1}  // Major sections
	bc.tocLevels[3] = TextStyle{FontFamily: bc.chapterFont, Style: "", Size: bc.textSize}      // Subsections
}

// newDocument starts an empty PDF with the configured page setup.
func (bc *BookCompiler) newDocument(title string) {
	bc.pdf = gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: bc.page.Width, Ht: bc.page.Height},
	})
	bc.pdf.SetMargins(bc.page.MarginLeft, bc.page.MarginTop, bc.page.MarginRight)
	bc.pdf.SetAutoPageBreak(true, bc.page.MarginBottom)
	bc.pdf.SetTitle(title, true)
	bc.pdf.SetCreator("ebookbot", true)
	bc.tr = bc.pdf.UnicodeTranslatorFromDescriptor("")

	// Enable page numbers if requested; the cover stays unnumbered
	if bc.pageNumbers {
		bc.pdf.SetFooterFunc(func() {
			if bc.pdf.PageNo() == 1 {
				return
			}
			bc.pdf.SetY(-bc.page.MarginBottom / 2)
			bc.pdf.SetFont(bc.textFont, "I", 8)
			bc.pdf.SetTextColor(90, 90, 90)
			bc.pdf.CellFormat(0, 10, fmt.Sprintf("%d", bc.pdf.PageNo()),
				"", 0, "C", false, 0, "")
			bc.pdf.SetTextColor(0, 0, 0)
		})
	}
}

func (bc *BookCompiler) renderCover(title string) {
	bc.pdf.AddPage()
	width := bc.page.ContentWidth()

	bc.pdf.SetFillColor(bc.accent[0], bc.accent[1], bc.accent[2])
	bc.pdf.Rect(bc.page.MarginLeft, bc.page.Height*0.3, width, 4, "F")

	size := bc.tocLevels[1].Size * 2
	bc.pdf.SetFont(bc.chapterFont, "B", size)
	bc.pdf.SetXY(bc.page.MarginLeft, bc.page.Height*0.36)
	bc.pdf.MultiCell(width, size*1.25, bc.text(title), "", "C", false)
}

// generateToC draws the contents page(s). Each entry links to its chapter.
func (bc *BookCompiler) generateToC() {
	bc.pdf.AddPage()

	// Add ToC title
	titleSize := bc.tocLevels[1].Size * 1.5
	bc.pdf.SetFont(bc.chapterFont, "B", titleSize)
	bc.pdf.CellFormat(0, titleSize*1.2, bc.text(bc.tocTitle), "", 1, "L", false, 0, "")
	bc.pdf.Ln(titleSize)
	bc.pdf.Bookmark(bc.text(bc.tocTitle), 0, -1)

	// Calculate width for different columns
	contentWidth := bc.page.ContentWidth()
	titleWidth := contentWidth * 0.85
	pageNumWidth := contentWidth * 0.15

	for i := range bc.toc {
		entry := &bc.toc[i]
		entry.Link = bc.pdf.AddLink()

		style, ok := bc.tocLevels[entry.Level]
		if !ok {
			style = bc.tocLevels[3]
		}
		bc.pdf.SetFont(style.FontFamily, style.Style, style.Size)

		indent := float64(entry.Level-1) * 14
		bc.pdf.SetX(bc.page.MarginLeft + indent)
		title := bc.fitText(bc.text(entry.Title), titleWidth-indent)
		rowHt := style.Size * 1.6

		bc.pdf.CellFormat(titleWidth-indent, rowHt, title, "", 0, "L", false, entry.Link, "")
		page := ""
		if entry.PageNum > 0 {
			page = fmt.Sprintf("%d", entry.PageNum)
		}
		bc.pdf.CellFormat(pageNumWidth, rowHt, page, "", 1, "R", false, entry.Link, "")
	}
}

// fitText shortens s with an ellipsis until it fits width in the current font.
func (bc *BookCompiler) fitText(s string, width float64) string {
	if bc.pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && bc.pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimSpace(string(runes)) + "..."
}

func (bc *BookCompiler) text(s string) string {
	return bc.tr(bc.cleanText(s))
}

func (bc *BookCompiler) cleanText(text string) string {
	// Replace characters the core fonts cannot show
	r := strings.NewReplacer(
		"\u201c", "\"", "\u201d", "\"",
		"\u2018", "'", "\u2019", "'",
		"\u2026", "...",
		"\u00a0", " ",
		"\u200b", "", "\ufeff", "", "\ufffd", "",
	)
	return r.Replace(text)
}
