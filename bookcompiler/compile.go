package bookcompiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	ebookbot "github.com/opd-ai/ebookbot/src"
)

// Compile renders plan into pdfPath. The contents page needs the page of
// every chapter, so the book is laid out twice: the first pass records the
// pages, the second draws them.
func (bc *BookCompiler) Compile(ctx context.Context, plan ebookbot.LayoutPlan, pdfPath string) (ebookbot.RenderResult, error) {
	if len(plan.Entries) == 0 {
		return ebookbot.RenderResult{}, fmt.Errorf("layout plan has no entries")
	}
	bc.configure(plan.Tokens)
	bc.toc = make([]ToCEntry, 0, len(plan.TOC))
	for _, e := range plan.TOC {
		bc.toc = append(bc.toc, ToCEntry{ChapterID: e.ChapterID, Title: e.Title, Level: e.Level})
	}

	// First pass: collect ToC page numbers
	bc.newDocument(plan.Title)
	pages, err := bc.renderBook(ctx, plan)
	if err != nil {
		return ebookbot.RenderResult{}, fmt.Errorf("collecting page numbers: %w", err)
	}
	for i := range bc.toc {
		bc.toc[i].PageNum = pages[bc.toc[i].ChapterID]
	}

	// Second pass: the real document
	bc.newDocument(plan.Title)
	if _, err := bc.renderBook(ctx, plan); err != nil {
		return ebookbot.RenderResult{}, err
	}
	pageCount := bc.pdf.PageNo()

	if err := os.MkdirAll(filepath.Dir(pdfPath), 0o755); err != nil {
		return ebookbot.RenderResult{}, fmt.Errorf("creating output directory: %w", err)
	}
	if err := bc.pdf.OutputFileAndClose(pdfPath); err != nil {
		return ebookbot.RenderResult{}, fmt.Errorf("writing %s: %w", pdfPath, err)
	}
	bc.logger.Info("pdf written", "path", pdfPath, "pages", pageCount, "entries", len(plan.Entries))

	result := ebookbot.RenderResult{PDFPath: pdfPath, PageCount: pageCount}
	for _, e := range bc.toc {
		if e.PageNum == 0 {
			continue
		}
		result.TOC = append(result.TOC, ebookbot.TOCEntry{
			ChapterID: e.ChapterID,
			Title:     e.Title,
			Level:     e.Level,
			Page:      e.PageNum,
		})
	}
	return result, nil
}

// renderBook draws the cover, the contents and every entry, returning the
// page each entry starts on.
func (bc *BookCompiler) renderBook(ctx context.Context, plan ebookbot.LayoutPlan) (map[string]int, error) {
	bc.renderCover(plan.Title)
	bc.generateToC()

	pages := make(map[string]int, len(plan.Entries))
	for i, entry := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := bc.renderEntry(entry, i == 0, pages); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", entry.ChapterID, err)
		}
	}
	if err := bc.pdf.Error(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (bc *BookCompiler) renderEntry(e ebookbot.LayoutEntry, first bool, pages map[string]int) error {
	if first || e.Style.PageBreakBefore {
		bc.pdf.AddPage()
	} else {
		bc.pdf.Ln(e.Style.HeadingSize)
		bc.ensureSpace(e.Style.HeadingSize * 3)
	}
	pages[e.ChapterID] = bc.pdf.PageNo()
	for _, t := range bc.toc {
		if t.ChapterID == e.ChapterID {
			bc.pdf.SetLink(t.Link, bc.pdf.GetY(), -1)
			break
		}
	}
	bc.pdf.Bookmark(bc.text(e.Title), max(e.Level-1, 0), -1)

	// Heading
	color := parseHexColor(e.Style.HeadingColor, [3]int{0, 0, 0})
	bc.pdf.SetTextColor(color[0], color[1], color[2])
	bc.pdf.SetFont(e.Style.HeadingFont, "B", e.Style.HeadingSize)
	bc.pdf.MultiCell(0, e.Style.HeadingSize*1.25, bc.text(e.Title), "", "L", false)
	bc.pdf.SetTextColor(0, 0, 0)
	bc.pdf.Ln(e.Style.HeadingSize * 0.5)

	if e.Layout != ebookbot.LayoutFullWidthText {
		bc.renderImages(e)
	}
	if e.Body == "" {
		return nil
	}
	bc.textFont, bc.textSize = e.Style.BodyFont, e.Style.BodySize
	bc.lineHt = e.Style.BodySize * e.Style.LineHeight
	return bc.renderMarkdown(e.Body)
}

// renderImages draws the entry's images centered at content width, keeping
// their aspect ratio. Missing files are skipped.
func (bc *BookCompiler) renderImages(e ebookbot.LayoutEntry) {
	maxHt := bc.page.ContentHeight() * 0.45
	if e.Layout == ebookbot.LayoutImageFullWidth {
		maxHt = bc.page.ContentHeight() * 0.8
	}

	for _, img := range e.Images {
		if _, err := os.Stat(img.Path); err != nil {
			bc.logger.Warn("skipping missing image", "path", img.Path, "chapter_id", e.ChapterID)
			continue
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		ratio := 0.0
		if info := bc.pdf.RegisterImageOptions(img.Path, opts); info != nil && info.Width() > 0 {
			ratio = info.Height() / info.Width()
		} else if img.Width > 0 {
			ratio = float64(img.Height) / float64(img.Width)
		}
		if ratio <= 0 {
			bc.logger.Warn("skipping unreadable image", "path", img.Path)
			continue
		}

		w := bc.page.ContentWidth()
		h := w * ratio
		if h > maxHt {
			h = maxHt
			w = h / ratio
		}
		captionHt := 0.0
		if img.Caption != "" {
			captionHt = bc.textSize * 1.6
		}
		bc.ensureSpace(h + captionHt)

		x := bc.page.MarginLeft + (bc.page.ContentWidth()-w)/2
		y := bc.pdf.GetY()
		bc.pdf.ImageOptions(img.Path, x, y, w, h, false, opts, 0, "")
		bc.pdf.SetY(y + h + 4)

		if img.Caption != "" {
			bc.pdf.SetFont(e.Style.BodyFont, "I", e.Style.BodySize*0.85)
			bc.pdf.MultiCell(0, e.Style.BodySize*1.2, bc.text(img.Caption), "", "C", false)
		}
		bc.pdf.Ln(bc.paraSpacing)
	}
}

// ensureSpace starts a new page when less than ht is left above the bottom margin.
func (bc *BookCompiler) ensureSpace(ht float64) {
	if bc.pdf.GetY()+ht > bc.page.Height-bc.page.MarginBottom {
		bc.pdf.AddPage()
	}
}
