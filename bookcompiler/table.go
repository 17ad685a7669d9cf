package bookcompiler

import (
	"strings"

	"golang.org/x/net/html"
)

const cellPadding = 3.0

func (bc *BookCompiler) renderTable(n *html.Node) {
	var headers []string
	var rows [][]string

	for _, tr := range findAll(n, "tr") {
		var row []string
		isHeaderRow := false
		for td := tr.FirstChild; td != nil; td = td.NextSibling {
			if td.Type != html.ElementNode || (td.Data != "td" && td.Data != "th") {
				continue
			}
			cellText := bc.text(collapseSpaces(strings.TrimSpace(getTextContent(td))))
			if td.Data == "th" {
				headers = append(headers, cellText)
				isHeaderRow = true
			} else {
				row = append(row, cellText)
			}
		}
		if !isHeaderRow && len(row) > 0 {
			rows = append(rows, row)
		}
	}

	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return
	}
	colWidth := bc.page.ContentWidth() / float64(colCount)
	fontSize := bc.textSize * 0.9
	lineHt := fontSize * 1.4
	x := bc.page.MarginLeft

	// Draw headers
	if len(headers) > 0 {
		bc.ensureSpace(lineHt)
		bc.pdf.SetFont(bc.textFont, "B", fontSize)
		bc.pdf.SetFillColor(240, 240, 240) // Light gray background
		bc.pdf.SetX(x)
		for _, header := range headers {
			bc.pdf.CellFormat(colWidth, lineHt, bc.fitText(header, colWidth-2*cellPadding), "1", 0, "L", true, 0, "")
		}
		bc.pdf.Ln(lineHt)
	}

	// Draw rows
	bc.pdf.SetFont(bc.textFont, "", fontSize)
	for _, row := range rows {
		cells := make([][]string, len(row))
		maxHt := lineHt
		// First pass: calculate max height for this row
		for i, cell := range row {
			cells[i] = bc.SplitText(cell, colWidth-2*cellPadding)
			if ht := float64(len(cells[i])) * lineHt; ht > maxHt {
				maxHt = ht
			}
		}
		bc.ensureSpace(maxHt)

		// Second pass: draw cells
		y := bc.pdf.GetY()
		for i := 0; i < colCount; i++ {
			cx := x + float64(i)*colWidth
			bc.pdf.Rect(cx, y, colWidth, maxHt, "D")
			if i >= len(cells) {
				continue
			}
			for j, line := range cells[i] {
				bc.pdf.SetXY(cx+cellPadding, y+float64(j)*lineHt)
				bc.pdf.CellFormat(colWidth-2*cellPadding, lineHt, line, "", 0, "L", false, 0, "")
			}
		}
		bc.pdf.SetXY(x, y+maxHt)
	}
	bc.pdf.SetFont(bc.textFont, "", bc.textSize)
}

// SplitText wraps text into lines no wider than width in the current font.
func (bc *BookCompiler) SplitText(text string, width float64) []string {
	var lines []string
	words := strings.Split(text, " ")
	currentLine := ""

	for _, word := range words {
		testLine := currentLine
		if testLine != "" {
			testLine += " "
		}
		testLine += word

		if bc.pdf.GetStringWidth(testLine) > width {
			if currentLine != "" {
				lines = append(lines, currentLine)
				currentLine = word
			} else {
				lines = append(lines, word)
			}
		} else {
			currentLine = testLine
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}
