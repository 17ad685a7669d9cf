package bookcompiler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/russross/blackfriday/v2"
	"golang.org/x/net/html"
)

const listIndent = 14.0

// renderMarkdown draws a chapter body. Bodies are markdown; plain text is
// treated as paragraphs separated by blank lines.
func (bc *BookCompiler) renderMarkdown(body string) error {
	htmlbytes := blackfriday.Run([]byte(body))
	doc, err := html.Parse(bytes.NewReader(htmlbytes))
	if err != nil {
		return fmt.Errorf("parsing body html: %w", err)
	}
	bc.pdf.SetFont(bc.textFont, "", bc.textSize)
	bc.renderNode(doc)
	return nil
}

func (bc *BookCompiler) renderNode(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := n.Data
		if findParent(n, "pre") == nil {
			text = collapseSpaces(text)
			if strings.TrimSpace(text) == "" && isBlock(n.Parent) {
				return
			}
		}
		if text != "" {
			bc.pdf.Write(bc.lineHt, bc.text(text))
		}
	case html.ElementNode:
		bc.renderElement(n)
	default:
		bc.renderChildren(n)
	}
}

func (bc *BookCompiler) renderElement(n *html.Node) {
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		size := bc.textSize * headingScale(n.Data)
		bc.pdf.Ln(bc.paraSpacing)
		bc.ensureSpace(size * 3)
		bc.pdf.SetFont(bc.chapterFont, "B", size)
		bc.pdf.Write(size*1.2, bc.text(strings.TrimSpace(getTextContent(n))))
		bc.pdf.Ln(size * 1.4)
		bc.pdf.SetFont(bc.textFont, "", bc.textSize)
	case "p":
		bc.renderChildren(n)
		bc.pdf.Ln(bc.lineHt + bc.paraSpacing)
	case "em", "i":
		bc.withStyle("I", n)
	case "strong", "b":
		bc.withStyle("B", n)
	case "code":
		if findParent(n, "pre") != nil {
			bc.renderChildren(n)
			return
		}
		bc.pdf.SetFont("Courier", "", bc.textSize*0.9)
		bc.renderChildren(n)
		bc.pdf.SetFont(bc.textFont, "", bc.textSize)
	case "pre":
		bc.pdf.SetFont("Courier", "", bc.textSize*0.9)
		bc.renderChildren(n)
		bc.pdf.SetFont(bc.textFont, "", bc.textSize)
		bc.pdf.Ln(bc.lineHt + bc.paraSpacing)
	case "ul", "ol":
		left, _, _, _ := bc.pdf.GetMargins()
		bc.pdf.SetLeftMargin(left + listIndent)
		bc.renderChildren(n)
		bc.pdf.SetLeftMargin(left)
		bc.pdf.SetX(left)
		bc.pdf.Ln(bc.paraSpacing)
	case "li":
		left, _, _, _ := bc.pdf.GetMargins()
		bc.pdf.SetX(left)
		marker := "• "
		if p := n.Parent; p != nil && p.Data == "ol" {
			marker = fmt.Sprintf("%d. ", countPreviousSiblings(n)+1)
		}
		bc.pdf.Write(bc.lineHt, bc.text(marker))
		bc.renderChildren(n)
		bc.pdf.Ln(bc.lineHt)
	case "blockquote":
		left, _, _, _ := bc.pdf.GetMargins()
		bc.pdf.SetLeftMargin(left + listIndent)
		bc.pdf.SetX(left + listIndent)
		bc.withStyle("I", n)
		bc.pdf.SetLeftMargin(left)
		bc.pdf.SetX(left)
	case "table":
		bc.renderTable(n)
		bc.pdf.Ln(bc.paraSpacing)
	case "br":
		bc.pdf.Ln(bc.lineHt)
	case "hr":
		y := bc.pdf.GetY() + bc.paraSpacing
		bc.pdf.SetDrawColor(bc.accent[0], bc.accent[1], bc.accent[2])
		bc.pdf.Line(bc.page.MarginLeft, y, bc.page.Width-bc.page.MarginRight, y)
		bc.pdf.SetDrawColor(0, 0, 0)
		bc.pdf.SetY(y + bc.paraSpacing)
	case "img", "script", "style", "head":
	default:
		bc.renderChildren(n)
	}
}

// withStyle renders the children of n in the given font style and restores
// the regular body font afterwards.
func (bc *BookCompiler) withStyle(style string, n *html.Node) {
	bc.pdf.SetFont(bc.textFont, style, bc.textSize)
	bc.renderChildren(n)
	bc.pdf.SetFont(bc.textFont, "", bc.textSize)
}

func (bc *BookCompiler) renderChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		bc.renderNode(c)
	}
}

func headingScale(tag string) float64 {
	switch tag {
	case "h1":
		return 1.6
	case "h2":
		return 1.4
	case "h3":
		return 1.2
	default:
		return 1.1
	}
}

func isBlock(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return true
	}
	switch n.Data {
	case "html", "body", "ul", "ol", "li", "blockquote", "table", "thead", "tbody", "tr", "div":
		return true
	}
	return false
}
