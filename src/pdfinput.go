package ebookbot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/model"
)

// Source is the raw text of the document being turned into an ebook.
type Source struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	Text      string `json:"-"`
	PageCount int    `json:"page_count"`
}

// Reference is what the layout analyzer sees of the style reference document.
type Reference struct {
	Path       string  `json:"path"`
	PageCount  int     `json:"page_count"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	SampleText string  `json:"-"`
}

// LoadSource reads up to cfg.MaxPages pages of the source PDF.
func LoadSource(path string, cfg InputConfig) (Source, error) {
	doc, total, err := readPDF(path, cfg.MaxPages, true)
	if err != nil {
		return Source{}, err
	}
	src := sourceFromDocument(path, doc, cfg.MaxSourceChars)
	src.PageCount = total
	if strings.TrimSpace(src.Text) == "" {
		return Source{}, fmt.Errorf("%w: %s has no extractable text", ErrMissingInput, path)
	}
	return src, nil
}

// LoadReference reads the geometry and the first cfg.ReferencePages pages of
// the reference PDF.
func LoadReference(path string, cfg InputConfig) (Reference, error) {
	doc, total, err := readPDF(path, cfg.ReferencePages, false)
	if err != nil {
		return Reference{}, err
	}
	ref := referenceFromDocument(path, doc)
	ref.PageCount = total
	return ref, nil
}

func readPDF(path string, maxPages int, stripRunningText bool) (*model.Document, int, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, 0, fmt.Errorf("checking %s: %w", path, err)
	}

	counter := tabula.Open(path)
	total, err := counter.PageCount()
	counter.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("counting pages of %s: %w", path, err)
	}
	if total == 0 {
		return nil, 0, fmt.Errorf("%w: %s has no pages", ErrMissingInput, path)
	}

	last := total
	if maxPages > 0 && maxPages < total {
		last = maxPages
	}
	ext := tabula.Open(path).PageRange(1, last)
	if stripRunningText {
		ext = ext.ExcludeHeadersAndFooters()
	}
	doc, _, err := ext.Document()
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return doc, total, nil
}

func sourceFromDocument(path string, doc *model.Document, maxChars int) Source {
	var sb strings.Builder
	for _, page := range doc.Pages {
		text := strings.TrimSpace(page.ExtractText())
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	text := sb.String()
	if maxChars > 0 {
		text = truncate(text, maxChars)
	}

	return Source{
		Path:  path,
		Title: documentTitle(path, doc.Metadata.Title, text),
		Text:  text,
	}
}

func referenceFromDocument(path string, doc *model.Document) Reference {
	ref := Reference{Path: path}
	if len(doc.Pages) > 0 {
		ref.Width = doc.Pages[0].Width
		ref.Height = doc.Pages[0].Height
	}
	var sb strings.Builder
	for _, page := range doc.Pages {
		sb.WriteString(strings.TrimSpace(page.ExtractText()))
		sb.WriteString("\n\n")
	}
	ref.SampleText = strings.TrimSpace(sb.String())
	return ref
}

// documentTitle prefers the PDF metadata title, then the first usable line
// of text, then the file name.
func documentTitle(path, metadataTitle, text string) string {
	if t := cleanTitle(metadataTitle); t != "" {
		return t
	}
	for _, line := range strings.Split(firstPage(text), "\n") {
		if t := cleanTitle(line); len(t) >= 4 {
			return t
		}
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if t := cleanTitle(stem); t != "" {
		return t
	}
	return "Untitled Ebook"
}

func firstPage(text string) string {
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return text[:i]
	}
	return text
}

var (
	fileExtRe      = regexp.MustCompile(`(?i)\.(pdf|docx|doc|txt|ppt|pptx|xlsx)\b`)
	volumePrefixRe = regexp.MustCompile(`(?i)^\s*(ebook|book|vol|part|volume)\s*\d+\s*[:\-]?\s*`)
	spacesRe       = regexp.MustCompile(`\s+`)
)

// cleanTitle turns a file name or metadata value into a display title:
// "Ebook_01_the_quiet_garden.pdf" becomes "The Quiet Garden".
func cleanTitle(s string) string {
	s = fileExtRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "_", " ")
	s = volumePrefixRe.ReplaceAllString(s, "")
	s = strings.Trim(spacesRe.ReplaceAllString(s, " "), " -_\t\r\n")
	return titleCase(s)
}

func titleCase(s string) string {
	out := []rune(strings.ToLower(s))
	startOfWord := true
	for i, r := range out {
		if unicode.IsLetter(r) {
			if startOfWord {
				out[i] = unicode.ToUpper(r)
			}
			startOfWord = false
		} else {
			startOfWord = !unicode.IsDigit(r) && r != '\''
		}
	}
	return string(out)
}
