package ebookbot

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	minChapters      = 2
	minTOCTitleRunes = 4
)

// VerifyTOC checks the rendered table of contents against the chapter tree.
// Every TOC title must match exactly one chapter title, and every chapter
// down to tocDepth must be listed. Titles are compared case-insensitively
// with whitespace collapsed. A document with fewer than two top-level
// chapters, or a TOC entry shorter than four characters, also fails.
func VerifyTOC(toc []TOCEntry, doc StructuredDocument, tocDepth int) error {
	if len(toc) == 0 {
		return fmt.Errorf("%w: table of contents is empty", ErrVerification)
	}
	if n := len(doc.Chapters); n < minChapters {
		return fmt.Errorf("%w: too few chapters detected (%d)", ErrVerification, n)
	}
	if tocDepth <= 0 {
		tocDepth = 2
	}

	counts := map[string]int{}
	doc.Walk(func(n ChapterNode) {
		counts[normalizeTitle(n.Title)]++
	})

	listed := map[string]bool{}
	for _, e := range toc {
		key := normalizeTitle(e.Title)
		if utf8.RuneCountInString(key) < minTOCTitleRunes {
			return fmt.Errorf("%w: TOC entry %q is too short", ErrVerification, e.Title)
		}
		switch counts[key] {
		case 0:
			return fmt.Errorf("%w: TOC entry %q has no matching chapter", ErrVerification, e.Title)
		case 1:
		default:
			return fmt.Errorf("%w: TOC entry %q matches %d chapters", ErrVerification, e.Title, counts[key])
		}
		listed[key] = true
	}

	var missing []string
	doc.Walk(func(n ChapterNode) {
		if n.Level <= tocDepth && !listed[normalizeTitle(n.Title)] {
			missing = append(missing, n.Title)
		}
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: chapters missing from TOC: %s", ErrVerification, strings.Join(missing, "; "))
	}
	return nil
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
