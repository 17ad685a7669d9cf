package bookcompiler

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

func findParent(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return p
		}
	}
	return nil
}

// findAll returns every descendant element of n named tag, in document order.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
		out = append(out, findAll(c, tag)...)
	}
	return out
}

func countPreviousSiblings(n *html.Node) int {
	count := 0
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			count++
		}
	}
	return count
}

func getTextContent(n *html.Node) string {
	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return text.String()
}

// collapseSpaces replaces every run of whitespace with one space, keeping a
// single leading or trailing space if there was one.
func collapseSpaces(s string) string {
	if s == "" {
		return s
	}
	inner := strings.Join(strings.Fields(s), " ")
	if inner == "" {
		return " "
	}
	if isSpace(s[0]) {
		inner = " " + inner
	}
	if isSpace(s[len(s)-1]) {
		inner += " "
	}
	return inner
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// parseHexColor reads "#RRGGBB" or "RRGGBB", returning def when s is not a color.
func parseHexColor(s string, def [3]int) [3]int {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return def
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return def
	}
	return [3]int{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}
}
