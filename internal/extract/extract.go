// Package extract turns HTML and Markdown into the plain visible text glean stores.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hpungsan/glean/internal/models"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
}

var spaceRunRegex = regexp.MustCompile(`\s+`)

// blockAtoms start and end on their own line, like innerText does.
var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Figcaption: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true,
	atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true, atom.Tr: true,
	atom.Ul: true,
}

// Page is the visible content of an HTML document.
type Page struct {
	Title string
	Text  string
}

// VisibleText extracts the title and the human-visible text of an HTML document.
// Scripts, styles, templates and elements hidden by attribute or inline style are skipped.
func VisibleText(src string) (Page, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return Page{}, err
	}

	var buf textBuffer
	root := findBody(doc)
	if root == nil {
		root = doc
	}
	walk(root, &buf, false)

	return Page{
		Title: findTitle(doc),
		Text:  buf.String(),
	}, nil
}

// MarkdownText renders Markdown and returns its visible text.
func MarkdownText(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	page, err := VisibleText(buf.String())
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// textRun is a stretch of output that is either flowing or preformatted text.
type textRun struct {
	pre  bool
	text strings.Builder
}

// textBuffer collects walked text, keeping preformatted runs apart so their
// indentation survives cleanup.
type textBuffer struct {
	runs []*textRun
}

func (b *textBuffer) write(s string, pre bool) {
	if n := len(b.runs); n == 0 || b.runs[n-1].pre != pre {
		b.runs = append(b.runs, &textRun{pre: pre})
	}
	b.runs[len(b.runs)-1].text.WriteString(s)
}

func (b *textBuffer) String() string {
	var sb strings.Builder
	for _, r := range b.runs {
		if r.pre {
			sb.WriteString(models.TrimLineEnds(r.text.String()))
		} else {
			sb.WriteString(models.CollapseLines(r.text.String()))
		}
	}
	return models.SqueezeBlankLines(sb.String())
}

func walk(n *html.Node, b *textBuffer, inPre bool) {
	switch n.Type {
	case html.TextNode:
		if inPre {
			b.write(n.Data, true)
		} else {
			b.write(spaceRunRegex.ReplaceAllString(n.Data, " "), false)
		}
		return
	case html.ElementNode:
		if skipped(n) {
			return
		}
		if n.DataAtom == atom.Br {
			b.write("\n", inPre)
			return
		}
		if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
			b.write(" ", inPre)
		}
	}

	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	if block {
		b.write("\n", inPre)
	}
	pre := inPre || n.DataAtom == atom.Pre
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b, pre)
	}
	if block {
		b.write("\n", inPre)
	}
}

// skipped reports whether an element and its subtree are invisible.
func skipped(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head, atom.Svg, atom.Iframe:
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(a.Val, "true") {
				return true
			}
		case "style":
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(spaceRunRegex.ReplaceAllString(n.FirstChild.Data, " "))
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
