package browser

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extracted is the readable content of an HTML document.
type Extracted struct {
	Title       string
	Description string
	Text        string
	Emails      []string
	Phones      []string
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)
	spaceRe = regexp.MustCompile(`[ \t\f\v]+`)
)

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Iframe:   true,
}

var blockLevel = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Table: true, atom.Form: true, atom.Td: true, atom.Label: true,
}

// Extract parses an HTML document into title, description, visible text
// and the emails and phone numbers it mentions.
func Extract(doc string) (*Extracted, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}

	out := &Extracted{}
	var text strings.Builder
	emails := map[string]bool{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.Title:
				if out.Title == "" && n.FirstChild != nil {
					out.Title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case atom.Meta:
				name := strings.ToLower(attr(n, "name"))
				prop := strings.ToLower(attr(n, "property"))
				if out.Description == "" && (name == "description" || prop == "og:description") {
					out.Description = strings.TrimSpace(attr(n, "content"))
				}
			case atom.A:
				if href := attr(n, "href"); strings.HasPrefix(strings.ToLower(href), "mailto:") {
					addr := strings.SplitN(href[len("mailto:"):], "?", 2)[0]
					if addr != "" {
						emails[strings.ToLower(addr)] = true
					}
				}
			case atom.Input, atom.Textarea:
				if v := attr(n, "value"); v != "" {
					text.WriteString(" " + v + " ")
				}
			}
			if blockLevel[n.DataAtom] {
				text.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockLevel[n.DataAtom] {
			text.WriteString("\n")
		}
	}
	walk(root)

	out.Text = normalize(text.String())

	for _, m := range emailRe.FindAllString(out.Text, -1) {
		emails[strings.ToLower(m)] = true
	}
	out.Emails = sortedKeys(emails)

	phones := map[string]bool{}
	for _, m := range phoneRe.FindAllString(out.Text, -1) {
		phones[strings.TrimSpace(m)] = true
	}
	out.Phones = sortedKeys(phones)

	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// normalize collapses runs of spaces and blank lines.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(spaceRe.ReplaceAllString(l, " "))
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Truncate cuts s to at most max bytes on a rune boundary.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
