package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cognitivelattice/web-agent/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const ancestorGenerations = 3

var skeletonSelectors = "a,button,input,select,textarea,option,[onclick],[role]"

// Skeleton strips non-essential structure from compressed HTML, keeping
// interactive nodes plus up to ancestorGenerations ancestor levels for
// structural context. Every other node is unwrapped: its text is kept,
// its tag is dropped. Survivors retain only the attribute whitelist.
// Never contains <script>, <style>, <meta>, or comments.
func Skeleton(compressedHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(compressedHTML))
	if err != nil || doc == nil {
		return stripTagsKeepText(compressedHTML)
	}

	keep := map[*html.Node]bool{}
	doc.Find(skeletonSelectors).Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		keep[node] = true
		n := node.Parent
		for gen := 0; gen < ancestorGenerations && n != nil; gen++ {
			if keep[n] {
				break
			}
			keep[n] = true
			n = n.Parent
		}
	})

	var b strings.Builder
	renderSkeleton(doc.Selection.Nodes, keep, &b)
	return b.String()
}

func renderSkeleton(nodes []*html.Node, keep map[*html.Node]bool, b *strings.Builder) {
	for _, n := range nodes {
		renderNode(n, keep, b)
	}
}

func renderNode(n *html.Node, keep map[*html.Node]bool, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		t := normText(n.Data)
		if t != "" {
			b.WriteString(t)
			b.WriteString(" ")
		}
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Meta:
			return
		}
		if keep[n] {
			b.WriteString("<")
			b.WriteString(n.Data)
			for _, a := range n.Attr {
				name := strings.ToLower(a.Key)
				if attrWhitelist[name] || isDataOrAriaAttr(name) {
					b.WriteString(" ")
					b.WriteString(name)
					b.WriteString(`="`)
					b.WriteString(a.Val)
					b.WriteString(`"`)
				}
			}
			b.WriteString(">")
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				renderNode(c, keep, b)
			}
			b.WriteString("</")
			b.WriteString(n.Data)
			b.WriteString(">")
		} else {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				renderNode(c, keep, b)
			}
		}
	case html.CommentNode, html.DoctypeNode:
		return
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderNode(c, keep, b)
		}
	}
}

// stripTagsKeepText is the regex fallback used when goquery can't parse
// the compressed HTML for skeleton construction.
func stripTagsKeepText(compressedHTML string) string {
	return normText(tagStripRe.ReplaceAllString(compressedHTML, " "))
}

// ExtractFromSkeleton gives a second, skeleton-scoped view of clickable
// elements for debug-artifact dumps, distinct from the full Extract()
// pass over raw HTML.
func ExtractFromSkeleton(skeletonHTML string, cfg *Config) []model.Element {
	return Extract(skeletonHTML, cfg)
}
