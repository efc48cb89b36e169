package render

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

type (
	// Outline is the structure read back from a rendered page.
	Outline struct {
		CompanyName string
		Roles       []OutlineRole
	}

	OutlineRole struct {
		Title  string
		Stacks []OutlineStack
	}

	OutlineStack struct {
		Name    string
		Percent int
		Topics  []OutlineTopic
	}

	OutlineTopic struct {
		Topic  string
		Status string
	}
)

// Inspect parses a rendered page back into its outline: tabs, stacks, topics and statuses.
func Inspect(r io.Reader) (Outline, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Outline{}, errors.Wrap(err, "parsing html")
	}

	var outline Outline
	if n := findFirst(doc, hasClass("company-name")); n != nil {
		outline.CompanyName = textContent(n)
	}

	titles := make(map[string]string) // tab id -> title
	for _, btn := range findAll(doc, hasClass("tab-button")) {
		titles[attr(btn, "data-tab")] = textContent(btn)
	}

	for _, section := range findAll(doc, hasClass("tab-content")) {
		role := OutlineRole{Title: titles[attr(section, "id")]}
		for _, article := range findAll(section, hasClass("stack")) {
			stack := OutlineStack{}
			if n := findFirst(article, hasClass("stack-name")); n != nil {
				stack.Name = textContent(n)
			}
			if n := findFirst(article, hasClass("progress-label")); n != nil {
				stack.Percent, _ = strconv.Atoi(attr(n, "data-percent"))
			}
			for _, row := range findAll(article, hasClass("roadmap-item")) {
				topic := OutlineTopic{}
				if n := findFirst(row, hasClass("topic")); n != nil {
					topic.Topic = textContent(n)
				}
				if n := findFirst(row, hasClass("status-badge")); n != nil {
					topic.Status = textContent(n)
				}
				stack.Topics = append(stack.Topics, topic)
			}
			role.Stacks = append(role.Stacks, stack)
		}
		outline.Roles = append(outline.Roles, role)
	}
	return outline, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				found = append(found, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return found
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if found := findAll(root, match); len(found) > 0 {
		return found[0]
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
