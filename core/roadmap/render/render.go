// Package render turns company roadmaps into self-contained static HTML pages.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/techstack"
	appfs "github.com/niat-ops/opsboard/fs"
)

const pageTemplatePath = "assets/templates/roadmap/page.gohtml"

const defaultIcon = "💻"

// iconRules are matched in order against the lower-cased stack name; the first hit wins.
var iconRules = []struct {
	keywords []string
	icon     string
}{
	{[]string{"python"}, "🐍"},
	{[]string{"javascript", "js"}, "🟨"},
	{[]string{"react"}, "⚛️"},
	{[]string{"node"}, "🟩"},
	{[]string{"java"}, "☕"},
	{[]string{"html"}, "🌐"},
	{[]string{"css"}, "🎨"},
	{[]string{"angular"}, "🅰️"},
	{[]string{"vue"}, "🖖"},
	{[]string{"php"}, "🐘"},
	{[]string{"database", "sql"}, "🗄️"},
	{[]string{"cloud"}, "☁️"},
	{[]string{"docker"}, "🐳"},
	{[]string{"git"}, "🔀"},
	{[]string{"aws"}, "🟧"},
	{[]string{"dynamics"}, "📊"},
	{[]string{"mern"}, "🧩"},
	{[]string{".net"}, "🟪"},
}

var (
	pageTmpl     *template.Template
	pageTmplErr  error
	pageTmplOnce sync.Once
)

type (
	// Role is one tab of the page.
	Role struct {
		Title      string
		TechStacks []techstack.TechStack
	}

	// Page is everything a roadmap page is built from.
	// GeneratedAt is the only time-dependent input; nothing is printed when it is zero.
	Page struct {
		CompanyName string
		Roles       []Role
		GeneratedAt time.Time
	}
)

type (
	pageView struct {
		CompanyName string
		GeneratedAt string
		Roles       []roleView
	}

	roleView struct {
		TabID  string
		Title  string
		Active bool
		Stacks []stackView
	}

	stackView struct {
		Name        string
		Description string
		Icon        string
		Percent     int
		Headers     techstack.Headers
		Items       []itemView
	}

	itemView struct {
		Index       int
		Topic       string
		SubTopics   []string
		Projects    []string
		Status      string
		StatusClass string
	}
)

// Icon picks the icon of a tech stack from its name.
func Icon(name string) string {
	lname := strings.ToLower(name)
	for _, rule := range iconRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lname, kw) {
				return rule.icon
			}
		}
	}
	return defaultIcon
}

// StatusClass is the css class of a completion status badge.
func StatusClass(status string) string {
	switch status {
	case techstack.StatusCompleted:
		return "status-completed"
	case techstack.StatusInProgress:
		return "status-progress"
	default:
		return "status-pending"
	}
}

func loadTemplate() (*template.Template, error) {
	pageTmplOnce.Do(func() {
		pageTmpl, pageTmplErr = template.ParseFS(appfs.FS, pageTemplatePath)
	})
	return pageTmpl, pageTmplErr
}

// Render returns the HTML document of page, or "" when anything goes wrong.
// The same Page always renders to the same bytes.
func Render(page Page) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
		}
	}()

	html, err := render(page)
	if err != nil {
		return ""
	}
	return html
}

func render(page Page) (string, error) {
	tmpl, err := loadTemplate()
	if err != nil {
		return "", errors.Wrap(err, "parsing page template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newPageView(page)); err != nil {
		return "", errors.Wrap(err, "executing page template")
	}
	return buf.String(), nil
}

func newPageView(page Page) pageView {
	view := pageView{
		CompanyName: page.CompanyName,
		Roles:       make([]roleView, 0, len(page.Roles)),
	}
	if !page.GeneratedAt.IsZero() {
		view.GeneratedAt = page.GeneratedAt.UTC().Format("January 2, 2006 15:04 MST")
	}

	for i, role := range page.Roles {
		rv := roleView{
			TabID:  fmt.Sprintf("role-%d", i+1),
			Title:  role.Title,
			Active: i == 0,
			Stacks: make([]stackView, 0, len(role.TechStacks)),
		}
		for _, ts := range role.TechStacks {
			rv.Stacks = append(rv.Stacks, newStackView(ts))
		}
		view.Roles = append(view.Roles, rv)
	}
	return view
}

func newStackView(ts techstack.TechStack) stackView {
	sv := stackView{
		Name:        ts.Name,
		Description: ts.Description,
		Icon:        Icon(ts.Name),
		Percent:     ts.PercentComplete(),
		Headers:     ts.Headers.WithDefaults(),
		Items:       make([]itemView, 0, len(ts.RoadmapItems)),
	}
	for i, it := range ts.RoadmapItems {
		iv := itemView{
			Index:       i + 1,
			Topic:       it.Topic,
			Status:      it.CompletionStatus,
			StatusClass: StatusClass(it.CompletionStatus),
		}
		if iv.Status == "" {
			iv.Status = techstack.StatusYetToStart
		}
		for _, st := range it.SubTopics {
			iv.SubTopics = append(iv.SubTopics, st.Name)
		}
		for _, p := range it.Projects {
			iv.Projects = append(iv.Projects, p.Name)
		}
		sv.Items = append(sv.Items, iv)
	}
	return sv
}
