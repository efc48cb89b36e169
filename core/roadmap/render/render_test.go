package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niat-ops/opsboard/core/techstack"
)

func pythonStack() techstack.TechStack {
	return techstack.TechStack{
		ID:   "ts-python",
		Name: "Python",
		RoadmapItems: []techstack.RoadmapItem{
			{ID: "1", Topic: "Basics", CompletionStatus: techstack.StatusCompleted, SubTopics: []techstack.Named{{Name: "Syntax"}}},
			{ID: "2", Topic: "OOP", CompletionStatus: techstack.StatusYetToStart, Projects: []techstack.Named{{Name: "Bank app"}}},
		},
	}
}

func TestRender_BackendDevScenario(t *testing.T) {
	page := Page{
		CompanyName: "Acme",
		Roles:       []Role{{Title: "Backend Dev", TechStacks: []techstack.TechStack{pythonStack()}}},
	}

	out := Render(page)
	require.NotEmpty(t, out)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, `style="width: 50%"`)
	assert.Contains(t, out, "50% Complete")
	assert.NotContains(t, out, "Last updated")
	assert.NotContains(t, out, "onclick")

	outline, err := Inspect(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, Outline{
		CompanyName: "Acme",
		Roles: []OutlineRole{{
			Title: "Backend Dev",
			Stacks: []OutlineStack{{
				Name:    "Python",
				Percent: 50,
				Topics: []OutlineTopic{
					{Topic: "Basics", Status: techstack.StatusCompleted},
					{Topic: "OOP", Status: techstack.StatusYetToStart},
				},
			}},
		}},
	}, outline)
	assert.Contains(t, out, `<span class="status-badge status-completed">Completed</span>`)
	assert.Contains(t, out, `<span class="status-badge status-pending">Yet to Start</span>`)
}

func TestRender_Deterministic(t *testing.T) {
	page := Page{
		CompanyName: "Globex",
		Roles: []Role{
			{Title: "Frontend", TechStacks: []techstack.TechStack{{Name: "React"}, pythonStack()}},
			{Title: "Data", TechStacks: []techstack.TechStack{pythonStack()}},
		},
		GeneratedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	first := Render(page)
	second := Render(page)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "Last updated March 1, 2026 09:30 UTC")

	outline, err := Inspect(strings.NewReader(first))
	require.NoError(t, err)
	require.Len(t, outline.Roles, 2)
	assert.Equal(t, "Frontend", outline.Roles[0].Title)
	assert.Equal(t, "Data", outline.Roles[1].Title)
	assert.Equal(t, 0, outline.Roles[0].Stacks[0].Percent)
	assert.Empty(t, outline.Roles[0].Stacks[0].Topics)
}

func TestRender_EscapesContent(t *testing.T) {
	page := Page{
		CompanyName: `<script>alert("x")</script>`,
		Roles: []Role{{Title: "Dev & Ops", TechStacks: []techstack.TechStack{{
			Name:         "Go",
			RoadmapItems: []techstack.RoadmapItem{{Topic: "<b>bold</b>", CompletionStatus: techstack.StatusInProgress}},
		}}}},
	}
	out := Render(page)
	require.NotEmpty(t, out)
	assert.NotContains(t, out, `<script>alert("x")</script>`)
	assert.Contains(t, out, "&lt;b&gt;bold&lt;/b&gt;")
	assert.Contains(t, out, "status-progress")

	outline, err := Inspect(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, `<script>alert("x")</script>`, outline.CompanyName)
	assert.Equal(t, "Dev & Ops", outline.Roles[0].Title)
}

func TestRender_CustomHeaders(t *testing.T) {
	ts := pythonStack()
	ts.Headers = techstack.Headers{Topic: "Module", Status: "Progress"}
	out := Render(Page{CompanyName: "Acme", Roles: []Role{{Title: "Dev", TechStacks: []techstack.TechStack{ts}}}})
	assert.Contains(t, out, "<th>Module</th><th>Sub Topics</th><th>Projects</th><th>Progress</th>")
}

func TestIcon(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "Python Basics", want: "🐍"},
		{name: "JavaScript", want: "🟨"},
		{name: "Node JS", want: "🟨"},
		{name: "React Native", want: "⚛️"},
		{name: "Node", want: "🟩"},
		{name: "Core JAVA", want: "☕"},
		{name: "SQL & Databases", want: "🗄️"},
		{name: "Google Cloud", want: "☁️"},
		{name: "Docker", want: "🐳"},
		{name: "Git & GitHub", want: "🔀"},
		{name: "AWS", want: "🟧"},
		{name: "MS Dynamics 365", want: "📊"},
		{name: "MERN", want: "🧩"},
		{name: "ASP.NET", want: "🟪"},
		{name: "Go", want: defaultIcon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Icon(tt.name))
		})
	}
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "status-completed", StatusClass(techstack.StatusCompleted))
	assert.Equal(t, "status-progress", StatusClass(techstack.StatusInProgress))
	assert.Equal(t, "status-pending", StatusClass(techstack.StatusYetToStart))
	assert.Equal(t, "status-pending", StatusClass("whatever"))
}
