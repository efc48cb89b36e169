package roadmap_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/roadmap/render"
	"github.com/niat-ops/opsboard/core/techstack"
	memhost "github.com/niat-ops/opsboard/services/contenthost/memory"
	inmemdb "github.com/niat-ops/opsboard/storage/database/inmem"
)

const publicBaseURL = "https://niat.github.io/roadmaps"

type fixture struct {
	ctx         context.Context
	techStacks  techstack.Service
	tsRepo      techstack.Repository
	roadmapRepo roadmap.Repository
	host        *memhost.Host
	svc         roadmap.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := inmemdb.Open()
	f := &fixture{
		ctx:         context.Background(),
		tsRepo:      inmemdb.NewTechStackRepository(db),
		roadmapRepo: inmemdb.NewRoadmapRepository(db),
		host:        memhost.New(publicBaseURL),
	}
	f.techStacks = techstack.NewService(f.tsRepo, nil, core.NopLogger{})
	f.svc = roadmap.NewService(f.roadmapRepo, f.tsRepo, f.host, core.NopLogger{})
	return f
}

func (f *fixture) createStack(t *testing.T, name string, statuses ...string) techstack.TechStack {
	t.Helper()
	items := make([]techstack.NewRoadmapItem, 0, len(statuses))
	for i, status := range statuses {
		items = append(items, techstack.NewRoadmapItem{Topic: name + " topic " + string(rune('A'+i)), CompletionStatus: status})
	}
	ts, err := f.techStacks.Create(f.ctx, "actor", techstack.NewTechStack{Name: name, RoadmapItems: items})
	require.NoError(t, err)
	return ts
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name    string
		company string
		content roadmap.Content
		want    string
	}{
		{"single", "Acme Corp", roadmap.Single{Role: "Backend Dev"}, "acme-corp-backend-dev-roadmap.html"},
		{"consolidated", "Acme Corp", roadmap.Consolidated{RoleList: []roadmap.RoleContent{{Title: "A"}, {Title: "B"}}}, "acme-corp-consolidated-roadmap.html"},
		{"punctuation", "  Tata & Sons (India) ", roadmap.Single{Role: "SDE-1 / Intern"}, "tata-sons-india-sde-1-intern-roadmap.html"},
		{"no usable company chars", "***", roadmap.Single{Role: "Dev"}, "company-dev-roadmap.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roadmap.Filename(tt.company, tt.content))
		})
	}
}

func TestNewContent(t *testing.T) {
	refs := []roadmap.TechStackRef{{Name: "Python"}}

	content := roadmap.NewContent("Dev", refs, nil)
	assert.Equal(t, roadmap.Single{Role: "Dev", TechStacks: refs}, content)

	content = roadmap.NewContent("", nil, []roadmap.RoleContent{{Title: "Ops", TechStacks: refs}})
	assert.Equal(t, roadmap.Single{Role: "Ops", TechStacks: refs}, content)

	roles := []roadmap.RoleContent{{Title: "Ops", TechStacks: refs}, {Title: "Dev", TechStacks: refs}}
	content = roadmap.NewContent("ignored", nil, roles)
	assert.Equal(t, roadmap.KindConsolidated, content.Kind())
	assert.Equal(t, roadmap.ConsolidatedRole, content.RoleTitle())
	assert.Len(t, roadmap.UniqueRefs(content), 1)
}

func TestAggregate(t *testing.T) {
	f := newFixture(t)
	python := f.createStack(t, "Python", techstack.StatusCompleted, techstack.StatusYetToStart)
	react := f.createStack(t, "React")
	sql := f.createStack(t, "SQL")

	agg := roadmap.NewAggregator(f.tsRepo)
	content := roadmap.Consolidated{RoleList: []roadmap.RoleContent{
		{Title: "Backend", TechStacks: []roadmap.TechStackRef{
			{ID: python.ID, Name: "Old Python Name"},
			{Name: "sql"},
			{Name: "Rust"},
		}},
		{Title: "Frontend", TechStacks: []roadmap.TechStackRef{
			{Name: react.ID},
			{ID: python.ID},
			{Name: "rust"},
		}},
	}}

	res, err := agg.Aggregate(f.ctx, content)
	require.NoError(t, err)

	require.Len(t, res.Roles, 2)
	assert.Equal(t, "Backend", res.Roles[0].Title)
	require.Len(t, res.Roles[0].TechStacks, 2)
	assert.Equal(t, python.ID, res.Roles[0].TechStacks[0].ID)
	assert.Equal(t, sql.ID, res.Roles[0].TechStacks[1].ID)
	require.Len(t, res.Roles[1].TechStacks, 2)
	assert.Equal(t, react.ID, res.Roles[1].TechStacks[0].ID)
	assert.Equal(t, python.ID, res.Roles[1].TechStacks[1].ID)

	assert.Equal(t, []string{"Rust"}, res.Missing)
	assert.Equal(t, 3, res.Resolved())

	refreshed := res.Content.Roles()
	assert.Equal(t, roadmap.TechStackRef{ID: python.ID, Name: "Python"}, refreshed[0].TechStacks[0])
	assert.Equal(t, roadmap.TechStackRef{ID: sql.ID, Name: "SQL"}, refreshed[0].TechStacks[1])
	assert.Equal(t, roadmap.TechStackRef{Name: "Rust"}, refreshed[0].TechStacks[2])
	assert.Equal(t, roadmap.TechStackRef{ID: react.ID, Name: "React"}, refreshed[1].TechStacks[0])
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	python := f.createStack(t, "Python", techstack.StatusCompleted, techstack.StatusYetToStart)

	data := roadmap.NewRoadmap{
		CompanyName: "Acme",
		Role:        "Backend Dev",
		TechStacks:  []roadmap.TechStackRef{{Name: "python"}, {Name: "Go"}},
	}
	r, err := f.svc.Create(f.ctx, "user-1", data)
	require.NoError(t, err)

	assert.Equal(t, "acme-backend-dev-roadmap.html", r.Filename)
	assert.Equal(t, publicBaseURL+"/acme-backend-dev-roadmap.html", r.PublishedURL)
	assert.Equal(t, "user-1", r.CreatedBy)
	assert.NotNil(t, r.LastSyncedAt)
	assert.Equal(t, roadmap.Single{
		Role:       "Backend Dev",
		TechStacks: []roadmap.TechStackRef{{ID: python.ID, Name: "Python"}, {Name: "Go"}},
	}, r.Content)

	pubs := f.host.Publications()
	require.Len(t, pubs, 1)
	assert.Equal(t, "Update Acme Backend Dev roadmap", pubs[0].Description)

	html, err := f.host.Fetch(f.ctx, r.Filename)
	require.NoError(t, err)
	outline, err := render.Inspect(strings.NewReader(string(html)))
	require.NoError(t, err)
	assert.Equal(t, "Acme", outline.CompanyName)
	require.Len(t, outline.Roles, 1)
	assert.Equal(t, "Backend Dev", outline.Roles[0].Title)
	require.Len(t, outline.Roles[0].Stacks, 1)
	assert.Equal(t, 50, outline.Roles[0].Stacks[0].Percent)

	saved, err := f.svc.Get(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Filename, saved.Filename)

	t.Run("duplicate company and role", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, "user-1", data)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, roadmap.ErrFilenameExists, verr.Err)
		assert.Len(t, f.host.Publications(), 1)
	})

	t.Run("no resolvable tech stack", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, "user-1", roadmap.NewRoadmap{
			CompanyName: "Globex",
			Role:        "Dev",
			TechStacks:  []roadmap.TechStackRef{{Name: "Cobol"}},
		})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, roadmap.ErrNoTechStacks, verr.Err)
	})

	t.Run("publish failure saves nothing", func(t *testing.T) {
		f.host.SetFailure(core.NewExternalError("github", "Bad credentials", nil))
		defer f.host.SetFailure(nil)

		_, err := f.svc.Create(f.ctx, "user-1", roadmap.NewRoadmap{
			CompanyName: "Initech",
			Role:        "Dev",
			TechStacks:  []roadmap.TechStackRef{{ID: python.ID}},
		})
		require.Error(t, err)
		assert.True(t, core.IsExternal(err))

		roadmaps, err := f.svc.Query(f.ctx, &roadmap.QueryFilter{CompanyName: "Initech"}, nil)
		require.NoError(t, err)
		assert.Empty(t, roadmaps)
	})
}

func TestService_Preview(t *testing.T) {
	f := newFixture(t)
	f.createStack(t, "Python", techstack.StatusCompleted)

	preview, err := f.svc.Preview(f.ctx, roadmap.NewRoadmap{
		CompanyName: "Acme",
		Roles: []roadmap.RoleContent{
			{Title: "Backend", TechStacks: []roadmap.TechStackRef{{Name: "Python"}}},
			{Title: "Data", TechStacks: []roadmap.TechStackRef{{Name: "Python"}, {Name: "Spark"}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-consolidated-roadmap.html", preview.Filename)
	assert.Equal(t, []string{"Spark"}, preview.Missing)
	assert.Contains(t, preview.HTML, "<!DOCTYPE html>")
	assert.Empty(t, f.host.Publications())
}

func TestService_Update(t *testing.T) {
	f := newFixture(t)
	python := f.createStack(t, "Python")
	react := f.createStack(t, "React")

	r, err := f.svc.Create(f.ctx, "user-1", roadmap.NewRoadmap{
		CompanyName: "Acme",
		Role:        "Dev",
		TechStacks:  []roadmap.TechStackRef{{ID: python.ID}},
	})
	require.NoError(t, err)

	aff := "crm-1"
	updated, err := f.svc.Update(f.ctx, r.ID, roadmap.UpdateRoadmap{
		CompanyName:    "Acme Labs",
		Role:           "Fullstack",
		TechStacks:     []roadmap.TechStackRef{{ID: python.ID}, {ID: react.ID}},
		CrmAffiliation: &aff,
	})
	require.NoError(t, err)

	assert.Equal(t, r.Filename, updated.Filename)
	assert.Equal(t, "Acme Labs", updated.CompanyName)
	assert.Equal(t, "Fullstack", updated.Role())
	assert.Equal(t, "crm-1", updated.CrmAffiliation)
	assert.Equal(t, []string{r.Filename, r.Filename}, f.host.PublishedFilenames())

	_, err = f.svc.Update(f.ctx, "nope", roadmap.UpdateRoadmap{CompanyName: "X"})
	assert.True(t, core.IsNotFound(err))
}

func TestService_Republish(t *testing.T) {
	f := newFixture(t)
	python := f.createStack(t, "Python")

	r, err := f.svc.Create(f.ctx, "user-1", roadmap.NewRoadmap{
		CompanyName: "Acme",
		Role:        "Dev",
		TechStacks:  []roadmap.TechStackRef{{ID: python.ID}},
	})
	require.NoError(t, err)

	f.host.SetFailure(core.NewExternalError("github", "rate limited", nil))
	res, err := f.svc.Republish(f.ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Contains(t, res.Error, "rate limited")

	saved, err := f.svc.Get(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Contains(t, saved.LastSyncError, "rate limited")

	f.host.SetFailure(nil)
	rep, err := f.svc.RepublishAll(f.ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Synced, 1)
	assert.Empty(t, rep.Failed)

	saved, err = f.svc.Get(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.LastSyncError)

	_, err = f.svc.Republish(f.ctx, "nope")
	assert.True(t, core.IsNotFound(err))
}

func TestService_SyncKeepsConcurrentEdits(t *testing.T) {
	tests := []struct {
		name        string
		editFirst   bool
		wantCompany string
		wantNames   []string
	}{
		{"refs refreshed when unchanged", false, "Acme", []string{"Python 3"}},
		{"stale copy does not overwrite an edit", true, "Acme Corp", []string{"Python", "Go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			python := f.createStack(t, "Python")
			golang := f.createStack(t, "Go")

			r, err := f.svc.Create(f.ctx, "user-1", roadmap.NewRoadmap{
				CompanyName: "Acme",
				Role:        "Dev",
				TechStacks:  []roadmap.TechStackRef{{ID: python.ID}},
			})
			require.NoError(t, err)

			stale, err := f.svc.Get(f.ctx, r.ID)
			require.NoError(t, err)

			if tt.editFirst {
				_, err = f.svc.Update(f.ctx, r.ID, roadmap.UpdateRoadmap{
					CompanyName: "Acme Corp",
					Role:        "Dev",
					TechStacks:  []roadmap.TechStackRef{{ID: python.ID}, {ID: golang.ID}},
				})
				require.NoError(t, err)
			}
			_, err = f.techStacks.Update(f.ctx, "actor", python.ID, techstack.UpdateTechStack{Name: "Python 3"})
			require.NoError(t, err)

			res := f.svc.Sync(f.ctx, stale)
			require.True(t, res.OK(), res.Error)

			saved, err := f.svc.Get(f.ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCompany, saved.CompanyName)
			assert.Equal(t, "Dev", saved.Role())
			names := make([]string, 0)
			for _, ref := range saved.Content.(roadmap.Single).TechStacks {
				names = append(names, ref.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, r.Filename, saved.Filename)
		})
	}
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	python := f.createStack(t, "Python")

	r, err := f.svc.Create(f.ctx, "user-1", roadmap.NewRoadmap{
		CompanyName: "Acme",
		Role:        "Dev",
		TechStacks:  []roadmap.TechStackRef{{ID: python.ID}},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(f.ctx, r.ID))
	_, err = f.svc.Get(f.ctx, r.ID)
	assert.True(t, core.IsNotFound(err))

	// the published page stays online
	_, err = f.host.Fetch(f.ctx, r.Filename)
	assert.NoError(t, err)

	assert.True(t, core.IsNotFound(f.svc.Delete(f.ctx, r.ID)))
}

func TestRoadmapJSON(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		r := roadmap.Roadmap{
			ID:          "r1",
			CompanyName: "Acme",
			Content:     roadmap.Single{Role: "Dev", TechStacks: []roadmap.TechStackRef{{ID: "t1", Name: "Python"}}},
		}
		data, err := json.Marshal(r)
		require.NoError(t, err)

		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, "single", m["kind"])
		assert.Equal(t, "Dev", m["role"])
		assert.Equal(t, false, m["isConsolidated"])
		assert.NotContains(t, m, "roles")
		assert.Len(t, m["techStacks"], 1)
	})

	t.Run("consolidated", func(t *testing.T) {
		r := roadmap.Roadmap{
			ID:          "r2",
			CompanyName: "Acme",
			Content: roadmap.Consolidated{RoleList: []roadmap.RoleContent{
				{Title: "Dev", TechStacks: []roadmap.TechStackRef{{Name: "Python"}}},
				{Title: "Ops", TechStacks: []roadmap.TechStackRef{{Name: "Docker"}}},
			}},
		}
		data, err := json.Marshal(r)
		require.NoError(t, err)

		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, "consolidated", m["kind"])
		assert.Equal(t, "Consolidated", m["role"])
		assert.Equal(t, true, m["isConsolidated"])
		assert.NotContains(t, m, "techStacks")
		assert.Len(t, m["roles"], 2)

		var back roadmap.Roadmap
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, r.Content, back.Content)
	})

	t.Run("legacy string refs", func(t *testing.T) {
		var nr roadmap.NewRoadmap
		require.NoError(t, json.Unmarshal([]byte(`{"companyName":"Acme","role":"Dev","techStacks":["Python",{"id":"t2","name":"Go"}]}`), &nr))
		assert.Equal(t, []roadmap.TechStackRef{{Name: "Python"}, {ID: "t2", Name: "Go"}}, nr.TechStacks)
	})
}

func TestNewRoadmapValidation(t *testing.T) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	roadmap.InitValidators(validate, translator)

	refs := []roadmap.TechStackRef{{Name: "Python"}}
	tests := []struct {
		name    string
		data    roadmap.NewRoadmap
		wantErr bool
	}{
		{"single", roadmap.NewRoadmap{CompanyName: "Acme", Role: "Dev", TechStacks: refs}, false},
		{"consolidated", roadmap.NewRoadmap{CompanyName: "Acme", Roles: []roadmap.RoleContent{{Title: "Dev", TechStacks: refs}, {Title: "Ops", TechStacks: refs}}}, false},
		{"blank company", roadmap.NewRoadmap{CompanyName: "  ", Role: "Dev", TechStacks: refs}, true},
		{"no role", roadmap.NewRoadmap{CompanyName: "Acme", TechStacks: refs}, true},
		{"no tech stacks", roadmap.NewRoadmap{CompanyName: "Acme", Role: "Dev"}, true},
		{"blank refs only", roadmap.NewRoadmap{CompanyName: "Acme", Role: "Dev", TechStacks: []roadmap.TechStackRef{{Name: " "}}}, true},
		{"role without stacks", roadmap.NewRoadmap{CompanyName: "Acme", Roles: []roadmap.RoleContent{{Title: "Dev", TechStacks: refs}, {Title: "Ops"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
