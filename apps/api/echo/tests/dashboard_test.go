package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niat-ops/opsboard/core/dashboard"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	testutil "github.com/niat-ops/opsboard/tests"
)

func Test_dashboardApi_summary(t *testing.T) {
	srv := setup(t)
	ctx := context.Background()

	python := testutil.CreateTechStack(t, stackSvc, "Python", "Basics", "OOP")
	_, err := stackSvc.UpdateItem(ctx, "", python.ID, python.RoadmapItems[0].ID, techstack.UpdateRoadmapItem{
		CompletionStatus: func(s string) *string { return &s }(techstack.StatusCompleted),
	})
	require.NoError(t, err)
	_, err = companySvc.Create(ctx, tracking.CompanyStatus{CompanyName: "Acme", Role: "SDE", ClosingStatus: tracking.ClosingClosed})
	require.NoError(t, err)
	_, err = feedback.Create(ctx, tracking.InteractionFeedback{
		CompanyName:  "Acme",
		Role:         "SDE",
		Interactions: []tracking.InteractionLog{{Feedback: "Went well"}, {Feedback: "Needs DSA"}},
	})
	require.NoError(t, err)

	mgr := testutil.CreateUser(t, usrRepo, "Mgr", "mgr@test.io", "", user.RoleManager, true)
	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", "", user.RoleAdmin, true)

	tests := []httpTest{
		{name: "auth required", path: "/api/v1/dashboard/summary", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "crm may not", path: "/api/v1/dashboard/summary", token: getToken(t, crm), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "admin", path: "/api/v1/dashboard/summary", token: getToken(t, admin)},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}

	rec := do(srv, http.MethodGet, "/api/v1/dashboard/summary", getToken(t, mgr))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary dashboard.Summary
	unmarshal(t, rec, &summary)

	assert.Equal(t, []dashboard.StackProgress{
		{ID: python.ID, Name: "Python", Items: 2, Completed: 1, PercentComplete: 50},
	}, summary.TechStacks)
	assert.Equal(t, map[string]int{
		tracking.ClosingOpen:   0,
		tracking.ClosingOnHold: 0,
		tracking.ClosingClosed: 1,
	}, summary.CompanyStatuses)
	assert.Equal(t, []dashboard.CompanyInteractions{{CompanyName: "Acme", Interactions: 2}}, summary.Interactions)
	assert.Equal(t, dashboard.TaskCounts{}, summary.PostInternshipTasks)
	assert.False(t, summary.GeneratedAt.IsZero())
}
