package tests

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/niat-ops/opsboard/apps/api/echo"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	testutil "github.com/niat-ops/opsboard/tests"
)

func Test_trackingApi_companyStatus(t *testing.T) {
	srv := setup(t)

	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	mgr := testutil.CreateUser(t, usrRepo, "Mgr", "mgr@test.io", "", user.RoleManager, true)
	content := testutil.CreateUser(t, usrRepo, "Content", "content@test.io", "", user.RoleContent, true)
	crmToken := getToken(t, crm)

	body := []byte(`{"companyName":" Acme ","role":"SDE","students":[{"studentName":"Ada","technicalScore":8}]}`)
	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/v1/company-status", body: body, wantCode: http.StatusUnauthorized},
		{name: "manager may not write", method: http.MethodPost, path: "/api/v1/company-status", body: body, token: getToken(t, mgr), wantCode: http.StatusForbidden},
		{name: "content may not read", path: "/api/v1/company-status", token: getToken(t, content), wantCode: http.StatusForbidden},
		{name: "manager reads", path: "/api/v1/company-status", token: getToken(t, mgr), wantData: marchallList(t)},
		{
			name: "bad closing status", method: http.MethodPost, path: "/api/v1/company-status", token: crmToken,
			body: []byte(`{"companyName":"Acme","role":"SDE","closingStatus":"Done"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "student without name", method: http.MethodPost, path: "/api/v1/company-status", token: crmToken,
			body: []byte(`{"companyName":"Acme","role":"SDE","students":[{"studentName":""}]}`), wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}

	rec := do(srv, http.MethodPost, "/api/v1/company-status", crmToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cs tracking.CompanyStatus
	unmarshal(t, rec, &cs)
	assert.NotEmpty(t, cs.ID)
	assert.Equal(t, "Acme", cs.CompanyName)
	assert.Equal(t, tracking.ClosingOpen, cs.ClosingStatus)
	require.Len(t, cs.Students, 1)
	assert.NotEmpty(t, cs.Students[0].ID)
	assert.Equal(t, tracking.StudentPending, cs.Students[0].Status)

	path := "/api/v1/company-status/" + cs.ID

	// nested students
	rec = do(srv, http.MethodPost, path+"/students", crmToken, []byte(`{"studentName":"Linus","status":"Shortlisted"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	unmarshal(t, rec, &cs)
	require.Len(t, cs.Students, 2)
	linus := cs.Students[1]
	assert.Equal(t, tracking.StudentShortlisted, linus.Status)

	rec = do(srv, http.MethodPut, path+"/students/"+linus.ID, crmToken, []byte(`{"studentName":"Linus","status":"Selected"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &cs)
	assert.Equal(t, linus.ID, cs.Students[1].ID)
	assert.Equal(t, tracking.StudentSelected, cs.Students[1].Status)

	rec = do(srv, http.MethodPut, path+"/students/lol", crmToken, []byte(`{"studentName":"Nobody"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(srv, http.MethodDelete, path+"/students/"+cs.Students[0].ID, crmToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &cs)
	require.Len(t, cs.Students, 1)
	assert.Equal(t, linus.ID, cs.Students[0].ID)

	// replace keeps the id
	rec = do(srv, http.MethodPut, path, crmToken, []byte(`{"companyName":"Acme","role":"SDE","closingStatus":"Closed","students":[]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var replaced tracking.CompanyStatus
	unmarshal(t, rec, &replaced)
	assert.Equal(t, cs.ID, replaced.ID)
	assert.Equal(t, tracking.ClosingClosed, replaced.ClosingStatus)
	assert.Empty(t, replaced.Students)

	tests = []httpTest{
		{name: "filter by status", path: "/api/v1/company-status?status=Closed", token: crmToken, wantData: marchallList(t, replaced)},
		{name: "filter by status (none)", path: "/api/v1/company-status?status=Open", token: crmToken, wantData: marchallList(t)},
		{name: "retrieve", path: path, token: getToken(t, mgr), wantData: marchallObj(t, replaced)},
		{name: "delete", method: http.MethodDelete, path: path, token: crmToken, wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: crmToken, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}
}

func Test_trackingApi_importJSON(t *testing.T) {
	srv := setup(t)

	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	crmToken := getToken(t, crm)

	rows := []byte(`[
		{"Company Name":"Acme","Role":"SDE","Student Name":"Ada","Technical Score":"8.5","Status":"Selected"},
		{"Company Name":"acme","Role":"sde","Closing Status":"On Hold","Student Name":"Linus","Technical Score":7},
		{"Company Name":"","Role":"SDE","Student Name":"Skipped"},
		{"Company Name":"Globex","Role":"Analyst","Student Name":"Grace","Status":"Hired"},
		{"Company Name":"Initech","Role":"QA"}
	]`)
	rec := do(srv, http.MethodPost, "/api/v1/company-status/import", crmToken, rows)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.ImportResponse
	unmarshal(t, rec, &resp)
	// Globex is invalid (unknown student status) and left out
	assert.Equal(t, echoapi.ImportResponse{Success: true, Inserted: 2}, resp)

	recs, err := companySvc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Acme", recs[0].CompanyName)
	assert.Equal(t, tracking.ClosingOnHold, recs[0].ClosingStatus)
	require.Len(t, recs[0].Students, 2)
	assert.Equal(t, 8.5, recs[0].Students[0].TechnicalScore)
	assert.Equal(t, float64(7), recs[0].Students[1].TechnicalScore)
	assert.Equal(t, "Initech", recs[1].CompanyName)
	assert.Empty(t, recs[1].Students)

	rec = do(srv, http.MethodPost, "/api/v1/company-status/import", getToken(t, testutil.CreateUser(t, usrRepo, "Mgr", "mgr@test.io", "", user.RoleManager, true)), rows)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_trackingApi_importCSV(t *testing.T) {
	srv := setup(t)

	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	crmToken := getToken(t, crm)

	upload := func(field, content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		fw, err := w.CreateFormFile(field, "feedback.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/interaction-feedback/import", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+crmToken)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	csv := "\ufeffCompany,Role,Date,Mode,Feedback,Critical Points,Rating\n" +
		"Acme,SDE,05/03/2024,Call,Went well,,8\n" +
		"Acme,SDE,2024-03-12,Onsite,Needs DSA,Weak on graphs,6\n" +
		",SDE,2024-03-12,Onsite,Orphan row,,5\n" +
		"Globex,Analyst,2024-04-01,Call,Good,Slow SQL,7\n"

	rec := upload("file", csv)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.ImportResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, 2, resp.Inserted)

	recs, err := feedback.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Len(t, recs[0].Interactions, 2)
	require.NotNil(t, recs[0].Interactions[0].Date)
	assert.Equal(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC), *recs[0].Interactions[0].Date)
	assert.Equal(t, "Weak on graphs", recs[0].Interactions[1].CriticalPoints)
	assert.Equal(t, float64(6), recs[0].Interactions[1].Rating)

	rec = upload("document", csv)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("file", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_trackingApi_criticalPoints(t *testing.T) {
	srv := setup(t)

	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", "", user.RoleAdmin, true)
	mgr := testutil.CreateUser(t, usrRepo, "Mgr", "mgr@test.io", "", user.RoleManager, true)
	mgr.CanAccessCriticalPoints = true
	mgr, err := usrRepo.UpdateUser(context.Background(), mgr)
	require.NoError(t, err)

	older := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	f, err := feedback.Create(context.Background(), tracking.InteractionFeedback{
		CompanyName: "Acme",
		Role:        "SDE",
		Interactions: []tracking.InteractionLog{
			{Date: &older, Feedback: "Needs DSA", CriticalPoints: "Weak on graphs", Rating: 6},
			{Date: &newer, Feedback: "Went well", Rating: 8},
			{Date: &newer, Feedback: "Panel feedback", CriticalPoints: "Slow SQL", Rating: 7},
		},
	})
	require.NoError(t, err)

	want := marchallList(t,
		tracking.CriticalPoint{FeedbackID: f.ID, LogID: f.Interactions[2].ID, CompanyName: "Acme", Role: "SDE", Date: &newer, CriticalPoints: "Slow SQL", Rating: 7},
		tracking.CriticalPoint{FeedbackID: f.ID, LogID: f.Interactions[0].ID, CompanyName: "Acme", Role: "SDE", Date: &older, CriticalPoints: "Weak on graphs", Rating: 6},
	)

	tests := []httpTest{
		{name: "crm without access", path: "/api/v1/interaction-feedback/critical-points", token: getToken(t, crm), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "granted manager", path: "/api/v1/interaction-feedback/critical-points", token: getToken(t, mgr), wantData: want},
		{name: "admin", path: "/api/v1/interaction-feedback/critical-points", token: getToken(t, admin), wantData: want},
		{name: "filtered out", path: "/api/v1/interaction-feedback/critical-points?companyName=Globex", token: getToken(t, admin), wantData: marchallList(t)},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}
}

func Test_trackingApi_postInternships(t *testing.T) {
	srv := setup(t)

	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	granted := testutil.CreateUser(t, usrRepo, "Granted", "granted@test.io", "", user.RoleCRM, true)
	granted.CanAccessPostInternships = true
	granted, err := usrRepo.UpdateUser(context.Background(), granted)
	require.NoError(t, err)
	token := getToken(t, granted)

	rec := do(srv, http.MethodGet, "/api/v1/post-internships", getToken(t, crm))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(srv, http.MethodGet, "/api/v1/post-internships/overdue-tasks", getToken(t, crm))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(srv, http.MethodPost, "/api/v1/post-internships", token,
		[]byte(`{"companyName":"Acme","niatId":"N1","studentName":"Ada","tasks":[{"title":"Report","dueDate":"2020-01-01T00:00:00Z"}]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p tracking.PostInternship
	unmarshal(t, rec, &p)
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, tracking.TaskPending, p.Tasks[0].Status)

	rec = do(srv, http.MethodPost, "/api/v1/post-internships/"+p.ID+"/tasks", token, []byte(`{"title":"Demo"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(srv, http.MethodGet, "/api/v1/post-internships/overdue-tasks", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var overdue []tracking.OverdueTask
	unmarshal(t, rec, &overdue)
	require.Len(t, overdue, 1)
	assert.Equal(t, p.ID, overdue[0].PostInternshipID)
	assert.Equal(t, "Report", overdue[0].Task.Title)

	rec = do(srv, http.MethodPut, "/api/v1/post-internships/"+p.ID+"/tasks/"+p.Tasks[0].ID, token,
		[]byte(`{"title":"Report","dueDate":"2020-01-01T00:00:00Z","status":"Completed"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(srv, http.MethodGet, "/api/v1/post-internships/overdue-tasks", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func Test_trackingApi_ratingsAndHubs(t *testing.T) {
	srv := setup(t)

	inst := testutil.CreateInstructor(t, usrRepo, "Ian", "ian@test.io")
	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	content := testutil.CreateUser(t, usrRepo, "Content", "content@test.io", "", user.RoleContent, true)

	rec := do(srv, http.MethodPost, "/api/v1/student-ratings", getToken(t, inst),
		[]byte(`{"kind":"technical","niatId":"N1","studentName":"Ada","ratings":[{"criterion":"DSA","score":7}]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sr tracking.StudentRating
	unmarshal(t, rec, &sr)

	tests := []httpTest{
		{name: "score out of range", method: http.MethodPost, path: "/api/v1/student-ratings/" + sr.ID + "/ratings", token: getToken(t, inst), body: []byte(`{"criterion":"SQL","score":11}`), wantCode: http.StatusBadRequest},
		{name: "add rating", method: http.MethodPost, path: "/api/v1/student-ratings/" + sr.ID + "/ratings", token: getToken(t, crm), body: []byte(`{"criterion":"SQL","score":9}`), wantCode: http.StatusCreated},
		{name: "content may not read ratings", path: "/api/v1/student-ratings", token: getToken(t, content), wantCode: http.StatusForbidden},
		{name: "instructor may not read hubs", path: "/api/v1/hub-status", token: getToken(t, inst), wantCode: http.StatusForbidden},
		{name: "unknown kind", method: http.MethodPost, path: "/api/v1/student-ratings", token: getToken(t, inst), body: []byte(`{"kind":"vibes","niatId":"N2","studentName":"Bob"}`), wantCode: http.StatusBadRequest},
		{
			name: "hub status", method: http.MethodPost, path: "/api/v1/hub-status", token: getToken(t, crm),
			body: []byte(`{"hubName":"Hyderabad","companyName":"Acme","role":"SDE","students":[{"studentName":"Ada","status":"Placed"}]}`), wantCode: http.StatusCreated,
		},
		{name: "hub filter", path: "/api/v1/hub-status?hubName=hyderabad&status=Placed", token: getToken(t, crm)},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}

	sr, err := ratingSvc.Get(context.Background(), sr.ID)
	require.NoError(t, err)
	require.Len(t, sr.Ratings, 2)
	assert.Equal(t, "SQL", sr.Ratings[1].Criterion)
}
