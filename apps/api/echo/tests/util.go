package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/niat-ops/opsboard/apps/api/echo"
	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/dashboard"
	"github.com/niat-ops/opsboard/core/presence"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	memhost "github.com/niat-ops/opsboard/services/contenthost/memory"
	emailsvc "github.com/niat-ops/opsboard/services/email"
	"github.com/niat-ops/opsboard/services/queue"
	inmemdb "github.com/niat-ops/opsboard/storage/database/inmem"
	testutil "github.com/niat-ops/opsboard/tests"
)

var (
	conf       *core.Config
	usrRepo    user.Repository
	stackSvc   techstack.Service
	roadSvc    roadmap.Service
	companySvc *tracking.CompanyStatusService
	feedback   *tracking.InteractionFeedbackService
	ratingSvc  *tracking.StudentRatingService
	host       *memhost.Host
	changes    *queue.Memory[techstack.Change]
	registry   *presence.Registry

	errMissingToken = echoapi.ErrorResponse{Error: "missing or malformed jwt"}
	errForbidden    = echoapi.ErrorResponse{Error: "permission denied"}
	errNotFound     = echoapi.ErrorResponse{Error: "not found"}
)

// setup wires a fresh server over in-memory storage and content host.
func setup(t *testing.T) *echoapi.Server {
	conf = core.NewTestConfig()
	logger := core.NopLogger{}
	validate, translator := testutil.NewTranslatedValidator()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(conf, usrRepo, mailSvc)

	changes = queue.NewMemory[techstack.Change](64)
	stackRepo := inmemdb.NewTechStackRepository(db)
	stackSvc = techstack.NewService(stackRepo, changes, logger)

	host = memhost.New("https://pages.test")
	roadSvc = roadmap.NewService(inmemdb.NewRoadmapRepository(db), stackRepo, host, logger)

	companySvc = tracking.NewService[tracking.CompanyStatus](inmemdb.NewCompanyStatusRepository(db), validate, logger)
	feedback = tracking.NewService[tracking.InteractionFeedback](inmemdb.NewInteractionFeedbackRepository(db), validate, logger)
	internships := tracking.NewService[tracking.PostInternship](inmemdb.NewPostInternshipRepository(db), validate, logger)
	hubs := tracking.NewService[tracking.OverallHubStatus](inmemdb.NewHubStatusRepository(db), validate, logger)
	ratingSvc = tracking.NewService[tracking.StudentRating](inmemdb.NewStudentRatingRepository(db), validate, logger)

	registry = presence.NewRegistry()

	// set up server
	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:              conf,
		Logger:            logger,
		Validate:          validate,
		Translator:        translator,
		UserSvc:           usrSvc,
		TechStackSvc:      stackSvc,
		RoadmapSvc:        roadSvc,
		CompanyStatusSvc:  companySvc,
		FeedbackSvc:       feedback,
		PostInternshipSvc: internships,
		HubStatusSvc:      hubs,
		StudentRatingSvc:  ratingSvc,
		DashboardSvc:      dashboard.NewService(stackSvc, companySvc, feedback, internships),
		Presence:          registry,
	})
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (tt httpTest) run(t *testing.T, srv *echoapi.Server) {
	t.Run(tt.name, func(t *testing.T) {
		method := tt.method
		if method == "" {
			method = http.MethodGet
		}
		req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
		srv.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves one request and returns its recorder.
func do(srv *echoapi.Server, method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	srv.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
