package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/niat-ops/opsboard/apps/api/echo"
	"github.com/niat-ops/opsboard/core/user"
	testutil "github.com/niat-ops/opsboard/tests"
)

const testPassword = "Sup3r!Secret#42"

func Test_userApi_login(t *testing.T) {
	srv := setup(t)

	testutil.CreateUser(t, usrRepo, "Active", "active@test.io", testPassword, user.RoleContent, true)
	testutil.CreateUser(t, usrRepo, "Gone", "gone@test.io", testPassword, user.RoleContent, false)

	login := func(email, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Email: email, Password: pwd})
	}
	failed := marchallObj(t, echoapi.ErrorResponse{Error: "authentication failed"})

	tests := []httpTest{
		{name: "unknown email", body: login("nobody@test.io", testPassword), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "wrong password", body: login("active@test.io", "nope"), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "missing password", body: login("active@test.io", ""), wantCode: http.StatusBadRequest},
		{
			name: "deactivated", body: login("gone@test.io", testPassword), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, echoapi.ErrorResponse{Error: "account deactivated"}),
		},
		{name: "ok", body: login("active@test.io", testPassword), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users/login"
		tt.run(t, srv)
	}

	rec := do(srv, http.MethodPost, "/api/v1/users/login", "", login("ACTIVE@test.io", testPassword))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp echoapi.LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	// the token opens authed endpoints
	usr, err := usrRepo.GetUserByEmail(context.Background(), "active@test.io")
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
	rec = do(srv, http.MethodGet, "/api/v1/users/"+usr.ID, resp.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_userQuery(t *testing.T) {
	srv := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", "", user.RoleAdmin, true)
	king := testutil.CreateUser(t, usrRepo, "King", "king@test.io", "", user.RoleCRM, true)
	crm := testutil.CreateUser(t, usrRepo, "Queen", "queen@test.io", "", user.RoleCRM, false)
	inst := testutil.CreateInstructor(t, usrRepo, "Ian", "ian@test.io", "Python")

	adminToken := getToken(t, admin)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "auth required", path: "/api/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", path: "/api/v1/users", token: getToken(t, king), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "get all", path: "/api/v1/users", token: adminToken, wantData: marchallList(t, admin, king, crm, inst)},
		{name: "search (unknown)", path: "/api/v1/users?search=lol", token: adminToken, wantData: empty},
		{name: "search=KIN", path: "/api/v1/users?search=KIN", token: adminToken, wantData: marchallList(t, king)},
		{name: "role=crm", path: "/api/v1/users?role=crm", token: adminToken, wantData: marchallList(t, king, crm)},
		{name: "isActive=false", path: "/api/v1/users?isActive=false", token: adminToken, wantData: marchallList(t, crm)},
		{name: "techStack=python", path: "/api/v1/users?techStack=python", token: adminToken, wantData: marchallList(t, inst)},
		{name: "ordering=-name", path: "/api/v1/users?ordering=-name", token: adminToken, wantData: marchallList(t, crm, king, inst, admin)},
		{name: "roles", path: "/api/v1/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}
}

func Test_userApi_userCreate(t *testing.T) {
	srv := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", "", user.RoleAdmin, true)
	content := testutil.CreateUser(t, usrRepo, "Content", "content@test.io", "", user.RoleContent, true)
	adminToken := getToken(t, admin)

	newUser := func(email, pwd, role string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New Hire",
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Role:            role,
		})
	}

	tests := []httpTest{
		{name: "admin required", body: newUser("hire@test.io", testPassword, user.RoleCRM), token: getToken(t, content), wantCode: http.StatusForbidden},
		{name: "duplicate email", body: newUser("content@test.io", testPassword, user.RoleCRM), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "weak password", body: newUser("hire@test.io", "password", user.RoleCRM), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "unknown role", body: newUser("hire@test.io", testPassword, "lol"), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "ok", body: newUser("hire@test.io", testPassword, user.RoleCRM), token: adminToken, wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users"
		tt.run(t, srv)
	}

	usr, err := usrRepo.GetUserByEmail(context.Background(), "hire@test.io")
	require.NoError(t, err)
	assert.Equal(t, user.RoleCRM, usr.Role)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(testPassword))
}

func Test_userApi_userRetrieve(t *testing.T) {
	srv := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", "", user.RoleAdmin, true)
	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other@test.io", "", user.RoleCRM, true)
	gone := testutil.CreateUser(t, usrRepo, "Gone", "gone@test.io", "", user.RoleCRM, false)

	tests := []httpTest{
		{name: "auth required", path: "/api/v1/users/" + crm.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "self", path: "/api/v1/users/" + crm.ID, token: getToken(t, crm), wantData: marchallObj(t, crm)},
		{name: "someone else", path: "/api/v1/users/" + other.ID, token: getToken(t, crm), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "admin", path: "/api/v1/users/" + other.ID, token: getToken(t, admin), wantData: marchallObj(t, other)},
		{name: "admin (unknown)", path: "/api/v1/users/lol", token: getToken(t, admin), wantCode: http.StatusNotFound},
		{
			name: "deactivated token", path: "/api/v1/users/" + gone.ID, token: getToken(t, gone), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, echoapi.ErrorResponse{Error: "account deactivated"}),
		},
		{
			name: "bad token", path: "/api/v1/users/" + crm.ID, token: "not.a.jwt", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, echoapi.ErrorResponse{Error: "invalid or expired jwt"}),
		},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}
}

func Test_userApi_userUpdate(t *testing.T) {
	srv := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", "", user.RoleAdmin, true)
	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	crmToken := getToken(t, crm)

	tests := []httpTest{
		{name: "own name", path: "/api/v1/users/" + crm.ID, token: crmToken, body: []byte(`{"name":"Renamed"}`), wantCode: http.StatusOK},
		{name: "own role", path: "/api/v1/users/" + crm.ID, token: crmToken, body: []byte(`{"role":"admin"}`), wantCode: http.StatusForbidden},
		{name: "own access flag", path: "/api/v1/users/" + crm.ID, token: crmToken, body: []byte(`{"canAccessCriticalPoints":true}`), wantCode: http.StatusForbidden},
		{name: "admin sets role", path: "/api/v1/users/" + crm.ID, token: getToken(t, admin), body: []byte(`{"role":"manager"}`), wantCode: http.StatusOK},
		{name: "admin sets unknown role", path: "/api/v1/users/" + crm.ID, token: getToken(t, admin), body: []byte(`{"role":"lol"}`), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.run(t, srv)
	}

	usr, err := usrRepo.GetUserByID(context.Background(), crm.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", usr.Name)
	assert.Equal(t, user.RoleManager, usr.Role)
}

func Test_userApi_userDelete(t *testing.T) {
	srv := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", "", user.RoleAdmin, true)
	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	mgr := testutil.CreateUser(t, usrRepo, "Mgr", "mgr@test.io", "", user.RoleManager, true)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "admin required", method: http.MethodDelete, path: "/api/v1/users/" + crm.ID, token: getToken(t, crm), wantCode: http.StatusForbidden},
		{name: "self", method: http.MethodDelete, path: "/api/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "self in batch", method: http.MethodDelete, path: "/api/v1/users?id=" + crm.ID + "&id=" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "ok", method: http.MethodDelete, path: "/api/v1/users/" + crm.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "gone", path: "/api/v1/users/" + crm.ID, token: adminToken, wantCode: http.StatusNotFound},
		{name: "batch", method: http.MethodDelete, path: "/api/v1/users?id=" + mgr.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "left", path: "/api/v1/users", token: adminToken, wantData: marchallList(t, admin)},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}
}

func Test_userApi_tokenRefresh(t *testing.T) {
	srv := setup(t)

	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)

	rec := do(srv, http.MethodPost, "/api/v1/users/token-refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(srv, http.MethodPost, "/api/v1/users/token-refresh", getToken(t, crm))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	rec = do(srv, http.MethodGet, "/api/v1/users/"+crm.ID, resp.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_passwordReset(t *testing.T) {
	srv := setup(t)

	testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", testPassword, user.RoleCRM, true)

	tests := []httpTest{
		{name: "known email", body: []byte(`{"email":"crm@test.io"}`), wantCode: http.StatusOK},
		{name: "unknown email", body: []byte(`{"email":"who@test.io"}`), wantCode: http.StatusOK},
		{name: "invalid email", body: []byte(`{"email":"who"}`), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users/password-reset"
		tt.run(t, srv)
	}

	rec := do(srv, http.MethodPost, "/api/v1/users/password-reset-confirm", "",
		[]byte(`{"token":"bad","uid":"bad","password":"`+testPassword+`","passwordConfirm":"`+testPassword+`"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
