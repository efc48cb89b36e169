package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/csvimport"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	memhost "github.com/niat-ops/opsboard/services/contenthost/memory"
	"github.com/niat-ops/opsboard/services/queue"
	inmemdb "github.com/niat-ops/opsboard/storage/database/inmem"
	testutil "github.com/niat-ops/opsboard/tests"
)

var (
	usrRepo  user.Repository
	stackSvc techstack.Service
	roadSvc  roadmap.Service
	host     *memhost.Host
	out      *bytes.Buffer
)

func setup(t *testing.T) *commandLine {
	logger := core.NopLogger{}
	validate := testutil.NewValidator()

	// set up DB & services
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	stackRepo := inmemdb.NewTechStackRepository(db)
	stackSvc = techstack.NewService(stackRepo, queue.NewMemory[techstack.Change](16), logger)
	host = memhost.New("https://pages.test")
	roadSvc = roadmap.NewService(inmemdb.NewRoadmapRepository(db), stackRepo, host, logger)
	out = new(bytes.Buffer)

	// start CLI
	return &commandLine{
		out:       out,
		usrRepo:   usrRepo,
		roadmaps:  roadSvc,
		companies: tracking.NewService[tracking.CompanyStatus](inmemdb.NewCompanyStatusRepository(db), validate, logger),
		feedback:  tracking.NewService[tracking.InteractionFeedback](inmemdb.NewInteractionFeedbackRepository(db), validate, logger),
		host:      host,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) run(t *testing.T, cli *commandLine) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(tt.pwd), nil
	}
	t.Run(tt.name, func(t *testing.T) {
		err := cli.run(append([]string{"admin"}, tt.args...))
		switch {
		case tt.wantErr != nil:
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		case tt.wantErrStr != "":
			if assert.Error(t, err) {
				assert.Equal(t, tt.wantErrStr, err.Error())
			}
		default:
			assert.NoError(t, err)
		}
	})
}

func Test_commandLine_usage(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var opened int
	cli.openDB = func() (*sql.DB, error) {
		opened++
		return nil, errors.New("no database in tests")
	}

	tests := []cliTest{
		{name: "database unavailable", args: []string{"migrate", "up"}, wantErrStr: "no database in tests"},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}
	assert.Equal(t, 1, opened)

	cli.openDB = nil
	gooseRunFunc = func(ctx context.Context, db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests = []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s), only received 0"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "add_users_team", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	existing := testutil.CreateUser(t, usrRepo, "Ian", "ian@test.io", "old-pass", user.RoleInstructor, false)

	tests := []cliTest{
		{name: "no email", args: []string{"adduser"}, pwd: "pwd", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--email", "new@test.io"}, wantErr: errHelp},
		{name: "bad role", args: []string{"adduser", "--email", "new@test.io", "--role", "boss"}, pwd: "pwd", wantErrStr: `invalid role "boss" (one of admin, content, instructor, crm, manager)`},
		{name: "create", args: []string{"adduser", "--email", " New@Test.io "}, pwd: "s3cret"},
		{name: "update existing", args: []string{"adduser", "--email", "IAN@test.io", "--name", "Ian M", "--role", "manager"}, pwd: "n3w-pass"},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}

	ctx := context.Background()
	created, err := usrRepo.GetUserByEmail(ctx, "new@test.io")
	require.NoError(t, err)
	assert.Equal(t, "new", created.Name)
	assert.Equal(t, user.RoleAdmin, created.Role)
	assert.True(t, created.IsActive)
	assert.NoError(t, created.CheckPassword("s3cret"))

	updated, err := usrRepo.GetUserByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ian M", updated.Name)
	assert.Equal(t, user.RoleManager, updated.Role)
	assert.True(t, updated.IsActive)
	assert.NoError(t, updated.CheckPassword("n3w-pass"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe@test.io", "mdr", user.RoleCRM, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "--email", "lol@test.io"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@test.io"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", "AWE@test.io"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}

	refreshed, err := usrRepo.GetUserByID(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.NotEqual(t, usr.PasswordHash, refreshed.PasswordHash)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_resyncAndFetch(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	testutil.CreateTechStack(t, stackSvc, "Python", "Basics")
	acme, err := roadSvc.Create(ctx, "", roadmap.NewRoadmap{
		CompanyName: "Acme",
		Role:        "SDE",
		TechStacks:  []roadmap.TechStackRef{{Name: "Python"}},
	})
	require.NoError(t, err)
	require.Equal(t, "acme-sde-roadmap.html", acme.Filename)
	host.Reset()

	tests := []cliTest{
		{name: "neither flag", args: []string{"resync"}, wantErr: errHelp},
		{name: "both flags", args: []string{"resync", "--all", "--id", acme.ID}, wantErr: errHelp},
		{name: "unknown id", args: []string{"resync", "--id", "lol"}, wantErr: roadmap.ErrNotFound},
		{name: "one", args: []string{"resync", "--id", acme.ID}},
		{name: "all", args: []string{"resync", "--all"}},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}
	assert.Equal(t, []string{"acme-sde-roadmap.html", "acme-sde-roadmap.html"}, host.PublishedFilenames())
	assert.Contains(t, out.String(), "ok     Acme SDE (acme-sde-roadmap.html) https://pages.test/acme-sde-roadmap.html")
	assert.Contains(t, out.String(), "1 synced, 0 failed")

	host.SetFailure(errors.New("host down"))
	cliTest{name: "host failure", args: []string{"resync", "--all"}, wantErrStr: "1 roadmap(s) failed to sync"}.run(t, cli)
	host.SetFailure(nil)

	out.Reset()
	cliTest{name: "fetch", args: []string{"fetch", "acme-sde-roadmap.html"}}.run(t, cli)
	assert.Contains(t, out.String(), "Basics")

	dest := filepath.Join(t.TempDir(), "page.html")
	cliTest{name: "fetch to file", args: []string{"fetch", "acme-sde-roadmap.html", "-o", dest}}.run(t, cli)
	page, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Basics")

	tests = []cliTest{
		{name: "fetch: no filename", args: []string{"fetch"}, wantErrStr: "accepts 1 arg(s), received 0"},
		{name: "fetch: unknown file", args: []string{"fetch", "lol.html"}, wantErr: memhost.ErrNotFound},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}
}

func Test_commandLine_import(t *testing.T) {
	cli := setup(t)

	dir := t.TempDir()
	companies := filepath.Join(dir, "companies.csv")
	require.NoError(t, os.WriteFile(companies, []byte("\ufeffCompany,Role,Closing Status,Student Name\n"+
		"Acme,SDE,Open,Asha\n"+
		"Acme,SDE,Open,Ravi\n"+
		"Globex,QA,Closed,Meera\n"+
		",SDE,Open,Nobody\n"), 0o644))
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	tests := []cliTest{
		{name: "missing args", args: []string{"import", "company-status"}, wantErrStr: "accepts 2 arg(s), received 1"},
		{name: "unknown target", args: []string{"import", "students", companies}, wantErrStr: `unknown import target "students"`},
		{name: "empty file", args: []string{"import", "company-status", empty}, wantErr: csvimport.ErrNoHeader},
		{name: "company status", args: []string{"import", "company-status", companies}},
	}
	for _, tt := range tests {
		tt.run(t, cli)
	}

	err := cli.run([]string{"admin", "import", "company-status", filepath.Join(dir, "lol.csv")})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, out.String(), "4 rows read, 2 records inserted")

	recs, err := cli.companies.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Acme", recs[0].CompanyName)
	assert.Len(t, recs[0].Students, 2)
	assert.Equal(t, tracking.ClosingClosed, recs[1].ClosingStatus)
}
