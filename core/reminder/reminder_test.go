package reminder_test

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/reminder"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	inmemdb "github.com/niat-ops/opsboard/storage/database/inmem"
)

type recordingMail struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (m *recordingMail) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, messages...)
}

func (m *recordingMail) bySubject(subject string) []*core.EmailMessage {
	found := make([]*core.EmailMessage, 0)
	for _, msg := range m.messages {
		if msg.Subject == subject {
			found = append(found, msg)
		}
	}
	return found
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
	return &t
}

func setup(t *testing.T) (*reminder.Job, *recordingMail) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	core.ParseEmailTemplates(conf, core.NopLogger{})

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	mail := &recordingMail{}
	usrSvc := user.NewServiceMock(conf, usrRepo, mail)

	users := []user.User{
		{ID: "i1", Name: "Ivy", Email: "ivy@example.com", Role: user.RoleInstructor, AssignedTechStacks: []string{"python"}, IsActive: true},
		{ID: "i2", Name: "Idle", Email: "idle@example.com", Role: user.RoleInstructor, AssignedTechStacks: []string{"React"}, IsActive: true},
		{ID: "i3", Name: "Gone", Email: "gone@example.com", Role: user.RoleInstructor, AssignedTechStacks: []string{"Python"}, IsActive: false},
		{ID: "a1", Name: "Ada", Email: "ada@example.com", Role: user.RoleAdmin, IsActive: true},
		{ID: "c1", Name: "Cy", Email: "cy@example.com", Role: user.RoleCRM, CanAccessPostInternships: true, IsActive: true},
		{ID: "c2", Name: "Cid", Email: "cid@example.com", Role: user.RoleCRM, IsActive: true},
	}
	for _, usr := range users {
		_, err := usrRepo.CreateUser(ctx, usr)
		require.NoError(t, err)
	}

	tsSvc := techstack.NewService(inmemdb.NewTechStackRepository(db), nil, core.NopLogger{})
	_, err := tsSvc.Create(ctx, "a1", techstack.NewTechStack{
		Name: "Python",
		RoadmapItems: []techstack.NewRoadmapItem{
			{Topic: "Basics", CompletionStatus: techstack.StatusCompleted, ScheduledDate: date(2026, 3, 1)},
			{Topic: "OOP", ScheduledDate: date(2026, 3, 10)},
			{Topic: "Async", ScheduledDate: date(2026, 4, 1)},
			{Topic: "Testing"},
		},
	})
	require.NoError(t, err)
	_, err = tsSvc.Create(ctx, "a1", techstack.NewTechStack{
		Name:         "React",
		RoadmapItems: []techstack.NewRoadmapItem{{Topic: "Hooks", ScheduledDate: date(2026, 5, 1)}},
	})
	require.NoError(t, err)

	piSvc := tracking.NewService[tracking.PostInternship](
		inmemdb.NewPostInternshipRepository(db), core.NewValidator(core.NewTranslator()), core.NopLogger{})
	_, err = piSvc.Create(ctx, tracking.PostInternship{
		CompanyName: "Acme",
		NiatID:      "N1",
		StudentName: "Alice",
		Tasks: []tracking.Task{
			{Title: "Weekly report", DueDate: date(2026, 3, 5)},
			{Title: "Demo", DueDate: date(2026, 3, 5), Status: tracking.TaskCompleted},
			{Title: "Retro", DueDate: date(2026, 4, 5)},
		},
	})
	require.NoError(t, err)

	return reminder.NewJob(usrSvc, tsSvc, piSvc, mail, core.NopLogger{}, 8), mail
}

func TestJob_RunOnce(t *testing.T) {
	job, mail := setup(t)
	day := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	summary, err := job.RunOnce(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{InstructorEmails: 1, TaskEmails: 2}, summary)

	due := mail.bySubject("Roadmap items due")
	require.Len(t, due, 1)
	assert.Equal(t, "ivy@example.com", due[0].To[0].Address)
	require.NoError(t, due[0].Render())
	assert.Contains(t, due[0].TextContent, "OOP (Yet to Start, scheduled Mar 10, 2026)")
	assert.NotContains(t, due[0].TextContent, "Basics")
	assert.NotContains(t, due[0].TextContent, "Async")

	overdue := mail.bySubject("Overdue post-internship tasks")
	require.Len(t, overdue, 2)
	recipients := []string{overdue[0].To[0].Address, overdue[1].To[0].Address}
	assert.ElementsMatch(t, []string{"ada@example.com", "cy@example.com"}, recipients)

	require.Len(t, overdue[0].Attachments, 1)
	at := overdue[0].Attachments[0]
	assert.Equal(t, "overdue-tasks-2026-03-10.csv", at.Filename)
	report, err := base64.StdEncoding.DecodeString(at.Content.String())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(report)), "\n")
	assert.Equal(t, []string{
		"niat id,student name,company,task,due date,status",
		"N1,Alice,Acme,Weekly report,2026-03-05,Pending",
	}, lines)
}

func TestJob_RunOnce_NothingDue(t *testing.T) {
	job, mail := setup(t)

	summary, err := job.RunOnce(context.Background(), time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{}, summary)
	assert.Empty(t, mail.messages)
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before the hour", time.Date(2026, 3, 10, 7, 59, 0, 0, time.UTC), time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		{"at the hour", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)},
		{"after the hour", time.Date(2026, 3, 31, 20, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reminder.NextRun(tt.now, 8))
		})
	}
}
