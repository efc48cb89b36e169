// Package reminder sends the daily reminder emails: roadmap items due to instructors and
// overdue post-internship tasks to the users who follow them.
package reminder

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
)

const dayLayout = "Jan 2, 2006"

type (
	dueItem struct {
		Topic         string
		Status        string
		ScheduledDate string
	}

	dueStack struct {
		Name  string
		Items []dueItem
	}

	instructorData struct {
		Name   string
		Day    string
		Stacks []dueStack
	}

	taskRow struct {
		StudentName string
		CompanyName string
		Title       string
		DueDate     string
		Status      string
	}

	tasksData struct {
		Name  string
		Day   string
		Tasks []taskRow
	}

	// Summary counts the emails of one run.
	Summary struct {
		InstructorEmails int
		TaskEmails       int
	}
)

type Job struct {
	users       user.Service
	stacks      techstack.Service
	internships *tracking.PostInternshipService
	mail        core.EmailService
	logger      core.Logger
	hour        int
	nowFunc     func() time.Time
}

func NewJob(
	users user.Service,
	stacks techstack.Service,
	internships *tracking.PostInternshipService,
	mail core.EmailService,
	logger core.Logger,
	hour int,
) *Job {
	return &Job{
		users:       users,
		stacks:      stacks,
		internships: internships,
		mail:        mail,
		logger:      logger,
		hour:        hour,
		nowFunc:     time.Now,
	}
}

// NextRun is the first time at hour:00 strictly after now.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run sends the reminders every day at the configured hour until ctx is done.
func (j *Job) Run(ctx context.Context) {
	for {
		now := j.nowFunc()
		next := NextRun(now, j.hour)
		j.logger.Info("next reminder run", map[string]interface{}{"at": next.Format(time.RFC3339)})

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		summary, err := j.RunOnce(ctx, j.nowFunc())
		if err != nil {
			j.logger.Error(fmt.Sprintf("sending reminders: %v", err), err)
			continue
		}
		j.logger.Info("reminders sent", map[string]interface{}{
			"instructorEmails": summary.InstructorEmails,
			"taskEmails":       summary.TaskEmails,
		})
	}
}

// RunOnce sends the reminders of day.
func (j *Job) RunOnce(ctx context.Context, day time.Time) (Summary, error) {
	active := true
	users, err := j.users.Query(ctx, &user.QueryFilter{IsActive: &active}, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing users")
	}

	var summary Summary
	messages := make([]*core.EmailMessage, 0)

	for _, usr := range users {
		if !usr.IsInstructor() || len(usr.AssignedTechStacks) == 0 {
			continue
		}
		msg, err := j.instructorMessage(ctx, usr, day)
		if err != nil {
			return summary, err
		}
		if msg != nil {
			messages = append(messages, msg)
			summary.InstructorEmails++
		}
	}

	var overdue []tracking.OverdueTask
	for _, usr := range users {
		if !usr.MayViewPostInternships() {
			continue
		}
		if overdue == nil {
			if overdue, err = tracking.OverdueTasks(ctx, j.internships, day); err != nil {
				return summary, errors.Wrap(err, "listing overdue tasks")
			}
		}
		if len(overdue) == 0 {
			break
		}
		msg, err := tasksMessage(usr, overdue, day)
		if err != nil {
			return summary, err
		}
		messages = append(messages, msg)
		summary.TaskEmails++
	}

	if len(messages) > 0 {
		j.mail.SendMessages(messages...)
	}
	return summary, nil
}

func (j *Job) instructorMessage(ctx context.Context, usr user.User, day time.Time) (*core.EmailMessage, error) {
	stacks, err := j.stacks.GetByNames(ctx, usr.AssignedTechStacks...)
	if err != nil {
		return nil, errors.Wrapf(err, "listing tech stacks of %s", usr.Email)
	}

	data := instructorData{Name: usr.Name, Day: day.Format(dayLayout)}
	for _, ts := range stacks {
		ds := dueStack{Name: ts.Name}
		for _, it := range ts.RoadmapItems {
			if !it.DueBy(day) {
				continue
			}
			ds.Items = append(ds.Items, dueItem{
				Topic:         it.Topic,
				Status:        it.CompletionStatus,
				ScheduledDate: it.ScheduledDate.Format(dayLayout),
			})
		}
		if len(ds.Items) > 0 {
			data.Stacks = append(data.Stacks, ds)
		}
	}
	if len(data.Stacks) == 0 {
		return nil, nil
	}

	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Roadmap items due",
		TemplateName: "reminder_instructor",
		TemplateData: data,
	}, nil
}

func tasksMessage(usr user.User, overdue []tracking.OverdueTask, day time.Time) (*core.EmailMessage, error) {
	data := tasksData{Name: usr.Name, Day: day.Format(dayLayout), Tasks: make([]taskRow, 0, len(overdue))}
	for _, t := range overdue {
		data.Tasks = append(data.Tasks, taskRow{
			StudentName: t.StudentName,
			CompanyName: t.CompanyName,
			Title:       t.Task.Title,
			DueDate:     t.DueDate.Format(dayLayout),
			Status:      t.Task.Status,
		})
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Overdue post-internship tasks",
		TemplateName: "reminder_tasks",
		TemplateData: data,
	}
	report, err := TasksCSV(overdue)
	if err != nil {
		return nil, err
	}
	if err := msg.Attach(bytes.NewReader(report), "overdue-tasks-"+day.Format("2006-01-02")+".csv", "text/csv"); err != nil {
		return nil, errors.Wrap(err, "attaching overdue tasks")
	}
	return msg, nil
}

// TasksCSV writes overdue tasks as a CSV report.
func TasksCSV(tasks []tracking.OverdueTask) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"niat id", "student name", "company", "task", "due date", "status"})
	for _, t := range tasks {
		_ = w.Write([]string{t.NiatID, t.StudentName, t.CompanyName, t.Task.Title, t.DueDate.Format("2006-01-02"), t.Task.Status})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "writing overdue tasks csv")
	}
	return buf.Bytes(), nil
}
