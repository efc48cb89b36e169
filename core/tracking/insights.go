package tracking

import (
	"context"
	"sort"
	"time"
)

// CriticalPoint is an interaction log flagged with critical points.
type CriticalPoint struct {
	FeedbackID     string     `json:"feedbackId"`
	LogID          string     `json:"logId"`
	CompanyName    string     `json:"companyName"`
	Role           string     `json:"role"`
	Date           *time.Time `json:"date,omitempty"`
	CriticalPoints string     `json:"criticalPoints"`
	Rating         float64    `json:"rating"`
	LoggedBy       string     `json:"loggedBy,omitempty"`
}

// CriticalPoints lists every interaction log with critical points, most recent first.
func CriticalPoints(ctx context.Context, svc *InteractionFeedbackService, filter *Filter) ([]CriticalPoint, error) {
	feedbacks, err := svc.Query(ctx, filter, nil)
	if err != nil {
		return nil, err
	}
	points := make([]CriticalPoint, 0)
	for _, f := range feedbacks {
		for _, l := range f.Interactions {
			if l.CriticalPoints == "" {
				continue
			}
			points = append(points, CriticalPoint{
				FeedbackID:     f.ID,
				LogID:          l.ID,
				CompanyName:    f.CompanyName,
				Role:           f.Role,
				Date:           l.Date,
				CriticalPoints: l.CriticalPoints,
				Rating:         l.Rating,
				LoggedBy:       l.LoggedBy,
			})
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i].Date, points[j].Date
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	return points, nil
}

// OverdueTask is a post-internship task past its due date.
type OverdueTask struct {
	PostInternshipID string    `json:"postInternshipId"`
	CompanyName      string    `json:"companyName"`
	NiatID           string    `json:"niatId"`
	StudentName      string    `json:"studentName"`
	Task             Task      `json:"task"`
	DueDate          time.Time `json:"dueDate"`
}

// OverdueTasks lists the tasks not completed and due before day, oldest first.
func OverdueTasks(ctx context.Context, svc *PostInternshipService, day time.Time) ([]OverdueTask, error) {
	records, err := svc.Query(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	tasks := make([]OverdueTask, 0)
	for _, p := range records {
		for _, t := range p.Tasks {
			if !t.IsOverdue(day) {
				continue
			}
			tasks = append(tasks, OverdueTask{
				PostInternshipID: p.ID,
				CompanyName:      p.CompanyName,
				NiatID:           p.NiatID,
				StudentName:      p.StudentName,
				Task:             t,
				DueDate:          *t.DueDate,
			})
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate.Before(tasks[j].DueDate) })
	return tasks, nil
}
