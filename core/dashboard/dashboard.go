// Package dashboard aggregates the figures shown on the home dashboard.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
)

type (
	StackProgress struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Items           int    `json:"items"`
		Completed       int    `json:"completed"`
		PercentComplete int    `json:"percentComplete"`
	}

	CompanyInteractions struct {
		CompanyName  string `json:"companyName"`
		Interactions int    `json:"interactions"`
	}

	TaskCounts struct {
		Open    int `json:"open"`
		Overdue int `json:"overdue"`
	}

	Summary struct {
		TechStacks          []StackProgress       `json:"techStacks"`
		CompanyStatuses     map[string]int        `json:"companyStatuses"` // closing status -> count
		Interactions        []CompanyInteractions `json:"interactions"`
		PostInternshipTasks TaskCounts            `json:"postInternshipTasks"`
		GeneratedAt         time.Time             `json:"generatedAt"`
	}
)

type Service struct {
	stacks      techstack.Service
	companies   *tracking.CompanyStatusService
	feedback    *tracking.InteractionFeedbackService
	internships *tracking.PostInternshipService
	nowFunc     func() time.Time
}

func NewService(
	stacks techstack.Service,
	companies *tracking.CompanyStatusService,
	feedback *tracking.InteractionFeedbackService,
	internships *tracking.PostInternshipService,
) *Service {
	return &Service{
		stacks:      stacks,
		companies:   companies,
		feedback:    feedback,
		internships: internships,
		nowFunc:     time.Now,
	}
}

func (svc *Service) Summary(ctx context.Context) (Summary, error) {
	now := svc.nowFunc().UTC()
	summary := Summary{
		TechStacks:      make([]StackProgress, 0),
		CompanyStatuses: make(map[string]int, len(tracking.ClosingStatuses)),
		Interactions:    make([]CompanyInteractions, 0),
		GeneratedAt:     now,
	}

	stacks, err := svc.stacks.Query(ctx, nil, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing tech stacks")
	}
	for _, ts := range stacks {
		sp := StackProgress{ID: ts.ID, Name: ts.Name, Items: len(ts.RoadmapItems), PercentComplete: ts.PercentComplete()}
		for _, it := range ts.RoadmapItems {
			if it.IsCompleted() {
				sp.Completed++
			}
		}
		summary.TechStacks = append(summary.TechStacks, sp)
	}
	sort.SliceStable(summary.TechStacks, func(i, j int) bool {
		return summary.TechStacks[i].Name < summary.TechStacks[j].Name
	})

	for _, status := range tracking.ClosingStatuses {
		summary.CompanyStatuses[status] = 0
	}
	companies, err := svc.companies.Query(ctx, nil, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing company statuses")
	}
	for _, cs := range companies {
		summary.CompanyStatuses[cs.ClosingStatus]++
	}

	feedbacks, err := svc.feedback.Query(ctx, nil, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing interaction feedback")
	}
	perCompany := make(map[string]int)
	for _, f := range feedbacks {
		if _, ok := perCompany[f.CompanyName]; !ok {
			summary.Interactions = append(summary.Interactions, CompanyInteractions{CompanyName: f.CompanyName})
		}
		perCompany[f.CompanyName] += len(f.Interactions)
	}
	for i := range summary.Interactions {
		summary.Interactions[i].Interactions = perCompany[summary.Interactions[i].CompanyName]
	}
	sort.SliceStable(summary.Interactions, func(i, j int) bool {
		return summary.Interactions[i].Interactions > summary.Interactions[j].Interactions
	})

	internships, err := svc.internships.Query(ctx, nil, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing post internships")
	}
	for _, p := range internships {
		for _, t := range p.Tasks {
			if t.Status == tracking.TaskCompleted {
				continue
			}
			summary.PostInternshipTasks.Open++
			if t.IsOverdue(now) {
				summary.PostInternshipTasks.Overdue++
			}
		}
	}
	return summary, nil
}
