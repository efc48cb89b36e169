package tracking

import (
	"strings"
	"time"

	"github.com/niat-ops/opsboard/core/csvimport"
)

// Import targets
const (
	ImportCompanyStatus       = "company-status"
	ImportInteractionFeedback = "interaction-feedback"
)

var ImportTargets = []string{ImportCompanyStatus, ImportInteractionFeedback}

// header aliases
var (
	colCompany        = []string{"company", "company name"}
	colRole           = []string{"role"}
	colClosingStatus  = []string{"closing status"}
	colCrmOwner       = []string{"crm owner", "crm"}
	colNiatID         = []string{"niat id", "niatid"}
	colStudentName    = []string{"student name", "student"}
	colTechnical      = []string{"technical score"}
	colCommunication  = []string{"communication score"}
	colStudentStatus  = []string{"status", "student status"}
	colRemarks        = []string{"remarks"}
	colDate           = []string{"date", "interaction date"}
	colMode           = []string{"mode"}
	colParticipants   = []string{"participants"}
	colFeedback       = []string{"feedback"}
	colCriticalPoints = []string{"critical points"}
	colRating         = []string{"rating"}
	colLoggedBy       = []string{"logged by"}
)

// dates are day first
var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006", "2 Jan 2006", time.RFC3339}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var companyStatusGrouping = csvimport.Grouping[CompanyStatus]{
	KeyFields:  [][]string{colCompany, colRole},
	ChildField: colStudentName,
	NewParent: func(row csvimport.Row) CompanyStatus {
		return CompanyStatus{
			CompanyName:   row.Get(colCompany...),
			Role:          row.Get(colRole...),
			ClosingStatus: row.Get(colClosingStatus...),
			CrmOwner:      row.Get(colCrmOwner...),
			Students:      []StudentStatus{},
		}
	},
	MergeParent: func(cs *CompanyStatus, row csvimport.Row) {
		cs.ClosingStatus = csvimport.FirstNonEmpty(cs.ClosingStatus, row.Get(colClosingStatus...))
		cs.CrmOwner = csvimport.FirstNonEmpty(cs.CrmOwner, row.Get(colCrmOwner...))
	},
	AddChild: func(cs *CompanyStatus, row csvimport.Row) {
		cs.Students = append(cs.Students, StudentStatus{
			NiatID:             row.Get(colNiatID...),
			StudentName:        row.Get(colStudentName...),
			TechnicalScore:     row.Float(colTechnical...),
			CommunicationScore: row.Float(colCommunication...),
			Status:             row.Get(colStudentStatus...),
			Remarks:            row.Get(colRemarks...),
		})
	},
}

var interactionFeedbackGrouping = csvimport.Grouping[InteractionFeedback]{
	KeyFields:  [][]string{colCompany, colRole},
	ChildField: colFeedback,
	NewParent: func(row csvimport.Row) InteractionFeedback {
		return InteractionFeedback{
			CompanyName:  row.Get(colCompany...),
			Role:         row.Get(colRole...),
			Interactions: []InteractionLog{},
		}
	},
	AddChild: func(f *InteractionFeedback, row csvimport.Row) {
		f.Interactions = append(f.Interactions, InteractionLog{
			Date:           parseDate(row.Get(colDate...)),
			Mode:           row.Get(colMode...),
			Participants:   row.Get(colParticipants...),
			Feedback:       row.Get(colFeedback...),
			CriticalPoints: row.Get(colCriticalPoints...),
			Rating:         row.Float(colRating...),
			LoggedBy:       row.Get(colLoggedBy...),
		})
	},
}

// GroupCompanyStatuses folds rows into company statuses keyed by company and role, one student per row.
func GroupCompanyStatuses(rows []csvimport.Row) []CompanyStatus {
	return csvimport.Group(rows, companyStatusGrouping)
}

// GroupInteractionFeedback folds rows into interaction feedback keyed by company and role, one log per row.
func GroupInteractionFeedback(rows []csvimport.Row) []InteractionFeedback {
	return csvimport.Group(rows, interactionFeedbackGrouping)
}
