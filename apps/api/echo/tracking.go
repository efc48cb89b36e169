package echoapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/csvimport"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
)

const importFileField = "file"

// ImportResponse reports how many records a bulk import inserted. Skipped rows are not reported.
type ImportResponse struct {
	Success  bool `json:"success"`
	Inserted int  `json:"inserted"`
}

func registerTrackingAPI(g *echo.Group, deps ServerDeps) {
	crmDesk := readWriteMiddleware(
		[]string{user.RoleCRM, user.RoleManager},
		[]string{user.RoleCRM},
	)
	ratingsDesk := readWriteMiddleware(
		[]string{user.RoleCRM, user.RoleInstructor, user.RoleManager},
		[]string{user.RoleCRM, user.RoleInstructor},
	)
	mayViewInternships := permissionMiddleware(user.User.MayViewPostInternships)
	mayViewCriticalPoints := permissionMiddleware(user.User.MayViewCriticalPoints)

	// static routes are registered outside the record groups so their own permissions apply
	g.GET("/interaction-feedback/critical-points", criticalPointsHandler(deps.FeedbackSvc), mayViewCriticalPoints)
	g.GET("/post-internships/overdue-tasks", overdueTasksHandler(deps.PostInternshipSvc), mayViewInternships)

	cg := registerRecordAPI(g, "/company-status", deps.CompanyStatusSvc, crmDesk)
	registerChildAPI(cg, "/students", deps.CompanyStatusSvc, tracking.CompanyStudents)
	cg.POST("/import", importHandler(deps.CompanyStatusSvc, tracking.GroupCompanyStatuses))

	fg := registerRecordAPI(g, "/interaction-feedback", deps.FeedbackSvc, crmDesk)
	registerChildAPI(fg, "/logs", deps.FeedbackSvc, tracking.FeedbackLogs)
	fg.POST("/import", importHandler(deps.FeedbackSvc, tracking.GroupInteractionFeedback))

	pg := registerRecordAPI(g, "/post-internships", deps.PostInternshipSvc, mayViewInternships)
	registerChildAPI(pg, "/tasks", deps.PostInternshipSvc, tracking.InternshipTasks)

	hg := registerRecordAPI(g, "/hub-status", deps.HubStatusSvc, crmDesk)
	registerChildAPI(hg, "/students", deps.HubStatusSvc, tracking.HubStudents)

	sg := registerRecordAPI(g, "/student-ratings", deps.StudentRatingSvc, ratingsDesk)
	registerChildAPI(sg, "/ratings", deps.StudentRatingSvc, tracking.StudentRatingList)
}

type recordApi[T any, PT tracking.RecordPtr[T]] struct {
	svc *tracking.Service[T, PT]
}

// registerRecordAPI exposes the CRUD of one record type under path.
func registerRecordAPI[T any, PT tracking.RecordPtr[T]](g *echo.Group, path string, svc *tracking.Service[T, PT], m ...echo.MiddlewareFunc) *echo.Group {
	api := recordApi[T, PT]{svc: svc}

	rg := g.Group(path, m...)
	rg.GET("", api.query)
	rg.POST("", api.create)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.replace)
	rg.DELETE("/:id", api.destroy)
	return rg
}

func (api *recordApi[T, PT]) query(ctx echo.Context) error {
	filter := new(tracking.Filter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []T{})
	}
	filter.Clean()

	recs, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	if recs == nil {
		recs = []T{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *recordApi[T, PT]) create(ctx echo.Context) error {
	var data T
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding record")
	}
	rec, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating record")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *recordApi[T, PT]) retrieve(ctx echo.Context) error {
	rec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi[T, PT]) replace(ctx echo.Context) error {
	var data T
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding record")
	}
	rec, err := api.svc.Replace(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "replacing record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi[T, PT]) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// registerChildAPI exposes the nested list of a record under /:id{path}. Every call returns the whole record.
func registerChildAPI[T any, PT tracking.RecordPtr[T], C any, PC tracking.ChildPtr[C]](
	rg *echo.Group,
	path string,
	svc *tracking.Service[T, PT],
	list tracking.Children[T, C],
) {
	rg.POST("/:id"+path, func(ctx echo.Context) error {
		var child C
		if err := ctx.Bind(&child); err != nil {
			return errors.Wrap(err, "binding entry")
		}
		rec, err := tracking.AddChild[T, PT, C, PC](ctx.Request().Context(), svc, ctx.Param("id"), list, child)
		if err != nil {
			return errors.Wrap(err, "adding entry")
		}
		return ctx.JSON(http.StatusCreated, rec)
	})
	rg.PUT("/:id"+path+"/:childId", func(ctx echo.Context) error {
		var child C
		if err := ctx.Bind(&child); err != nil {
			return errors.Wrap(err, "binding entry")
		}
		rec, err := tracking.UpdateChild[T, PT, C, PC](ctx.Request().Context(), svc, ctx.Param("id"), ctx.Param("childId"), list, child)
		if err != nil {
			return errors.Wrap(err, "updating entry")
		}
		return ctx.JSON(http.StatusOK, rec)
	})
	rg.DELETE("/:id"+path+"/:childId", func(ctx echo.Context) error {
		rec, err := tracking.DeleteChild[T, PT, C, PC](ctx.Request().Context(), svc, ctx.Param("id"), ctx.Param("childId"), list)
		if err != nil {
			return errors.Wrap(err, "deleting entry")
		}
		return ctx.JSON(http.StatusOK, rec)
	})
}

// importHandler groups the uploaded rows into records and inserts them in one batch.
// Rows arrive as a multipart CSV file or as a JSON array of objects keyed by column header.
func importHandler[T any, PT tracking.RecordPtr[T]](svc *tracking.Service[T, PT], group func([]csvimport.Row) []T) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		rows, err := bindImportRows(ctx)
		if err != nil {
			return err
		}
		n, err := svc.CreateMany(ctx.Request().Context(), group(rows))
		if err != nil {
			return errors.Wrap(err, "importing records")
		}
		return ctx.JSON(http.StatusOK, ImportResponse{Success: true, Inserted: n})
	}
}

func bindImportRows(ctx echo.Context) ([]csvimport.Row, error) {
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := ctx.FormFile(importFileField)
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: importFileField, Error: "a CSV file is required"})
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening uploaded file")
		}
		defer f.Close()

		rows, err := csvimport.ParseCSV(f)
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: importFileField, Error: err.Error()})
		}
		return rows, nil
	}

	var data []map[string]interface{}
	if err := ctx.Bind(&data); err != nil {
		return nil, errors.Wrap(err, "binding import rows")
	}
	maps := make([]map[string]string, 0, len(data))
	for _, obj := range data {
		m := make(map[string]string, len(obj))
		for k, v := range obj {
			switch val := v.(type) {
			case nil:
				m[k] = ""
			case string:
				m[k] = val
			default:
				m[k] = fmt.Sprint(val)
			}
		}
		maps = append(maps, m)
	}
	return csvimport.FromMaps(maps), nil
}

func criticalPointsHandler(svc *tracking.InteractionFeedbackService) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		filter := new(tracking.Filter)
		if err := ctx.Bind(filter); err != nil {
			return ctx.JSON(http.StatusOK, []tracking.CriticalPoint{})
		}
		filter.Clean()

		points, err := tracking.CriticalPoints(ctx.Request().Context(), svc, filter)
		if err != nil {
			return errors.Wrap(err, "listing critical points")
		}
		return ctx.JSON(http.StatusOK, points)
	}
}

func overdueTasksHandler(svc *tracking.PostInternshipService) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		tasks, err := tracking.OverdueTasks(ctx.Request().Context(), svc, time.Now().UTC())
		if err != nil {
			return errors.Wrap(err, "listing overdue tasks")
		}
		return ctx.JSON(http.StatusOK, tasks)
	}
}
