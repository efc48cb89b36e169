package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/dashboard"
	"github.com/niat-ops/opsboard/core/user"
)

func registerDashboardAPI(g *echo.Group, deps ServerDeps) {
	g.GET("/dashboard/summary", dashboardSummaryHandler(deps.DashboardSvc), rolesMiddleware(user.RoleManager, user.RoleContent))
}

func dashboardSummaryHandler(svc *dashboard.Service) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		summary, err := svc.Summary(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "building dashboard summary")
		}
		return ctx.JSON(http.StatusOK, summary)
	}
}
