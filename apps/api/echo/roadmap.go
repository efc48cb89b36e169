package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/user"
)

type roadmapApi struct {
	svc      roadmap.Service
	validate *validator.Validate
}

func registerRoadmapAPI(g *echo.Group, deps ServerDeps) {
	api := roadmapApi{svc: deps.RoadmapSvc, validate: deps.Validate}
	readers := rolesMiddleware(user.RoleContent, user.RoleCRM, user.RoleManager)
	writers := rolesMiddleware(user.RoleContent, user.RoleCRM)
	managers := rolesMiddleware(user.RoleContent)

	rg := g.Group("/roadmaps")
	rg.GET("", api.query, readers)
	rg.POST("", api.create, writers)
	rg.POST("/preview", api.preview, writers)
	rg.POST("/sync", api.syncAll, managers)

	dg := rg.Group("/:id", readers, api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, writers)
	dg.DELETE("", api.destroy, managers)
	dg.POST("/sync", api.sync, managers)
}

// ownsAffiliation reports whether a CRM user is the roadmap's CRM. Other roles see every roadmap.
func ownsAffiliation(usr user.User, affiliation string) bool {
	return !usr.IsCRM() || strings.EqualFold(usr.Name, affiliation)
}

// objectMiddleware loads the :id roadmap into "object". CRM users only reach their own roadmaps.
func (api *roadmapApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		r, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		if !ownsAffiliation(usr, r.CrmAffiliation) {
			return errHttpNotFound
		}
		ctx.Set("object", r)
		return next(ctx)
	}
}

func getContextRoadmap(ctx echo.Context) (roadmap.Roadmap, error) {
	r, ok := ctx.Get("object").(roadmap.Roadmap)
	if !ok {
		return roadmap.Roadmap{}, errors.New("roadmap not found in echo.Context")
	}
	return r, nil
}

func (api *roadmapApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(roadmap.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []roadmap.Roadmap{})
	}
	filter.Clean()
	if usr.IsCRM() {
		filter.CrmAffiliation = usr.Name
	}

	roadmaps, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying roadmaps")
	}
	if roadmaps == nil {
		roadmaps = []roadmap.Roadmap{}
	}
	return ctx.JSON(http.StatusOK, roadmaps)
}

func (api *roadmapApi) bindNewRoadmap(ctx echo.Context) (roadmap.NewRoadmap, error) {
	var data roadmap.NewRoadmap
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to NewRoadmap")
	}
	if err := data.Validate(api.validate); err != nil {
		return data, err
	}
	// a CRM publishes under their own affiliation
	if usr, err := getContextUser(ctx); err == nil && usr.IsCRM() {
		data.CrmAffiliation = usr.Name
	}
	return data, nil
}

func (api *roadmapApi) preview(ctx echo.Context) error {
	data, err := api.bindNewRoadmap(ctx)
	if err != nil {
		return err
	}
	preview, err := api.svc.Preview(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "previewing roadmap")
	}
	return ctx.JSON(http.StatusOK, preview)
}

func (api *roadmapApi) create(ctx echo.Context) error {
	data, err := api.bindNewRoadmap(ctx)
	if err != nil {
		return err
	}
	usr, _ := getContextUser(ctx)
	r, err := api.svc.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating roadmap")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *roadmapApi) retrieve(ctx echo.Context) error {
	r, err := getContextRoadmap(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *roadmapApi) update(ctx echo.Context) error {
	r, err := getContextRoadmap(ctx)
	if err != nil {
		return err
	}
	var data roadmap.UpdateRoadmap
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRoadmap")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if usr, _ := getContextUser(ctx); usr.IsCRM() {
		data.CrmAffiliation = nil
	}

	r, err = api.svc.Update(ctx.Request().Context(), r.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating roadmap")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *roadmapApi) destroy(ctx echo.Context) error {
	r, err := getContextRoadmap(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), r.ID); err != nil {
		return errors.Wrap(err, "deleting roadmap")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *roadmapApi) sync(ctx echo.Context) error {
	r, err := getContextRoadmap(ctx)
	if err != nil {
		return err
	}
	res := api.svc.Sync(ctx.Request().Context(), r)
	if !res.OK() {
		return ctx.JSON(http.StatusBadGateway, ErrorResponse{Error: res.Error})
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *roadmapApi) syncAll(ctx echo.Context) error {
	rep, err := api.svc.RepublishAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "syncing roadmaps")
	}
	return ctx.JSON(http.StatusOK, rep)
}
