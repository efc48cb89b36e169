package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/user"
)

type techStackApi struct {
	svc      techstack.Service
	validate *validator.Validate
}

func registerTechStackAPI(g *echo.Group, deps ServerDeps) {
	api := techStackApi{svc: deps.TechStackSvc, validate: deps.Validate}
	editors := rolesMiddleware(user.RoleContent)

	tg := g.Group("/techstacks")
	tg.GET("", api.query)
	tg.POST("", api.create, editors)

	dg := tg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, editors)
	dg.DELETE("", api.destroy, editors)
	dg.POST("/items", api.addItem, editors)
	dg.PUT("/items/:itemId", api.updateItem, rolesMiddleware(user.RoleContent, user.RoleInstructor))
	dg.DELETE("/items/:itemId", api.deleteItem, editors)
}

// objectMiddleware loads the :id tech stack into "object". Instructors only see their assigned stacks.
func (api *techStackApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		ts, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		if !usr.IsAssignedTo(ts.Name) {
			return errHttpNotFound
		}
		ctx.Set("object", ts)
		return next(ctx)
	}
}

func getContextTechStack(ctx echo.Context) (techstack.TechStack, error) {
	ts, ok := ctx.Get("object").(techstack.TechStack)
	if !ok {
		return techstack.TechStack{}, errors.New("tech stack not found in echo.Context")
	}
	return ts, nil
}

func (api *techStackApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(techstack.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []techstack.TechStack{})
	}
	filter.Clean()
	if usr.IsInstructor() {
		filter.RestrictToNames = true
		filter.Names = usr.AssignedTechStacks
	}

	stacks, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying tech stacks")
	}
	if stacks == nil {
		stacks = []techstack.TechStack{}
	}
	return ctx.JSON(http.StatusOK, stacks)
}

func (api *techStackApi) create(ctx echo.Context) error {
	var data techstack.NewTechStack
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTechStack")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, _ := getContextUser(ctx)
	ts, err := api.svc.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating tech stack")
	}
	return ctx.JSON(http.StatusCreated, ts)
}

func (api *techStackApi) retrieve(ctx echo.Context) error {
	ts, err := getContextTechStack(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ts)
}

func (api *techStackApi) update(ctx echo.Context) error {
	orig, err := getContextTechStack(ctx)
	if err != nil {
		return err
	}
	var data techstack.UpdateTechStack
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTechStack")
	}
	if err := data.Validate(ctx.Request().Context(), orig, api.validate, api.svc); err != nil {
		return err
	}

	usr, _ := getContextUser(ctx)
	ts, err := api.svc.Update(ctx.Request().Context(), usr.ID, orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating tech stack")
	}
	return ctx.JSON(http.StatusOK, ts)
}

func (api *techStackApi) destroy(ctx echo.Context) error {
	ts, err := getContextTechStack(ctx)
	if err != nil {
		return err
	}
	usr, _ := getContextUser(ctx)
	if err := api.svc.Delete(ctx.Request().Context(), usr.ID, ts.ID); err != nil {
		return errors.Wrap(err, "deleting tech stack")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *techStackApi) addItem(ctx echo.Context) error {
	ts, err := getContextTechStack(ctx)
	if err != nil {
		return err
	}
	var data techstack.NewRoadmapItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoadmapItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, _ := getContextUser(ctx)
	ts, err = api.svc.AddItem(ctx.Request().Context(), usr.ID, ts.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding roadmap item")
	}
	return ctx.JSON(http.StatusCreated, ts)
}

func (api *techStackApi) updateItem(ctx echo.Context) error {
	ts, err := getContextTechStack(ctx)
	if err != nil {
		return err
	}
	var data techstack.UpdateRoadmapItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRoadmapItem")
	}

	usr, _ := getContextUser(ctx)
	// instructors only report progress
	if usr.IsInstructor() && !data.ProgressOnly() {
		return errHttpForbidden
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ts, err = api.svc.UpdateItem(ctx.Request().Context(), usr.ID, ts.ID, ctx.Param("itemId"), data)
	if err != nil {
		return errors.Wrap(err, "updating roadmap item")
	}
	return ctx.JSON(http.StatusOK, ts)
}

func (api *techStackApi) deleteItem(ctx echo.Context) error {
	ts, err := getContextTechStack(ctx)
	if err != nil {
		return err
	}
	usr, _ := getContextUser(ctx)
	ts, err = api.svc.DeleteItem(ctx.Request().Context(), usr.ID, ts.ID, ctx.Param("itemId"))
	if err != nil {
		return errors.Wrap(err, "deleting roadmap item")
	}
	return ctx.JSON(http.StatusOK, ts)
}
