package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/niat-ops/opsboard/core/user"
)

// permissionMiddleware lets through users for whom allowed holds.
func permissionMiddleware(allowed func(usr user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if allowed(usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// rolesMiddleware lets through admins and users having one of roles.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return permissionMiddleware(func(usr user.User) bool {
		return usr.IsAdmin() || usr.HasAnyRole(roles...)
	})
}

func adminMiddleware() echo.MiddlewareFunc {
	return rolesMiddleware()
}

// readWriteMiddleware applies readRoles to safe methods and writeRoles to the others.
func readWriteMiddleware(readRoles, writeRoles []string) echo.MiddlewareFunc {
	read, write := rolesMiddleware(readRoles...), rolesMiddleware(writeRoles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		readNext, writeNext := read(next), write(next)
		return func(ctx echo.Context) error {
			switch ctx.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return readNext(ctx)
			default:
				return writeNext(ctx)
			}
		}
	}
}
