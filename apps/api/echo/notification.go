package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/presence"
)

const (
	streamBufferSize  = 16
	heartbeatInterval = 25 * time.Second
)

func registerNotificationAPI(g *echo.Group, deps ServerDeps) {
	g.GET("/notifications/stream", notificationStreamHandler(deps.Presence))
}

// notificationStreamHandler streams the user's notifications as server-sent events until the client goes away.
// A newer stream of the same user takes over; this one then only sends heartbeats.
func notificationStreamHandler(registry *presence.Registry) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}

		ch := make(chan presence.Notification, streamBufferSize)
		registry.Register(usr.ID, ch)
		defer registry.Unregister(ch)

		resp := ctx.Response()
		resp.Header().Set(echo.HeaderContentType, "text/event-stream")
		resp.Header().Set(echo.HeaderCacheControl, "no-cache")
		resp.Header().Set(echo.HeaderConnection, "keep-alive")
		resp.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprint(resp, ": connected\n\n"); err != nil {
			return nil
		}
		resp.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		done := ctx.Request().Context().Done()
		for {
			select {
			case <-done:
				return nil
			case <-heartbeat.C:
				if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
					return nil
				}
			case n := <-ch:
				data, err := json.Marshal(n)
				if err != nil {
					return errors.Wrap(err, "encoding notification")
				}
				if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", n.Kind, data); err != nil {
					return nil
				}
			}
			resp.Flush()
		}
	}
}
