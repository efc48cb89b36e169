package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/dashboard"
	"github.com/niat-ops/opsboard/core/presence"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc           user.Service
		TechStackSvc      techstack.Service
		RoadmapSvc        roadmap.Service
		CompanyStatusSvc  *tracking.CompanyStatusService
		FeedbackSvc       *tracking.InteractionFeedbackService
		PostInternshipSvc *tracking.PostInternshipService
		HubStatusSvc      *tracking.HubStatusService
		StudentRatingSvc  *tracking.StudentRatingService
		DashboardSvc      *dashboard.Service
		Presence          *presence.Registry
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.FrontendBaseURL != "" {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: []string{conf.FrontendBaseURL}}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/api/v1")
	jwt := jwtMiddleware(conf, false)
	ctxUser := ctxUserMiddleware(s.deps.UserSvc)

	registerUserAPI(v1, jwt, s.deps)
	authed := v1.Group("", jwt, ctxUser)
	registerTechStackAPI(authed, s.deps)
	registerRoadmapAPI(authed, s.deps)
	registerTrackingAPI(authed, s.deps)
	registerDashboardAPI(authed, s.deps)
	registerNotificationAPI(v1.Group("", jwtMiddleware(conf, true), ctxUser), s.deps)
}

// Start listens until the server is shut down. Listen errors are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Opsboard API!")
}
