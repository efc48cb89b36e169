package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"go.uber.org/dig"

	dig_container "github.com/niat-ops/opsboard/apps/api/di/dig"
	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	"github.com/niat-ops/opsboard/storage/database"
)

type services struct {
	dig.In

	Close     dig_container.Closer
	Users     user.Repository
	Roadmaps  roadmap.Service
	Companies *tracking.CompanyStatusService
	Feedback  *tracking.InteractionFeedbackService
	Host      core.ContentHost
}

func main() {
	c := dig_container.New()

	var (
		conf   *core.Config
		logger core.Logger
	)
	if err := c.Invoke(func(cf *core.Config, l core.Logger) { conf, logger = cf, l }); err != nil {
		panic(err)
	}
	core.ParseEmailTemplates(conf, logger)

	closeStorage := dig_container.Closer(func(context.Context) error { return nil })
	cli := &commandLine{out: os.Stdout}
	cli.connect = func() error {
		return c.Invoke(func(svc services) {
			closeStorage = svc.Close
			cli.usrRepo = svc.Users
			cli.roadmaps = svc.Roadmaps
			cli.companies = svc.Companies
			cli.feedback = svc.Feedback
			cli.host = svc.Host
		})
	}
	cli.openDB = func() (*sql.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		return db.DB, nil
	}

	err := cli.run(os.Args)

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if cerr := closeStorage(ctx); cerr != nil {
		logger.Error("failed to close storage", cerr)
	}

	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		cancel()
		os.Exit(1)
	}
}
