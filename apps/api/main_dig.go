package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"sync"

	dig_container "github.com/niat-ops/opsboard/apps/api/di/dig"
	echoapi "github.com/niat-ops/opsboard/apps/api/echo"
	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/reminder"
	"github.com/niat-ops/opsboard/core/roadmapsync"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/user"
	"github.com/niat-ops/opsboard/services/queue"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		closeStorage dig_container.Closer,
		changes *queue.Memory[techstack.Change],
		worker *roadmapsync.Worker,
		job *reminder.Job,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.ParseEmailTemplates(conf, apiLogger)

		user.LoadCommonPasswords(apiLogger)

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			if err := closeStorage(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("failed to close storage: %v", err), err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.NewString("storage").Set(conf.Storage)
		// tech stack changes lost on a full sync queue; run `admin resync --all` when it grows
		expvar.Publish("syncQueueDropped", expvar.Func(func() interface{} { return changes.Dropped() }))

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Background Jobs

		bgCtx, stopJobs := context.WithCancel(context.Background())
		var jobs sync.WaitGroup
		defer func() {
			stopJobs()
			jobs.Wait()
		}()

		jobs.Add(1)
		go func() {
			defer jobs.Done()
			worker.Run(bgCtx)
		}()

		if conf.Reminder.Enabled {
			jobs.Add(1)
			go func() {
				defer jobs.Done()
				job.Run(bgCtx)
			}()
		}

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Error(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
