package dig_container

import (
	"context"
	"fmt"
	"log"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/dig"

	echoapi "github.com/niat-ops/opsboard/apps/api/echo"
	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/dashboard"
	"github.com/niat-ops/opsboard/core/presence"
	"github.com/niat-ops/opsboard/core/reminder"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/roadmapsync"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	githubhost "github.com/niat-ops/opsboard/services/contenthost/github"
	memhost "github.com/niat-ops/opsboard/services/contenthost/memory"
	emailsvc "github.com/niat-ops/opsboard/services/email"
	logsvc "github.com/niat-ops/opsboard/services/logger"
	"github.com/niat-ops/opsboard/services/queue"
	"github.com/niat-ops/opsboard/storage/database"
	inmemdb "github.com/niat-ops/opsboard/storage/database/inmem"
	mongorepos "github.com/niat-ops/opsboard/storage/database/mongodb"
	sqlxrepos "github.com/niat-ops/opsboard/storage/database/sqlx"
)

const connectTimeout = 30 * time.Second

type (
	// Closer releases the storage connections.
	Closer func(ctx context.Context) error

	Repositories struct {
		dig.Out

		Users       user.Repository
		TechStacks  techstack.Repository
		Roadmaps    roadmap.Repository
		Companies   tracking.Repository[tracking.CompanyStatus]
		Feedback    tracking.Repository[tracking.InteractionFeedback]
		Internships tracking.Repository[tracking.PostInternship]
		Hubs        tracking.Repository[tracking.OverallHubStatus]
		Ratings     tracking.Repository[tracking.StudentRating]
		Close       Closer
	}

	TrackingServices struct {
		dig.Out

		Companies   *tracking.CompanyStatusService
		Feedback    *tracking.InteractionFeedbackService
		Internships *tracking.PostInternshipService
		Hubs        *tracking.HubStatusService
		Ratings     *tracking.StudentRatingService
	}

	serverParams struct {
		dig.In

		Conf        *core.Config
		Logger      core.Logger
		Validate    *validator.Validate
		Translator  ut.Translator
		Users       user.Service
		TechStacks  techstack.Service
		Roadmaps    roadmap.Service
		Companies   *tracking.CompanyStatusService
		Feedback    *tracking.InteractionFeedbackService
		Internships *tracking.PostInternshipService
		Hubs        *tracking.HubStatusService
		Ratings     *tracking.StudentRatingService
		Dashboard   *dashboard.Service
		Presence    *presence.Registry
	}
)

func newLogger(sink *logrus.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(sink, conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	techstack.InitValidators(validate, translator)
	roadmap.InitValidators(validate, translator)
	return validate
}

func newRepositories(conf *core.Config, logger core.Logger) Repositories {
	if conf.Storage == core.StorageMemory {
		logger.Warn("using in-memory storage: data is lost on shutdown")
		db := inmemdb.Open()
		return Repositories{
			Users:       inmemdb.NewUserRepository(db),
			TechStacks:  inmemdb.NewTechStackRepository(db),
			Roadmaps:    inmemdb.NewRoadmapRepository(db),
			Companies:   inmemdb.NewCompanyStatusRepository(db),
			Feedback:    inmemdb.NewInteractionFeedbackRepository(db),
			Internships: inmemdb.NewPostInternshipRepository(db),
			Hubs:        inmemdb.NewHubStatusRepository(db),
			Ratings:     inmemdb.NewStudentRatingRepository(db),
			Close:       func(context.Context) error { return nil },
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	sqlDB, err := openUsersDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up users database: %v", err), err)
	}
	client, mdb, err := openContentDB(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up content database: %v", err), err)
	}

	return Repositories{
		Users:       sqlxrepos.NewUserRepository(sqlDB),
		TechStacks:  mongorepos.NewTechStackRepository(mdb),
		Roadmaps:    mongorepos.NewRoadmapRepository(mdb),
		Companies:   mongorepos.NewCompanyStatusRepository(mdb),
		Feedback:    mongorepos.NewInteractionFeedbackRepository(mdb),
		Internships: mongorepos.NewPostInternshipRepository(mdb),
		Hubs:        mongorepos.NewHubStatusRepository(mdb),
		Ratings:     mongorepos.NewStudentRatingRepository(mdb),
		Close: func(ctx context.Context) error {
			sqlErr := sqlDB.Close()
			if err := client.Disconnect(ctx); err != nil {
				return errors.Wrap(err, "disconnecting content database")
			}
			return errors.Wrap(sqlErr, "closing users database")
		},
	}
}

func openUsersDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openContentDB(ctx context.Context, conf *core.Config, logger core.Logger) (*mongo.Client, *mongo.Database, error) {
	client, db, err := mongorepos.Connect(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	if err = mongorepos.EnsureIndexes(ctx, db, logger); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return client, db, nil
}

func newContentHost(conf *core.Config, logger core.Logger) core.ContentHost {
	if conf.ContentHost.Token == "" && conf.Debug {
		baseURL := conf.FrontendBaseURL + "/pages"
		logger.Warn("CONTENT_HOST_TOKEN is not set: roadmaps are published in memory", map[string]interface{}{"baseURL": baseURL})
		return memhost.New(baseURL)
	}
	host, err := githubhost.New(conf.ContentHost, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up content host: %v", err), err)
	}
	return host
}

func newChangeQueue(conf *core.Config) *queue.Memory[techstack.Change] {
	return queue.NewMemory[techstack.Change](conf.Sync.QueueSize)
}

func newTechStackService(repo techstack.Repository, changes *queue.Memory[techstack.Change], logger core.Logger) techstack.Service {
	return techstack.NewService(repo, changes, logger)
}

func newRoadmapService(repo roadmap.Repository, stacks techstack.Repository, host core.ContentHost, logger core.Logger) roadmap.Service {
	return roadmap.NewService(repo, stacks, host, logger)
}

func newTrackingServices(
	companies tracking.Repository[tracking.CompanyStatus],
	feedback tracking.Repository[tracking.InteractionFeedback],
	internships tracking.Repository[tracking.PostInternship],
	hubs tracking.Repository[tracking.OverallHubStatus],
	ratings tracking.Repository[tracking.StudentRating],
	validate *validator.Validate,
	logger core.Logger,
) TrackingServices {
	return TrackingServices{
		Companies:   tracking.NewService[tracking.CompanyStatus](companies, validate, logger),
		Feedback:    tracking.NewService[tracking.InteractionFeedback](feedback, validate, logger),
		Internships: tracking.NewService[tracking.PostInternship](internships, validate, logger),
		Hubs:        tracking.NewService[tracking.OverallHubStatus](hubs, validate, logger),
		Ratings:     tracking.NewService[tracking.StudentRating](ratings, validate, logger),
	}
}

func newSyncWorker(
	conf *core.Config,
	roadmaps roadmap.Service,
	changes *queue.Memory[techstack.Change],
	registry *presence.Registry,
	logger core.Logger,
) *roadmapsync.Worker {
	return roadmapsync.NewWorker(roadmaps, changes.C(), presence.NewNotifier(registry), logger, conf.Sync.Timeout)
}

func newReminderJob(
	conf *core.Config,
	users user.Service,
	stacks techstack.Service,
	internships *tracking.PostInternshipService,
	mailSvc core.EmailService,
	logger core.Logger,
) *reminder.Job {
	return reminder.NewJob(users, stacks, internships, mailSvc, logger, conf.Reminder.Hour)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:              p.Conf,
		Logger:            p.Logger,
		Validate:          p.Validate,
		Translator:        p.Translator,
		UserSvc:           p.Users,
		TechStackSvc:      p.TechStacks,
		RoadmapSvc:        p.Roadmaps,
		CompanyStatusSvc:  p.Companies,
		FeedbackSvc:       p.Feedback,
		PostInternshipSvc: p.Internships,
		HubStatusSvc:      p.Hubs,
		StudentRatingSvc:  p.Ratings,
		DashboardSvc:      p.Dashboard,
		Presence:          p.Presence,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewSink))
	must(c.Provide(newLogger))
	must(c.Provide(newRepositories))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(newContentHost))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newChangeQueue))
	must(c.Provide(presence.NewRegistry))
	must(c.Provide(user.NewService))
	must(c.Provide(newTechStackService))
	must(c.Provide(newRoadmapService))
	must(c.Provide(newTrackingServices))
	must(c.Provide(dashboard.NewService))
	must(c.Provide(newSyncWorker))
	must(c.Provide(newReminderJob))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
