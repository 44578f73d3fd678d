package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/cachimiro/pax-website-sub000/internal/calendar"
	"github.com/cachimiro/pax-website-sub000/internal/channel"
	"github.com/cachimiro/pax-website-sub000/internal/config"
	"github.com/cachimiro/pax-website-sub000/internal/infra/db"
	"github.com/cachimiro/pax-website-sub000/internal/infra/redis"
	"github.com/cachimiro/pax-website-sub000/internal/payment"
	"github.com/cachimiro/pax-website-sub000/internal/queue"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
	pgrepo "github.com/cachimiro/pax-website-sub000/internal/repository/postgres"
	scyllarepo "github.com/cachimiro/pax-website-sub000/internal/repository/scylla"
	automationsvc "github.com/cachimiro/pax-website-sub000/internal/service/automation"
	dispatchsvc "github.com/cachimiro/pax-website-sub000/internal/service/dispatch"
	"github.com/cachimiro/pax-website-sub000/internal/service/singleflight"
	trackingsvc "github.com/cachimiro/pax-website-sub000/internal/service/tracking"
	"github.com/cachimiro/pax-website-sub000/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		publishers   *publishers
		providers    *providers
		locks        *locks
	}
}

type repositories struct {
	Leads     repository.LeadRepository
	Opps      repository.OpportunityRepository
	Users     repository.UserRepository
	Templates repository.TemplateRepository
	Messages  repository.MessageLogRepository
	Bookings  repository.BookingRepository
	Tasks     repository.TaskRepository
	Actions   repository.ActionLogRepository
	Invoices  repository.InvoiceRepository
	Attempts  repository.AttemptStore
}

type services struct {
	Automation *automationsvc.Service
	Dispatch   *dispatchsvc.Service
	Tracking   *trackingsvc.Service
}

type publishers struct {
	Stage *queue.StagePublisher
}

type providers struct {
	Calendar calendar.Provider
	Payments payment.Provider
	Sender   channel.Sender
}

type locks struct {
	Sweep *singleflight.Lock
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	if err := pgrepo.Bootstrap(ctx, pg.DB()); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Leads:     pgrepo.NewLeadRepository(c.Postgres.DB()),
			Opps:      pgrepo.NewOpportunityRepository(c.Postgres.DB()),
			Users:     pgrepo.NewUserRepository(c.Postgres.DB()),
			Templates: pgrepo.NewTemplateRepository(c.Postgres.DB()),
			Messages:  pgrepo.NewMessageLogRepository(c.Postgres.DB()),
			Bookings:  pgrepo.NewBookingRepository(c.Postgres.DB()),
			Tasks:     pgrepo.NewTaskRepository(c.Postgres.DB()),
			Actions:   pgrepo.NewActionLogRepository(c.Postgres.DB()),
			Invoices:  pgrepo.NewInvoiceRepository(c.Postgres.DB()),
			Attempts:  scyllarepo.NewAttemptStore(c.Scylla.Session()),
		}

		pubs := &publishers{
			Stage: queue.NewStagePublisher(c.Kafka, c.Config.Kafka.StageEventTopic),
		}

		cal, err := calendar.NewProvider(context.Background(), c.Config.Calendar)
		if err != nil {
			c.Logger.Warn("calendar provider init failed, tracking runs unconfigured")
			cal = calendar.Unconfigured{}
		}

		provs := &providers{
			Calendar: cal,
			Payments: payment.NewProvider(c.Config.Payment),
			Sender:   channel.NewGateway(c.Config.Channels, c.Logger),
		}

		svcs := &services{
			Automation: automationsvc.NewService(automationsvc.Deps{
				Leads:      repos.Leads,
				Opps:       repos.Opps,
				Templates:  repos.Templates,
				Messages:   repos.Messages,
				Bookings:   repos.Bookings,
				Tasks:      repos.Tasks,
				Invoices:   repos.Invoices,
				Payments:   provs.Payments,
				Automation: c.Config.Automation,
				Logger:     c.Logger,
			}),
			Dispatch: dispatchsvc.NewService(dispatchsvc.Deps{
				Messages:   repos.Messages,
				Opps:       repos.Opps,
				Users:      repos.Users,
				Bookings:   repos.Bookings,
				Templates:  repos.Templates,
				Attempts:   repos.Attempts,
				Sender:     provs.Sender,
				Site:       c.Config.Site,
				Automation: c.Config.Automation,
				BatchSize:  c.Config.Scheduler.QueueBatchSize,
				Logger:     c.Logger,
			}),
			Tracking: trackingsvc.NewService(trackingsvc.Deps{
				Bookings:   repos.Bookings,
				Opps:       repos.Opps,
				Leads:      repos.Leads,
				Tasks:      repos.Tasks,
				Actions:    repos.Actions,
				Messages:   repos.Messages,
				Calendar:   provs.Calendar,
				Automation: c.Config.Automation,
				OwnerEmail: c.Config.Calendar.OwnerEmail,
				BatchSize:  c.Config.Scheduler.TrackingBatchSize,
				Logger:     c.Logger,
			}),
		}

		sweepLocks := &locks{
			Sweep: singleflight.NewLock(c.Redis.Inner(), c.Config.Scheduler.LockKeyPrefix, c.Config.Scheduler.LockTTL),
		}

		c.components.repositories = repos
		c.components.publishers = pubs
		c.components.providers = provs
		c.components.services = svcs
		c.components.locks = sweepLocks
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Locks exposes distributed locks.
func (c *Container) Locks() *locks {
	c.initComponents()
	return c.components.locks
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	c.initComponents()
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.StageEventTopic}, 12, 1)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if p := c.components.publishers; p != nil && p.Stage != nil {
		if err := p.Stage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stage publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
