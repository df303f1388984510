package app

import (
	"github.com/grouplan/grouplan/internal/config"
	"github.com/grouplan/grouplan/internal/event_bus"
	"github.com/grouplan/grouplan/internal/metrics"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/agenda"
	"github.com/grouplan/grouplan/pkg/curriculum"
	"github.com/grouplan/grouplan/pkg/file"
	"github.com/grouplan/grouplan/pkg/group"
	"github.com/grouplan/grouplan/pkg/schedule"
	"github.com/grouplan/grouplan/pkg/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus
	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	RateLimiter *RateLimiter

	UserService user.Service
	UserHandler *user.Handler

	Files file.Service

	GroupRepo    group.Repository
	GroupService *group.ServiceImpl
	GroupHandler *group.Handler

	ScheduleRepo    schedule.Repository
	ScheduleService *schedule.ServiceImpl
	ScheduleHandler *schedule.Handler

	AgendaService *agenda.ServiceImpl
	AgendaHandler *agenda.Handler

	CurriculumService *curriculum.ServiceImpl
	CurriculumHandler *curriculum.Handler
}

// Repositories are the storage ports the services are built on.
type Repositories struct {
	Users      user.Repo
	Groups     group.Repository
	Schedules  schedule.Repository
	Curriculum curriculum.Repository
}

// PostgresRepositories returns the pgx implementations of every repository.
func PostgresRepositories(db *pgxpool.Pool) Repositories {
	return Repositories{
		Users:      user.NewUserRepo(db),
		Groups:     group.NewRepository(db),
		Schedules:  schedule.NewRepository(db),
		Curriculum: curriculum.NewRepository(db),
	}
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(repos Repositories, files file.Service, cfg config.Application, clock utils.Clock) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = clock
	deps.EventBus = event_bus.NewEventBus()
	deps.Registry = prometheus.NewRegistry()
	deps.Metrics = metrics.NewCollector(deps.Registry)

	if cfg.RateLimit.Enabled {
		deps.RateLimiter = NewRateLimiter(cfg.RateLimit, deps.Clock, deps.Metrics)
	}

	userService := user.NewUserService(repos.Users, cfg.System.AdminUuid)
	deps.UserService = userService
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.Files = files

	deps.GroupRepo = repos.Groups
	deps.GroupService = group.NewService(deps.GroupRepo, userService, deps.EventBus, deps.Clock)
	deps.GroupHandler = group.NewHandler(deps.GroupService)

	deps.ScheduleRepo = repos.Schedules
	deps.ScheduleService = schedule.NewService(deps.ScheduleRepo, deps.GroupService, deps.Files, deps.EventBus, deps.Clock)
	deps.ScheduleHandler = schedule.NewHandler(deps.ScheduleService)

	deps.AgendaService = agenda.NewService(deps.ScheduleRepo, deps.GroupService, deps.Clock, deps.Metrics)
	deps.AgendaHandler = agenda.NewHandler(deps.AgendaService)

	deps.CurriculumService = curriculum.NewService(repos.Curriculum, deps.Clock)
	deps.CurriculumHandler = curriculum.NewHandler(deps.CurriculumService)

	return deps
}
