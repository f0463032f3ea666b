package service

import (
	"log/slog"

	"github.com/kirinyoku/cinema-es/internal/aggregate"
	"github.com/kirinyoku/cinema-es/internal/projection"
	redisrepo "github.com/kirinyoku/cinema-es/internal/repository/redis"
	"github.com/kirinyoku/cinema-es/internal/service/admin"
	"github.com/kirinyoku/cinema-es/internal/service/commands"
	"github.com/kirinyoku/cinema-es/internal/service/media"
	"github.com/kirinyoku/cinema-es/internal/service/query"
)

type Services struct {
	Commands *commands.Service
	Query    *query.Service
	Admin    *admin.Service
	// Media is nil when no object storage is configured.
	Media *media.Service
}

type Config struct {
	Query query.Config
}

// Deps are the backends the services run on. Cache and Storage are optional.
type Deps struct {
	Events      commands.EventStore
	Reads       projection.Store
	Reader      projection.Reader
	DeadLetters admin.DeadLetters
	Dispatcher  Dispatcher
	Cache       *redisrepo.Cache
	Storage     media.Storage
}

// Dispatcher is what the services need from the event dispatcher.
type Dispatcher interface {
	commands.Publisher
	admin.Dispatcher
}

func NewServices(deps Deps, cfg Config, log *slog.Logger) *Services {
	cmds := commands.New(deps.Events, aggregate.NewRegistry(), deps.Dispatcher, log)

	svcs := &Services{
		Commands: cmds,
		Query:    query.New(deps.Reader, deps.Cache, cfg.Query),
		Admin:    admin.New(deps.Dispatcher, deps.Reads, deps.DeadLetters, log),
	}
	if deps.Storage != nil {
		svcs.Media = media.New(cmds, deps.Storage, log)
	}

	return svcs
}
