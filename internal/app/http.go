package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/http"
	httpH "github.com/yungbote/trackchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/trackchat-backend/internal/http/middleware"
	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/realtime"
)

type Middleware struct {
	Auth         *httpMW.AuthMiddleware
	TrackLimiter *httpMW.RateLimiter
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Tracking *httpH.TrackingHandler
	Presence *httpH.PresenceHandler
	Chat     *httpH.ChatHandler
	Socket   *httpH.SocketHandler
	Website  *httpH.WebsiteHandler
	People   *httpH.PeopleHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cfg Config, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db, hub),
		Tracking: httpH.NewTrackingHandler(services.Ingest),
		Presence: httpH.NewPresenceHandler(services.Presence),
		Chat:     httpH.NewChatHandler(services.Chat, services.Website),
		Socket: httpH.NewSocketHandler(log, hub, services.Chat, services.Website, httpH.SocketConfig{
			WriteTimeout: cfg.WSWriteTimeout,
			PingInterval: cfg.WSPingInterval,
		}),
		Website: httpH.NewWebsiteHandler(services.Website),
		People:  httpH.NewPeopleHandler(services.People),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth:         httpMW.NewAuthMiddleware(log, services.Auth),
		TrackLimiter: httpMW.NewRateLimiter(cfg.TrackRatePerSec, cfg.TrackRateBurst),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(log, ":"+cfg.Port, http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		CORSOrigins:     cfg.CORSOrigins,
		AuthMiddleware:  middleware.Auth,
		TrackLimiter:    middleware.TrackLimiter,
		HealthHandler:   handlers.Health,
		TrackingHandler: handlers.Tracking,
		PresenceHandler: handlers.Presence,
		ChatHandler:     handlers.Chat,
		SocketHandler:   handlers.Socket,
		WebsiteHandler:  handlers.Website,
		PeopleHandler:   handlers.People,
	})
}
