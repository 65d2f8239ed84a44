package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/realtime"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type Services struct {
	Website  services.WebsiteService
	Presence services.PresenceService
	Chat     services.ChatService
	Ingest   services.IngestService
	People   services.PeopleService
	Auth     services.OperatorAuth
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, clients Clients, hub *realtime.Hub) Services {
	log.Info("Wiring services...")
	website := services.NewWebsiteService(db, log, r.Website)
	presence := services.NewPresenceService(db, log, r.Activity, r.Person, clients.PresenceCache, cfg.PresenceThreshold)
	notifier := services.NewChatNotifier(hub, log)
	return Services{
		Website:  website,
		Presence: presence,
		Chat:     services.NewChatService(db, log, r.Website, r.Person, r.Chat, r.ChatMessage, notifier),
		Ingest:   services.NewIngestService(db, log, website, presence, r.Person, r.Activity),
		People:   services.NewPeopleService(log, r.Person, r.Activity),
		Auth:     services.NewOperatorAuth(log, cfg.OperatorJWTSecret),
	}
}
