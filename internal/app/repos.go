package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type Repos struct {
	Website     repos.WebsiteRepo
	Person      repos.PersonRepo
	Activity    repos.ActivityRepo
	Chat        repos.ChatRepo
	ChatMessage repos.ChatMessageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Website:     repos.NewWebsiteRepo(db, log),
		Person:      repos.NewPersonRepo(db, log),
		Activity:    repos.NewActivityRepo(db, log),
		Chat:        repos.NewChatRepo(db, log),
		ChatMessage: repos.NewChatMessageRepo(db, log),
	}
}
