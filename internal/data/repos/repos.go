package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/repos/chat"
	"github.com/yungbote/trackchat-backend/internal/data/repos/tracking"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type WebsiteRepo = tracking.WebsiteRepo
type PersonRepo = tracking.PersonRepo
type ActivityRepo = tracking.ActivityRepo
type PersonListFilter = tracking.PersonListFilter

type ChatRepo = chat.ChatRepo
type ChatMessageRepo = chat.ChatMessageRepo
type ChatListFilter = chat.ChatListFilter

func NewWebsiteRepo(db *gorm.DB, baseLog *logger.Logger) WebsiteRepo {
	return tracking.NewWebsiteRepo(db, baseLog)
}
func NewPersonRepo(db *gorm.DB, baseLog *logger.Logger) PersonRepo {
	return tracking.NewPersonRepo(db, baseLog)
}
func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return tracking.NewActivityRepo(db, baseLog)
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
	return chat.NewChatRepo(db, baseLog)
}
func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return chat.NewChatMessageRepo(db, baseLog)
}
