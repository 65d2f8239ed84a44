package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/db"
	"github.com/yungbote/trackchat-backend/internal/data/repos"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

const MaxMessageLength = 4000

type FindOrCreateOptions struct {
	// InitialMessage is appended only by the caller that supplied it.
	InitialMessage string
	InitialIsAdmin bool
}

type FindOrCreateResult struct {
	Chat    *types.Chat        `json:"chat"`
	Created bool               `json:"created"`
	Message *types.ChatMessage `json:"message,omitempty"`
}

type ChatService interface {
	FindOrCreateActiveChat(dbc dbctx.Context, websiteID uint64, visitorID string, opts FindOrCreateOptions) (*FindOrCreateResult, error)
	PostMessage(dbc dbctx.Context, chatID uint64, isAdmin bool, text string) (*types.ChatMessage, error)
	CloseChat(dbc dbctx.Context, chatID uint64) (*types.Chat, error)

	GetChat(dbc dbctx.Context, chatID uint64) (*types.Chat, error)
	ListMessages(dbc dbctx.Context, chatID uint64, afterSeq int64, limit int) ([]*types.ChatMessage, error)
	// RecentMessages returns the newest limit messages in ascending seq order.
	RecentMessages(dbc dbctx.Context, chatID uint64, limit int) ([]*types.ChatMessage, error)
	ListChats(dbc dbctx.Context, f repos.ChatListFilter) ([]*types.Chat, error)
	ActiveChatForVisitor(dbc dbctx.Context, websiteID uint64, visitorID string) (*types.Chat, error)
	MarkRead(dbc dbctx.Context, chatID uint64) (*types.Chat, error)
	DeleteChat(dbc dbctx.Context, chatID uint64) error
}

type chatService struct {
	db       *gorm.DB
	log      *logger.Logger
	websites repos.WebsiteRepo
	persons  repos.PersonRepo
	chats    repos.ChatRepo
	messages repos.ChatMessageRepo
	notifier ChatNotifier
	metrics  *observability.Metrics

	locks  *keyedMutex
	flight singleflight.Group
	now    func() time.Time
}

func NewChatService(
	db *gorm.DB,
	baseLog *logger.Logger,
	websites repos.WebsiteRepo,
	persons repos.PersonRepo,
	chats repos.ChatRepo,
	messages repos.ChatMessageRepo,
	notifier ChatNotifier,
) ChatService {
	return &chatService{
		db:       db,
		log:      baseLog.With("service", "ChatService"),
		websites: websites,
		persons:  persons,
		chats:    chats,
		messages: messages,
		notifier: notifier,
		metrics:  observability.Current(),
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

func (s *chatService) FindOrCreateActiveChat(dbc dbctx.Context, websiteID uint64, visitorID string, opts FindOrCreateOptions) (*FindOrCreateResult, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, apierr.Validation("missing_visitor_id", "visitor_id is required")
	}
	if websiteID == 0 {
		return nil, apierr.Validation("missing_website_id", "website_id is required")
	}
	initial := strings.TrimSpace(opts.InitialMessage)
	if err := validateMessage(initial, true); err != nil {
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctxOf(dbc), "chat.FindOrCreateActiveChat")
	defer span.End()
	span.SetAttributes(attribute.Int64("website.id", int64(websiteID)))
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	var res *FindOrCreateResult
	if dbc.Tx != nil {
		// A caller-owned transaction cannot be shared across flights.
		r, err := s.findOrCreate(dbc, websiteID, visitorID)
		if err != nil {
			return nil, err
		}
		res = r
	} else {
		key := fmt.Sprintf("%d:%s", websiteID, visitorID)
		v, err, _ := s.flight.Do(key, func() (interface{}, error) {
			return s.findOrCreate(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, websiteID, visitorID)
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		shared := v.(*FindOrCreateResult)
		res = &FindOrCreateResult{Chat: shared.Chat, Created: shared.Created}
	}

	if initial != "" {
		m, err := s.PostMessage(dbctx.Context{Ctx: ctx}, res.Chat.ID, opts.InitialIsAdmin, initial)
		if err != nil {
			return nil, err
		}
		res.Message = m
		if fresh, err := s.chats.GetByID(dbctx.Context{Ctx: ctx}, res.Chat.ID); err == nil && fresh != nil {
			res.Chat = fresh
		}
	}
	return res, nil
}

func (s *chatService) findOrCreate(dbc dbctx.Context, websiteID uint64, visitorID string) (*FindOrCreateResult, error) {
	res := &FindOrCreateResult{}
	err := inTx(dbc, s.db, func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}

		existing, err := s.chats.GetActive(txc, websiteID, visitorID)
		if err != nil {
			return err
		}
		if existing != nil {
			res.Chat = existing
			return nil
		}

		w, err := s.websites.GetByID(txc, websiteID)
		if err != nil {
			return err
		}
		if w == nil {
			return apierr.NotFound("website_not_found", "website %d", websiteID)
		}

		var personID *uint64
		if p, err := s.persons.GetByVisitorID(txc, visitorID); err != nil {
			return err
		} else if p != nil {
			id := p.ID
			personID = &id
		}

		var created *types.Chat
		err = tx.Transaction(func(sp *gorm.DB) error {
			c, err := s.chats.CreateActive(dbctx.Context{Ctx: dbc.Ctx, Tx: sp}, websiteID, visitorID, personID)
			created = c
			return err
		})
		if err == nil {
			res.Chat = created
			res.Created = true
			return nil
		}
		if !db.IsUniqueViolation(err) {
			return err
		}
		// Lost the race to another writer; its chat is the active one.
		winner, err := s.chats.GetActive(txc, websiteID, visitorID)
		if err != nil {
			return err
		}
		if winner == nil {
			return fmt.Errorf("active chat vanished after conflict")
		}
		res.Chat = winner
		return nil
	})
	if err != nil {
		return nil, apierr.Transient("find or create chat", err)
	}
	if res.Created {
		s.metrics.IncChatCreated()
		s.log.Info("chat created", "chat_id", res.Chat.ID, "website_id", websiteID, "visitor_id", visitorID)
	}
	return res, nil
}

// PostMessage appends text to an active chat and fans the stored message out
// after commit. It always runs in its own transaction; the chat lock is held
// until the fan-out is enqueued so delivery order matches commit order.
func (s *chatService) PostMessage(dbc dbctx.Context, chatID uint64, isAdmin bool, text string) (*types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if err := validateMessage(text, false); err != nil {
		return nil, err
	}
	if chatID == 0 {
		return nil, apierr.Validation("missing_chat_id", "chat_id is required")
	}

	ctx, span := observability.Tracer().Start(ctxOf(dbc), "chat.PostMessage")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat.id", int64(chatID)), attribute.Bool("chat.is_admin", isAdmin))

	unlock := s.locks.Lock(chatID)
	defer unlock()

	var (
		c *types.Chat
		m *types.ChatMessage
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		locked, err := s.chats.LockByID(txc, chatID)
		if err != nil {
			if db.IsNotFound(err) {
				return apierr.NotFound("chat_not_found", "chat %d", chatID)
			}
			return err
		}
		if !locked.IsActive() {
			return apierr.Conflict("chat_closed", "chat %d is closed", chatID)
		}

		at := s.now().UTC().Truncate(time.Microsecond)
		if locked.LastMessageAt != nil && at.Before(*locked.LastMessageAt) {
			at = locked.LastMessageAt.UTC()
		}
		msg := &types.ChatMessage{
			ChatID:    chatID,
			Seq:       locked.NextSeq + 1,
			IsAdmin:   isAdmin,
			Message:   text,
			CreatedAt: at,
		}
		if _, err := s.messages.Create(txc, msg); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"next_seq":        msg.Seq,
			"last_message":    text,
			"last_message_at": at,
			"updated_at":      at,
		}
		if !isAdmin {
			updates["unread_count"] = gorm.Expr("unread_count + 1")
		}
		if err := s.chats.UpdateFields(txc, chatID, updates); err != nil {
			return err
		}

		locked.NextSeq = msg.Seq
		locked.LastMessage = text
		locked.LastMessageAt = &at
		locked.UpdatedAt = at
		if !isAdmin {
			locked.UnreadCount++
		}
		c, m = locked, msg
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, apierr.Transient("post message", err)
	}

	s.metrics.IncChatMessage(isAdmin)
	s.notifier.MessageCreated(c, m)
	return m, nil
}

// CloseChat moves an active chat to closed. Closing a closed chat returns it unchanged.
func (s *chatService) CloseChat(dbc dbctx.Context, chatID uint64) (*types.Chat, error) {
	if chatID == 0 {
		return nil, apierr.Validation("missing_chat_id", "chat_id is required")
	}
	ctx := ctxOf(dbc)
	unlock := s.locks.Lock(chatID)
	defer unlock()

	var (
		c       *types.Chat
		already bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		locked, err := s.chats.LockByID(txc, chatID)
		if err != nil {
			if db.IsNotFound(err) {
				return apierr.NotFound("chat_not_found", "chat %d", chatID)
			}
			return err
		}
		c = locked
		if !locked.IsActive() {
			already = true
			return nil
		}
		at := s.now().UTC()
		if err := s.chats.UpdateFields(txc, chatID, map[string]interface{}{
			"status":     types.ChatStatusClosed,
			"updated_at": at,
		}); err != nil {
			return err
		}
		c.Status = types.ChatStatusClosed
		c.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, apierr.Transient("close chat", err)
	}
	if !already {
		s.metrics.IncChatClosed()
		s.notifier.ChatClosed(c)
		s.log.Info("chat closed", "chat_id", chatID)
	}
	return c, nil
}

func (s *chatService) GetChat(dbc dbctx.Context, chatID uint64) (*types.Chat, error) {
	c, err := s.chats.GetByID(dbc, chatID)
	if err != nil {
		return nil, apierr.Transient("get chat", err)
	}
	if c == nil {
		return nil, apierr.NotFound("chat_not_found", "chat %d", chatID)
	}
	return c, nil
}

// ListMessages returns messages after afterSeq, oldest first.
func (s *chatService) ListMessages(dbc dbctx.Context, chatID uint64, afterSeq int64, limit int) ([]*types.ChatMessage, error) {
	if _, err := s.GetChat(dbc, chatID); err != nil {
		return nil, err
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	out, err := s.messages.ListByChat(dbc, chatID, afterSeq, limit)
	if err != nil {
		return nil, apierr.Transient("list messages", err)
	}
	return out, nil
}

func (s *chatService) RecentMessages(dbc dbctx.Context, chatID uint64, limit int) ([]*types.ChatMessage, error) {
	if _, err := s.GetChat(dbc, chatID); err != nil {
		return nil, err
	}
	out, err := s.messages.ListRecent(dbc, chatID, limit)
	if err != nil {
		return nil, apierr.Transient("list recent messages", err)
	}
	return out, nil
}

func (s *chatService) ListChats(dbc dbctx.Context, f repos.ChatListFilter) ([]*types.Chat, error) {
	if f.Status != "" && f.Status != types.ChatStatusActive && f.Status != types.ChatStatusClosed {
		return nil, apierr.Validation("invalid_status", "unknown chat status %q", f.Status)
	}
	out, err := s.chats.List(dbc, f)
	if err != nil {
		return nil, apierr.Transient("list chats", err)
	}
	return out, nil
}

// ActiveChatForVisitor returns (nil, nil) when the visitor has no active chat.
func (s *chatService) ActiveChatForVisitor(dbc dbctx.Context, websiteID uint64, visitorID string) (*types.Chat, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, apierr.Validation("missing_visitor_id", "visitor_id is required")
	}
	c, err := s.chats.GetActive(dbc, websiteID, visitorID)
	if err != nil {
		return nil, apierr.Transient("get active chat", err)
	}
	return c, nil
}

// MarkRead clears the unread counter without reordering chat listings.
func (s *chatService) MarkRead(dbc dbctx.Context, chatID uint64) (*types.Chat, error) {
	c, err := s.GetChat(dbc, chatID)
	if err != nil {
		return nil, err
	}
	if c.UnreadCount == 0 {
		return c, nil
	}
	if err := s.chats.UpdateFields(dbc, chatID, map[string]interface{}{
		"unread_count": 0,
		"updated_at":   c.UpdatedAt,
	}); err != nil {
		return nil, apierr.Transient("mark read", err)
	}
	c.UnreadCount = 0
	return c, nil
}

func (s *chatService) DeleteChat(dbc dbctx.Context, chatID uint64) error {
	ctx := ctxOf(dbc)
	unlock := s.locks.Lock(chatID)
	defer unlock()

	var (
		c        *types.Chat
		messages int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		locked, err := s.chats.LockByID(txc, chatID)
		if err != nil {
			if db.IsNotFound(err) {
				return apierr.NotFound("chat_not_found", "chat %d", chatID)
			}
			return err
		}
		c = locked
		if messages, err = s.messages.CountByChat(txc, chatID); err != nil {
			return err
		}
		return s.chats.Delete(txc, chatID)
	})
	if err != nil {
		return apierr.Transient("delete chat", err)
	}
	if c.IsActive() {
		s.notifier.ChatClosed(c)
	}
	s.log.Info("chat deleted", "chat_id", chatID, "messages", messages)
	return nil
}

func validateMessage(text string, allowEmpty bool) error {
	if text == "" {
		if allowEmpty {
			return nil
		}
		return apierr.Validation("empty_message", "message is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return apierr.Validation("message_too_long", "message exceeds %d characters", MaxMessageLength)
	}
	return nil
}
