package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	"github.com/yungbote/trackchat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/realtime"
)

type fixture struct {
	conn *gorm.DB
	ctx  context.Context
	dbc  dbctx.Context
	hub  *realtime.Hub

	websiteRepo  repos.WebsiteRepo
	personRepo   repos.PersonRepo
	activityRepo repos.ActivityRepo
	chatRepo     repos.ChatRepo
	messageRepo  repos.ChatMessageRepo

	websites WebsiteService
	presence PresenceService
	chats    *chatService
	ingest   *ingestService
	people   PeopleService

	site *types.Website
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	f := &fixture{
		conn:         conn,
		ctx:          ctx,
		dbc:          dbctx.Context{Ctx: ctx},
		hub:          realtime.NewHub(log, 64),
		websiteRepo:  repos.NewWebsiteRepo(conn, log),
		personRepo:   repos.NewPersonRepo(conn, log),
		activityRepo: repos.NewActivityRepo(conn, log),
		chatRepo:     repos.NewChatRepo(conn, log),
		messageRepo:  repos.NewChatMessageRepo(conn, log),
	}
	t.Cleanup(f.hub.Shutdown)

	f.websites = NewWebsiteService(conn, log, f.websiteRepo)
	f.presence = NewPresenceService(conn, log, f.activityRepo, f.personRepo, NewMemoryHeartbeatCache(), time.Minute)
	f.chats = NewChatService(conn, log, f.websiteRepo, f.personRepo, f.chatRepo, f.messageRepo, NewChatNotifier(f.hub, log)).(*chatService)
	f.ingest = NewIngestService(conn, log, f.websites, f.presence, f.personRepo, f.activityRepo).(*ingestService)
	f.people = NewPeopleService(log, f.personRepo, f.activityRepo)

	site, err := f.websites.Create(f.dbc, "owner-1", "Example", "example.com")
	if err != nil {
		t.Fatalf("Create website: %v", err)
	}
	f.site = site
	return f
}

type notification struct {
	kind   string
	chatID uint64
	seq    int64
	text   string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) MessageCreated(c *types.Chat, m *types.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: "message", chatID: c.ID, seq: m.Seq, text: m.Message})
}

func (n *recordingNotifier) ChatClosed(c *types.Chat) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: "closed", chatID: c.ID})
}

func (n *recordingNotifier) snapshot() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}

func recv(t *testing.T, c *realtime.Conn) realtime.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Outbound:
		if !ok {
			t.Fatalf("connection %s closed", c.ID)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting on connection %s", c.ID)
	}
	return realtime.Envelope{}
}

func expectIdle(t *testing.T, c *realtime.Conn) {
	t.Helper()
	select {
	case env, ok := <-c.Outbound:
		if ok {
			t.Fatalf("unexpected envelope on %s: %+v", c.ID, env)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
