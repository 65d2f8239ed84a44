package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	"github.com/yungbote/trackchat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/realtime"
)

func TestFindOrCreateConcurrentCallsConverge(t *testing.T) {
	f := newFixture(t)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]uint64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opts := FindOrCreateOptions{}
			if i == 0 {
				opts.InitialMessage = "hi there"
			}
			res, err := f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", opts)
			errs[i] = err
			if res != nil {
				ids[i] = res.Chat.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got chat %d, caller 0 got %d", i, ids[i], ids[0])
		}
	}
	active, err := f.chatRepo.List(f.dbc, repos.ChatListFilter{WebsiteID: f.site.ID, Status: types.ChatStatusActive})
	if err != nil || len(active) != 1 {
		t.Fatalf("active chats: got=%d err=%v", len(active), err)
	}
	n, err := f.messageRepo.CountByChat(f.dbc, ids[0])
	if err != nil || n != 1 {
		t.Fatalf("message rows: got=%d err=%v want 1", n, err)
	}
}

func TestFindOrCreateSeparateInstancesConverge(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	other := NewChatService(f.conn, log, f.websiteRepo, f.personRepo, f.chatRepo, f.messageRepo, &recordingNotifier{})

	var wg sync.WaitGroup
	var a, b *FindOrCreateResult
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); a, errA = f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{}) }()
	go func() { defer wg.Done(); b, errB = other.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{}) }()
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("FindOrCreate: errA=%v errB=%v", errA, errB)
	}
	if a.Chat.ID != b.Chat.ID {
		t.Fatalf("diverged: %d vs %d", a.Chat.ID, b.Chat.ID)
	}
	if a.Created == b.Created {
		t.Fatalf("exactly one caller should create: a=%v b=%v", a.Created, b.Created)
	}
}

// staleChatRepo hides the active chat from the first GetActive call, forcing
// the insert path to collide with the existing row.
type staleChatRepo struct {
	repos.ChatRepo
	mu     sync.Mutex
	hidden bool
}

func (r *staleChatRepo) GetActive(dbc dbctx.Context, websiteID uint64, visitorID string) (*types.Chat, error) {
	r.mu.Lock()
	hide := !r.hidden
	r.hidden = true
	r.mu.Unlock()
	if hide {
		return nil, nil
	}
	return r.ChatRepo.GetActive(dbc, websiteID, visitorID)
}

func TestFindOrCreateRecoversFromLostRace(t *testing.T) {
	f := newFixture(t)
	winner := testutil.SeedChat(t, f.ctx, f.conn, f.site.ID, "abc123")

	svc := NewChatService(f.conn, testutil.Logger(t), f.websiteRepo, f.personRepo,
		&staleChatRepo{ChatRepo: f.chatRepo}, f.messageRepo, &recordingNotifier{})
	res, err := svc.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{})
	if err != nil {
		t.Fatalf("FindOrCreate after conflict: %v", err)
	}
	if res.Chat.ID != winner.ID || res.Created {
		t.Fatalf("got chat=%d created=%v want winner %d", res.Chat.ID, res.Created, winner.ID)
	}
}

func TestFindOrCreateLinksPersonAndRejectsUnknownWebsite(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedPerson(t, f.ctx, f.conn, "ada@example.com", "abc123")

	res, err := f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if res.Chat.PersonID == nil || *res.Chat.PersonID != p.ID {
		t.Fatalf("person link: got %v want %d", res.Chat.PersonID, p.ID)
	}

	_, err = f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID+999, "abc123", FindOrCreateOptions{})
	if !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("unknown website: got %v", err)
	}
}

func TestPostMessageOrderingAndDenormalizedFields(t *testing.T) {
	f := newFixture(t)
	res, err := f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	chatID := res.Chat.ID

	// Clock goes backwards on the third post; created_at must not.
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(time.Second), base.Add(-time.Hour), base.Add(2 * time.Second)}
	var mu sync.Mutex
	f.chats.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		next := clock[0]
		if len(clock) > 1 {
			clock = clock[1:]
		}
		return next
	}

	texts := []string{"one", "two", "three", "four"}
	for i, text := range texts {
		isAdmin := i%2 == 1
		if _, err := f.chats.PostMessage(f.dbc, chatID, isAdmin, text); err != nil {
			t.Fatalf("PostMessage(%q): %v", text, err)
		}
	}

	msgs, err := f.chats.ListMessages(f.dbc, chatID, 0, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != len(texts) {
		t.Fatalf("ListMessages: got %d want %d", len(msgs), len(texts))
	}
	for i, m := range msgs {
		if m.Message != texts[i] || m.Seq != int64(i+1) {
			t.Fatalf("message %d: got seq=%d text=%q", i, m.Seq, m.Message)
		}
		if i > 0 && m.CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("created_at decreased at %d: %v < %v", i, m.CreatedAt, msgs[i-1].CreatedAt)
		}
	}

	c, err := f.chats.GetChat(f.dbc, chatID)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if c.LastMessage != "four" || c.UnreadCount != 2 {
		t.Fatalf("denormalized: last=%q unread=%d", c.LastMessage, c.UnreadCount)
	}

	read, err := f.chats.MarkRead(f.dbc, chatID)
	if err != nil || read.UnreadCount != 0 {
		t.Fatalf("MarkRead: got=%+v err=%v", read, err)
	}
	after, _ := f.chats.GetChat(f.dbc, chatID)
	if !after.UpdatedAt.Equal(c.UpdatedAt) {
		t.Fatalf("MarkRead moved updated_at: %v -> %v", c.UpdatedAt, after.UpdatedAt)
	}

	tail, err := f.chats.ListMessages(f.dbc, chatID, 2, 0)
	if err != nil || len(tail) != 2 || tail[0].Message != "three" {
		t.Fatalf("ListMessages(after 2): got=%d err=%v", len(tail), err)
	}

	recent, err := f.chats.RecentMessages(f.dbc, chatID, 2)
	if err != nil || len(recent) != 2 || recent[0].Message != "three" || recent[1].Message != "four" {
		t.Fatalf("RecentMessages(2): got=%v err=%v", recent, err)
	}
	if _, err := f.chats.RecentMessages(f.dbc, 999999, 2); err == nil {
		t.Fatalf("RecentMessages(unknown chat): want error")
	}
}

func TestPostMessageConcurrentWritersKeepDenseSequence(t *testing.T) {
	f := newFixture(t)
	res, err := f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	visitor := f.hub.NewConn(realtime.KindVisitor, "abc123")
	if err := f.hub.Join(types.VisitorRoom("abc123"), visitor); err != nil {
		t.Fatalf("Join: %v", err)
	}

	const writers, each = 4, 5
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if _, err := f.chats.PostMessage(f.dbc, res.Chat.ID, w%2 == 0, "msg"); err != nil {
					t.Errorf("PostMessage: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	msgs, err := f.chats.ListMessages(f.dbc, res.Chat.ID, 0, 0)
	if err != nil || len(msgs) != writers*each {
		t.Fatalf("ListMessages: got=%d err=%v", len(msgs), err)
	}
	for i := 0; i < writers*each; i++ {
		env := recv(t, visitor)
		m, ok := env.Message.(*types.ChatMessage)
		if !ok {
			t.Fatalf("envelope %d: unexpected payload %T", i, env.Message)
		}
		if m.Seq != msgs[i].Seq {
			t.Fatalf("delivery %d: got seq %d want %d", i, m.Seq, msgs[i].Seq)
		}
	}
}

func TestPostMessageFailures(t *testing.T) {
	f := newFixture(t)
	rec := &recordingNotifier{}
	svc := NewChatService(f.conn, testutil.Logger(t), f.websiteRepo, f.personRepo, f.chatRepo, f.messageRepo, rec)

	if _, err := svc.PostMessage(f.dbc, 424242, true, "hello"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("unknown chat: got %v", err)
	}

	res, err := svc.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if _, err := svc.PostMessage(f.dbc, res.Chat.ID, false, "   "); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("blank message: got %v", err)
	}

	closed, err := svc.CloseChat(f.dbc, res.Chat.ID)
	if err != nil || closed.Status != types.ChatStatusClosed {
		t.Fatalf("CloseChat: got=%+v err=%v", closed, err)
	}
	again, err := svc.CloseChat(f.dbc, res.Chat.ID)
	if err != nil || again.Status != types.ChatStatusClosed {
		t.Fatalf("CloseChat again: got=%+v err=%v", again, err)
	}
	if _, err := svc.PostMessage(f.dbc, res.Chat.ID, true, "late"); !errors.Is(err, apierr.ErrConflict) {
		t.Fatalf("closed chat: got %v", err)
	}
	n, _ := f.messageRepo.CountByChat(f.dbc, res.Chat.ID)
	if n != 0 {
		t.Fatalf("failed posts wrote %d rows", n)
	}

	events := rec.snapshot()
	if len(events) != 1 || events[0].kind != "closed" {
		t.Fatalf("notifications: got %+v want a single close", events)
	}

	// A new message after close starts a fresh chat.
	next, err := svc.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{InitialMessage: "back again"})
	if err != nil || next.Chat.ID == res.Chat.ID || !next.Created || next.Message == nil {
		t.Fatalf("FindOrCreate after close: got=%+v err=%v", next, err)
	}
}

func TestBroadcastReachesBothRoomsAfterCommit(t *testing.T) {
	f := newFixture(t)
	res, err := f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	c := res.Chat

	visitor := f.hub.NewConn(realtime.KindVisitor, "abc123")
	operator := f.hub.NewConn(realtime.KindOperator, "op-1")
	departed := f.hub.NewConn(realtime.KindVisitor, "abc123")
	bystander := f.hub.NewConn(realtime.KindVisitor, "someone-else")
	if err := f.hub.Join(types.VisitorRoom(c.VisitorID), visitor); err != nil {
		t.Fatalf("Join visitor: %v", err)
	}
	if err := f.hub.Subscribe(operator, c.Rooms()...); err != nil {
		t.Fatalf("Subscribe operator: %v", err)
	}
	if err := f.hub.Join(types.VisitorRoom(c.VisitorID), departed); err != nil {
		t.Fatalf("Join departed: %v", err)
	}
	if err := f.hub.Join(types.VisitorRoom("someone-else"), bystander); err != nil {
		t.Fatalf("Join bystander: %v", err)
	}
	f.hub.Close(departed)

	m, err := f.chats.PostMessage(f.dbc, c.ID, false, "need help")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	for _, conn := range []*realtime.Conn{visitor, operator} {
		env := recv(t, conn)
		got, ok := env.Message.(*types.ChatMessage)
		if env.Type != realtime.EnvelopeChatMessage || !ok || got.ID != m.ID {
			t.Fatalf("conn %s: got %+v", conn.Kind, env)
		}
		// The operator sits in two rooms and still gets one copy.
		expectIdle(t, conn)
	}
	expectIdle(t, bystander)

	if _, err := f.chats.CloseChat(f.dbc, c.ID); err != nil {
		t.Fatalf("CloseChat: %v", err)
	}
	if env := recv(t, operator); env.Type != realtime.EnvelopeChatClosed || env.ChatID != c.ID {
		t.Fatalf("close envelope: got %+v", env)
	}
}

func TestOperatorMessageVisibleInHistoryWithoutSockets(t *testing.T) {
	f := newFixture(t)
	res, err := f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{InitialMessage: "hello", InitialIsAdmin: true})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if res.Message == nil || !res.Message.IsAdmin {
		t.Fatalf("initial message: got %+v", res.Message)
	}

	// Later the visitor shows up and loads history.
	active, err := f.chats.ActiveChatForVisitor(f.dbc, f.site.ID, "abc123")
	if err != nil || active == nil || active.ID != res.Chat.ID {
		t.Fatalf("ActiveChatForVisitor: got=%+v err=%v", active, err)
	}
	msgs, err := f.chats.ListMessages(f.dbc, active.ID, 0, 0)
	if err != nil || len(msgs) != 1 || msgs[0].Message != "hello" || !msgs[0].IsAdmin {
		t.Fatalf("history: got=%+v err=%v", msgs, err)
	}
}

func TestDeleteChatRemovesMessages(t *testing.T) {
	f := newFixture(t)
	res, err := f.chats.FindOrCreateActiveChat(f.dbc, f.site.ID, "abc123", FindOrCreateOptions{InitialMessage: "hi"})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if err := f.chats.DeleteChat(f.dbc, res.Chat.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if _, err := f.chats.GetChat(f.dbc, res.Chat.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("GetChat after delete: %v", err)
	}
	if n, _ := f.messageRepo.CountByChat(f.dbc, res.Chat.ID); n != 0 {
		t.Fatalf("messages left behind: %d", n)
	}
	if err := f.chats.DeleteChat(f.dbc, res.Chat.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("second DeleteChat: %v", err)
	}
}

func TestListChatsRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	if _, err := f.chats.ListChats(f.dbc, repos.ChatListFilter{Status: "archived"}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("ListChats: got %v", err)
	}
}
