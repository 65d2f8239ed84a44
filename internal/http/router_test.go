package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	"github.com/yungbote/trackchat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	httpH "github.com/yungbote/trackchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/trackchat-backend/internal/http/middleware"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/realtime"
	"github.com/yungbote/trackchat-backend/internal/services"
)

const testSecret = "s3cret"

type apiFixture struct {
	engine *gin.Engine
	hub    *realtime.Hub
	site   *types.Website
	token  string
	chats  services.ChatService
	auth   services.OperatorAuth
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := testutil.DB(t)
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	websiteRepo := repos.NewWebsiteRepo(conn, log)
	personRepo := repos.NewPersonRepo(conn, log)
	activityRepo := repos.NewActivityRepo(conn, log)
	chatRepo := repos.NewChatRepo(conn, log)
	messageRepo := repos.NewChatMessageRepo(conn, log)

	hub := realtime.NewHub(log, 64)
	t.Cleanup(hub.Shutdown)

	websites := services.NewWebsiteService(conn, log, websiteRepo)
	presence := services.NewPresenceService(conn, log, activityRepo, personRepo, nil, time.Minute)
	chats := services.NewChatService(conn, log, websiteRepo, personRepo, chatRepo, messageRepo, services.NewChatNotifier(hub, log))
	ingest := services.NewIngestService(conn, log, websites, presence, personRepo, activityRepo)
	people := services.NewPeopleService(log, personRepo, activityRepo)
	auth := services.NewOperatorAuth(log, testSecret)

	site, err := websites.Create(dbc, "op-1", "Example", "example.com")
	if err != nil {
		t.Fatalf("Create website: %v", err)
	}
	token, err := auth.Issue("op-1", "Grace", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	engine := NewRouter(RouterConfig{
		Log:             log,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, auth),
		TrackLimiter:    httpMW.NewRateLimiter(1000, 1000),
		HealthHandler:   httpH.NewHealthHandler(conn, hub),
		TrackingHandler: httpH.NewTrackingHandler(ingest),
		PresenceHandler: httpH.NewPresenceHandler(presence),
		ChatHandler:     httpH.NewChatHandler(chats, websites),
		SocketHandler:   httpH.NewSocketHandler(log, hub, chats, websites, httpH.SocketConfig{}),
		WebsiteHandler:  httpH.NewWebsiteHandler(websites),
		PeopleHandler:   httpH.NewPeopleHandler(people),
	})
	return &apiFixture{engine: engine, hub: hub, site: site, token: token, chats: chats, auth: auth}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, operator bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if operator {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

type chatBody struct {
	Chat     *types.Chat          `json:"chat"`
	Created  bool                 `json:"created"`
	Messages []*types.ChatMessage `json:"messages"`
	Message  *types.ChatMessage   `json:"message"`
}

func TestHealthcheck(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, nethttp.MethodGet, "/healthcheck", nil, false)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("healthcheck: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestTrackAndPresence(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, nethttp.MethodPost, "/api/track", map[string]any{
		"site_id":    f.site.SiteID,
		"event_type": types.ActivityHeartbeat,
		"visitor_id": "abc123",
	}, false)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("track heartbeat: got %d body=%s", rec.Code, rec.Body.String())
	}

	path := fmt.Sprintf("/api/admin/presence/online?website_id=%d", f.site.ID)
	if rec := f.do(t, nethttp.MethodGet, path, nil, false); rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("presence without token: got %d", rec.Code)
	}
	rec = f.do(t, nethttp.MethodGet, path, nil, true)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("presence: got %d body=%s", rec.Code, rec.Body.String())
	}
	online := decode[struct {
		Visitors []*types.OnlineVisitor `json:"visitors"`
		Count    int                    `json:"count"`
	}](t, rec)
	if online.Count != 1 || online.Visitors[0].VisitorID != "abc123" {
		t.Fatalf("presence: got %+v", online)
	}

	rec = f.do(t, nethttp.MethodGet, "/api/admin/presence/abc123", nil, true)
	st := decode[services.PresenceStatus](t, rec)
	if !st.Online {
		t.Fatalf("visitor status: got %+v", st)
	}
}

func TestTrackErrors(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown site", map[string]any{"site_id": "nope", "event_type": types.ActivityViewedPage, "visitor_id": "v"}, nethttp.StatusNotFound, "site_not_found"},
		{"unknown type", map[string]any{"site_id": f.site.SiteID, "event_type": "Clicked", "visitor_id": "v"}, nethttp.StatusBadRequest, ""},
		{"not json", "garbage", nethttp.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, nethttp.MethodPost, "/api/track", tc.body, false)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			body := decode[errorBody](t, rec)
			if body.Error.Message == "" || (tc.code != "" && body.Error.Code != tc.code) {
				t.Fatalf("error body: got %+v", body)
			}
		})
	}
}

func TestChatOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, nethttp.MethodPost, "/api/chat", map[string]any{
		"site_id":    f.site.SiteID,
		"visitor_id": "v1",
		"message":    "Hi there",
	}, false)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("start chat: got %d body=%s", rec.Code, rec.Body.String())
	}
	started := decode[chatBody](t, rec)
	if !started.Created || started.Chat == nil || started.Message == nil || started.Message.IsAdmin {
		t.Fatalf("start chat: got %+v", started)
	}
	chatPath := fmt.Sprintf("/api/admin/chats/%d", started.Chat.ID)

	rec = f.do(t, nethttp.MethodPost, chatPath+"/messages", map[string]any{"message": "Hello, how can I help?"}, true)
	if rec.Code != nethttp.StatusCreated {
		t.Fatalf("operator reply: got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, nethttp.MethodGet, fmt.Sprintf("/api/chat/%s/v1", f.site.SiteID), nil, false)
	history := decode[chatBody](t, rec)
	if len(history.Messages) != 2 || history.Messages[0].Message != "Hi there" || !history.Messages[1].IsAdmin {
		t.Fatalf("widget history: got %+v", history.Messages)
	}
	rec = f.do(t, nethttp.MethodGet, fmt.Sprintf("/api/chat/%s/v1?limit=1", f.site.SiteID), nil, false)
	if last := decode[chatBody](t, rec).Messages; len(last) != 1 || !last[0].IsAdmin {
		t.Fatalf("widget history limit=1: got %+v", last)
	}

	rec = f.do(t, nethttp.MethodGet, fmt.Sprintf("/api/admin/chats?website_id=%d&status=active", f.site.ID), nil, true)
	list := decode[struct {
		Chats []*types.Chat `json:"chats"`
	}](t, rec)
	if len(list.Chats) != 1 || list.Chats[0].UnreadCount != 1 {
		t.Fatalf("chat list: got %+v", list.Chats)
	}

	if rec := f.do(t, nethttp.MethodPost, chatPath+"/read", nil, true); rec.Code != nethttp.StatusOK {
		t.Fatalf("mark read: got %d", rec.Code)
	}
	if rec := f.do(t, nethttp.MethodPost, chatPath+"/close", nil, true); rec.Code != nethttp.StatusOK {
		t.Fatalf("close: got %d", rec.Code)
	}

	rec = f.do(t, nethttp.MethodPost, chatPath+"/messages", map[string]any{"message": "still there?"}, true)
	if rec.Code != nethttp.StatusConflict || decode[errorBody](t, rec).Error.Code != "chat_closed" {
		t.Fatalf("post to closed chat: got %d body=%s", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, nethttp.MethodGet, "/api/admin/chats/999999", nil, true); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("unknown chat: got %d", rec.Code)
	}
	if rec := f.do(t, nethttp.MethodDelete, chatPath, nil, true); rec.Code != nethttp.StatusOK {
		t.Fatalf("delete: got %d", rec.Code)
	}
	if rec := f.do(t, nethttp.MethodGet, chatPath, nil, true); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("get deleted chat: got %d", rec.Code)
	}
}

func TestWebsiteDeleteIsScopedToOwner(t *testing.T) {
	f := newAPIFixture(t)
	path := fmt.Sprintf("/api/admin/websites/%d", f.site.ID)

	other, err := f.auth.Issue("op-2", "Mallory", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(nethttp.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusNotFound || decode[errorBody](t, rec).Error.Code != "website_not_found" {
		t.Fatalf("foreign delete: got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, nethttp.MethodPost, "/api/track", map[string]any{
		"site_id":    f.site.SiteID,
		"event_type": types.ActivityHeartbeat,
		"visitor_id": "abc123",
	}, false)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("site gone after foreign delete: got %d body=%s", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, nethttp.MethodDelete, path, nil, true); rec.Code != nethttp.StatusNoContent {
		t.Fatalf("owner delete: got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, nethttp.MethodDelete, path, nil, true); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("second delete: got %d", rec.Code)
	}
}

type frame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	ChatID  uint64          `json:"chat_id"`
}

func (fr frame) chatMessage(t *testing.T) types.ChatMessage {
	t.Helper()
	var m types.ChatMessage
	if err := json.Unmarshal(fr.Message, &m); err != nil {
		t.Fatalf("frame message %s: %v", fr.Message, err)
	}
	return m
}

func dial(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *nethttp.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if ws != nil {
		t.Cleanup(func() { ws.Close() })
	}
	return ws, resp, err
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var fr frame
	if err := ws.ReadJSON(&fr); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return fr
}

func waitMembers(t *testing.T, hub *realtime.Hub, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Members(room)) < n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s: want %d members, have %d", room, n, len(hub.Members(room)))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSocketChatRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	visitor, _, err := dial(t, srv, "/ws/chat/v1?site_id="+f.site.SiteID)
	if err != nil {
		t.Fatalf("dial visitor: %v", err)
	}
	waitMembers(t, f.hub, types.VisitorRoom("v1"), 1)

	if err := visitor.WriteJSON(map[string]any{"message": "Is anyone there?"}); err != nil {
		t.Fatalf("visitor write: %v", err)
	}
	first := readFrame(t, visitor)
	if first.Type != realtime.EnvelopeChatMessage || first.chatMessage(t).Message != "Is anyone there?" {
		t.Fatalf("visitor echo: got %+v", first)
	}
	chatID := first.chatMessage(t).ChatID

	operator, _, err := dial(t, srv, fmt.Sprintf("/ws/admin/chat/%d?token=%s", chatID, f.token))
	if err != nil {
		t.Fatalf("dial operator: %v", err)
	}
	waitMembers(t, f.hub, types.AdminRoom(chatID), 1)
	waitMembers(t, f.hub, types.VisitorRoom("v1"), 2)

	opConn := f.hub.Members(types.AdminRoom(chatID))[0]
	rooms := map[string]bool{}
	for _, r := range f.hub.Rooms(opConn) {
		rooms[r] = true
	}
	if len(rooms) != 2 || !rooms[types.AdminRoom(chatID)] || !rooms[types.VisitorRoom("v1")] {
		t.Fatalf("operator rooms: got %v", f.hub.Rooms(opConn))
	}

	if err := operator.WriteJSON(map[string]any{"message": "Yes, hello!"}); err != nil {
		t.Fatalf("operator write: %v", err)
	}
	for name, ws := range map[string]*websocket.Conn{"visitor": visitor, "operator": operator} {
		fr := readFrame(t, ws)
		m := fr.chatMessage(t)
		if fr.Type != realtime.EnvelopeChatMessage || m.Message != "Yes, hello!" || !m.IsAdmin {
			t.Fatalf("%s: got %+v", name, fr)
		}
	}

	// A visitor naming the chat explicitly posts into it.
	if err := visitor.WriteJSON(map[string]any{"message": "Great", "chat_id": chatID}); err != nil {
		t.Fatalf("visitor write: %v", err)
	}
	if fr := readFrame(t, operator); fr.chatMessage(t).Message != "Great" {
		t.Fatalf("operator: got %+v", fr)
	}

	// Writing to a closed chat answers only the sender with an error frame.
	if _, err := f.chats.CloseChat(dbctx.Context{Ctx: context.Background()}, chatID); err != nil {
		t.Fatalf("CloseChat: %v", err)
	}
	if fr := readFrame(t, operator); fr.Type != realtime.EnvelopeChatClosed || fr.ChatID != chatID {
		t.Fatalf("operator close frame: got %+v", fr)
	}
	if err := operator.WriteJSON(map[string]any{"message": "one more thing"}); err != nil {
		t.Fatalf("operator write: %v", err)
	}
	if fr := readFrame(t, operator); fr.Type != realtime.EnvelopeError {
		t.Fatalf("operator error frame: got %+v", fr)
	}

	// A fresh chat opened by the same visitor still reaches the operator
	// through the visitor room.
	if err := visitor.WriteJSON(map[string]any{"message": "New question"}); err != nil {
		t.Fatalf("visitor write: %v", err)
	}
	fr := readFrame(t, operator)
	m := fr.chatMessage(t)
	if fr.Type != realtime.EnvelopeChatMessage || m.Message != "New question" || m.ChatID == chatID {
		t.Fatalf("operator fresh chat frame: got %+v", fr)
	}
}

func TestSocketRejectsEmptyVisitorMessage(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	visitor, _, err := dial(t, srv, "/ws/chat/v1?site_id="+f.site.SiteID)
	if err != nil {
		t.Fatalf("dial visitor: %v", err)
	}
	waitMembers(t, f.hub, types.VisitorRoom("v1"), 1)

	for _, body := range []map[string]any{{}, {"message": "   "}} {
		if err := visitor.WriteJSON(body); err != nil {
			t.Fatalf("visitor write: %v", err)
		}
		if fr := readFrame(t, visitor); fr.Type != realtime.EnvelopeError {
			t.Fatalf("empty frame %v: got %+v", body, fr)
		}
	}

	active, err := f.chats.ActiveChatForVisitor(dbctx.Context{Ctx: context.Background()}, f.site.ID, "v1")
	if err != nil {
		t.Fatalf("ActiveChatForVisitor: %v", err)
	}
	if active != nil {
		t.Fatalf("empty frames opened chat %d", active.ID)
	}
}

func TestSocketRefusedBeforeUpgrade(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown chat", "/ws/admin/chat/999999?token=" + f.token, nethttp.StatusNotFound},
		{"no token", "/ws/admin/chat/1", nethttp.StatusUnauthorized},
		{"unknown site", "/ws/chat/v1?site_id=nope", nethttp.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := dial(t, srv, tc.path)
			if !errors.Is(err, websocket.ErrBadHandshake) {
				t.Fatalf("dial: got %v", err)
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Fatalf("status: got %v want %d", resp, tc.status)
			}
		})
	}
}

func TestMalformedFrameClosesOnlyThatSocket(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	bad, _, err := dial(t, srv, "/ws/chat/v1?site_id="+f.site.SiteID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	good, _, err := dial(t, srv, "/ws/chat/v1?site_id="+f.site.SiteID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	room := types.VisitorRoom("v1")
	waitMembers(t, f.hub, room, 2)

	if err := bad.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = bad.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = bad.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Fatalf("malformed frame: want close 1003, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.hub.Members(room)) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("room %s: bad socket still registered", room)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := good.WriteJSON(map[string]any{"message": "still here"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fr := readFrame(t, good); fr.chatMessage(t).Message != "still here" {
		t.Fatalf("good socket: got %+v", fr)
	}
}
