package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/trackchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/trackchat-backend/internal/http/middleware"
	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	// Operator dashboard origins; the widget routes accept any origin.
	CORSOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware
	TrackLimiter   *httpMW.RateLimiter

	HealthHandler   *httpH.HealthHandler
	TrackingHandler *httpH.TrackingHandler
	PresenceHandler *httpH.PresenceHandler
	ChatHandler     *httpH.ChatHandler
	SocketHandler   *httpH.SocketHandler
	WebsiteHandler  *httpH.WebsiteHandler
	PeopleHandler   *httpH.PeopleHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("trackchat-http"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Observe(cfg.Log, cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Widget (public)
	public := r.Group("/")
	public.Use(httpMW.PublicCORS())
	{
		if cfg.TrackingHandler != nil {
			track := []gin.HandlerFunc{}
			if cfg.TrackLimiter != nil {
				track = append(track, httpMW.RateLimit(cfg.TrackLimiter))
			}
			track = append(track, cfg.TrackingHandler.Track)
			public.POST("/api/track", track...)
			public.OPTIONS("/api/track", preflight)
		}
		if cfg.ChatHandler != nil {
			public.GET("/api/chat/:site_id/:visitor_id", cfg.ChatHandler.VisitorChat)
			public.POST("/api/chat", cfg.ChatHandler.VisitorStart)
			public.OPTIONS("/api/chat", preflight)
			public.OPTIONS("/api/chat/:site_id/:visitor_id", preflight)
		}
		if cfg.SocketHandler != nil {
			public.GET("/ws/chat/:visitor_id", cfg.SocketHandler.Visitor)
		}
	}

	// Operator dashboard
	admin := r.Group("/api/admin")
	admin.Use(httpMW.CORS(cfg.CORSOrigins))
	admin.OPTIONS("/*path", preflight)
	if cfg.AuthMiddleware != nil {
		admin.Use(cfg.AuthMiddleware.RequireOperator())
	}
	{
		if cfg.WebsiteHandler != nil {
			admin.GET("/websites", cfg.WebsiteHandler.List)
			admin.POST("/websites", cfg.WebsiteHandler.Create)
			admin.DELETE("/websites/:id", cfg.WebsiteHandler.Delete)
		}

		if cfg.PresenceHandler != nil {
			admin.GET("/presence/online", cfg.PresenceHandler.ListOnline)
			admin.GET("/presence/:visitor_id", cfg.PresenceHandler.VisitorStatus)
		}

		if cfg.ChatHandler != nil {
			admin.GET("/chats", cfg.ChatHandler.List)
			admin.POST("/chats", cfg.ChatHandler.Start)
			admin.GET("/chats/:id", cfg.ChatHandler.Get)
			admin.POST("/chats/:id/messages", cfg.ChatHandler.PostMessage)
			admin.POST("/chats/:id/close", cfg.ChatHandler.Close)
			admin.POST("/chats/:id/read", cfg.ChatHandler.MarkRead)
			admin.DELETE("/chats/:id", cfg.ChatHandler.Delete)
		}

		if cfg.TrackingHandler != nil {
			admin.GET("/visitors/:visitor_id/activities", cfg.TrackingHandler.VisitorActivities)
		}

		if cfg.PeopleHandler != nil {
			admin.GET("/people", cfg.PeopleHandler.List)
			admin.GET("/people/:id", cfg.PeopleHandler.Get)
			admin.GET("/people/:id/activities", cfg.PeopleHandler.Activities)
		}
	}

	if cfg.SocketHandler != nil {
		ws := r.Group("/ws/admin")
		if cfg.AuthMiddleware != nil {
			ws.Use(cfg.AuthMiddleware.RequireOperator())
		}
		ws.GET("/chat/:chat_id", cfg.SocketHandler.Operator)
	}

	return r
}

// preflight gives OPTIONS requests a route so the CORS middleware runs; it
// answers them before this is reached.
func preflight(c *gin.Context) {}
