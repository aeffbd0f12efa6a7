// Package app assembles the web front: backend client, snapshot cache, live
// views, push channels and the gin router.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"glazestudio/internal/config"
	"glazestudio/internal/domain"
	"glazestudio/internal/middleware"
	"glazestudio/internal/modules/admin"
	"glazestudio/internal/modules/agenda"
	"glazestudio/internal/modules/auth"
	"glazestudio/internal/modules/booking"
	"glazestudio/internal/pkg/calendar"
	"glazestudio/internal/pkg/jwt"
	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/realtime"
	"glazestudio/internal/slotapi"
	"glazestudio/internal/snapshot"
	"glazestudio/internal/views"
)

// LivePath is where browser tabs subscribe to change notifications.
const LivePath = "/ws/live"

type App struct {
	Engine   *gin.Engine
	Cache    *snapshot.Cache
	Live     *views.Live
	Browsers *realtime.Hub
	Channel  *realtime.Channel
	Flows    *booking.Registry

	tabs *refreshGate
	log  *zap.Logger
}

// New wires every component. ledger may be nil, which disables replay
// detection for slot creation.
func New(cfg *config.Config, client *slotapi.Client, ledger admin.Ledger, l *zap.Logger) (*App, error) {
	log := logger.OrNop(l)

	loc, err := cfg.Calendar.Zone()
	if err != nil {
		return nil, errors.Wrap(err, "calendar time zone")
	}
	endpoint, err := realtime.EndpointFromOrigin(cfg.Backend.Origin, cfg.Backend.WSPort)
	if err != nil {
		return nil, errors.Wrap(err, "push endpoint")
	}

	a := &App{log: log}
	a.Cache = snapshot.New(client, snapshot.WithLogger(log.Named("cache")))
	a.Browsers = realtime.NewHub(log.Named("browsers"), cfg.CORS.AllowOrigins...)
	a.tabs = newRefreshGate(a.Browsers, cfg.Live.NewBookingHold)

	// agenda subscribes last, so both views are fresh when tabs are told
	a.Live = views.NewLive(a.Cache, func(v views.View, s *domain.Snapshot) {
		if v == views.ViewAgenda {
			a.tabs.Refresh()
		}
	})

	a.Channel = realtime.NewChannel(endpoint,
		realtime.WithReconnectDelay(cfg.Backend.ReconnectDelay),
		realtime.WithChannelLogger(log.Named("push")),
	)
	a.Channel.Subscribe(realtime.TypeRefresh, func(ctx context.Context, _ realtime.Message) {
		a.Cache.Trigger(ctx)
	})
	a.Channel.Subscribe(realtime.TypeNewBooking, func(ctx context.Context, msg realtime.Message) {
		a.tabs.NewBooking(msg)
		a.Cache.Trigger(ctx)
	})

	links := calendar.NewBuilder(calendar.Event{
		Title:    cfg.Calendar.Title,
		Details:  cfg.Calendar.Details,
		Location: cfg.Calendar.Location,
	}, loc)
	a.Flows = booking.NewRegistry(func() *booking.Flow {
		return booking.NewFlow(client, links,
			booking.WithFlowLogger(log.Named("booking")),
			booking.WithOnConfirmed(func(ctx context.Context, _ booking.Pending) {
				a.Cache.Trigger(ctx)
			}),
		)
	}, booking.DefaultIdleTTL)

	tmpl, err := views.Templates()
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(middleware.CORS(cfg.CORS.AllowOrigins))
	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", views.Static())

	r.GET(LivePath, gin.WrapH(a.Browsers))
	r.GET("/healthz", a.health)

	sessions := jwt.New(cfg.Session.Secret, cfg.Session.TTL)
	requireSession := middleware.RequireSession(sessions)
	loginLimit := middleware.NewRateLimiter(cfg.HTTP.LoginRatePerMinute, log.Named("ratelimit"))

	authHandler := auth.NewHandler(auth.NewService(client, sessions, log.Named("auth")), cfg.Session.CookieSecure)
	bookingHandler := booking.NewHandler(a.Flows, client, loc, log.Named("booking"))
	adminHandler := admin.NewHandler(admin.NewService(client, ledger, a.Cache, log.Named("admin")), a.Live, a.Cache)
	agendaHandler := agenda.NewHandler(a.Live, a.Cache)

	authHandler.RegisterRoutes(r, loginLimit.Limit())
	bookingHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r.Group("/admin", requireSession))
	agendaHandler.RegisterRoutes(r.Group("/agenda", requireSession))

	api := r.Group("/api", requireSession)
	adminHandler.RegisterAPIRoutes(api.Group("/admin"))
	agendaHandler.RegisterAPIRoutes(api)

	a.Engine = r
	return a, nil
}

// Run keeps the push channel and the flow sweeper going until ctx ends.
func (a *App) Run(ctx context.Context) error {
	// prime the views so the first page load does not wait on the backend
	a.Cache.Trigger(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Channel.Run(ctx) })
	g.Go(func() error { return a.Flows.Run(ctx) })
	return g.Wait()
}

func (a *App) Close() {
	a.Live.Close()
	a.tabs.Close()
	a.Browsers.CloseAll()
}

func (a *App) health(c *gin.Context) {
	var last string
	if s := a.Cache.Current(); s != nil {
		last = s.FetchedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"push":          a.Channel.State().String(),
		"browsers":      a.Browsers.Count(),
		"booking_flows": a.Flows.Len(),
		"snapshot_at":   last,
	})
}
