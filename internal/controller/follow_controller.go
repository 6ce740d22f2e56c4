package controller

import (
	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/internal/pkg/serverutils"
	internalWS "aprs-friend-alert/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IFollowController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	Live(ctx *fiber.Ctx) error
}

type SnapshotProvider interface {
	Snapshot() follow.Snapshot
}

// Health flags reported by /api/health.
type HealthProbe struct {
	PositionSource func() bool
	Routing        func() bool
}

type HealthReport struct {
	Status         string `json:"status"`
	Following      bool   `json:"following"`
	PositionSource bool   `json:"position_source"`
	Routing        bool   `json:"routing"`
	Viewers        int    `json:"viewers"`
}

type followController struct {
	session SnapshotProvider
	hub     *internalWS.Hub
	probe   HealthProbe
	key     string
	logger  logger.ILogger
}

func NewFollowController(session SnapshotProvider, hub *internalWS.Hub, probe HealthProbe, setupKey string, log logger.ILogger) IFollowController {
	return &followController{session: session, hub: hub, probe: probe, key: setupKey, logger: log}
}

func (c *followController) RegisterRoutes(r fiber.Router) {
	guard := serverutils.KeyMiddleware(c.key)

	r.Get("/api/health", c.Health)
	r.Get("/api/follow/status", guard, c.Status)
	r.Get("/ws/live", guard, c.Live)
}

func (c *followController) Health(ctx *fiber.Ctx) error {
	report := HealthReport{
		Status:    "ok",
		Following: c.session.Snapshot().Active,
	}
	if c.probe.PositionSource != nil {
		report.PositionSource = c.probe.PositionSource()
	}
	if c.probe.Routing != nil {
		report.Routing = c.probe.Routing()
	}
	if c.hub != nil {
		report.Viewers = c.hub.ClientCount()
	}
	return ctx.JSON(report)
}

func (c *followController) Status(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Follow status", c.session.Snapshot()))
}

func (c *followController) Live(ctx *fiber.Ctx) error {
	if c.hub == nil || !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Debug("FOLLOW_CONTROLLER", "Live viewer attached", map[string]interface{}{"remote": conn.RemoteAddr().String()})
		internalWS.ServeWs(c.hub, conn)
	})(ctx)
}
