// Package health implements the auxiliary /health and /api/info
// endpoints, reporting broker gauges in place of downstream dependency
// checks.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dropwire/signalbridge/internal/config"
)

// RoomCounter is satisfied by *signaling.Broker. Defined here rather
// than imported to keep this package free of a signaling dependency.
type RoomCounter interface {
	RoomCount() int
	ConnectionCount() int
}

// Handler serves /health and /api/info.
type Handler struct {
	broker    RoomCounter
	cfg       *config.Config
	startedAt time.Time
	version   string
	https     bool
	networkIP string
}

// NewHandler builds a Handler reporting on broker and cfg.
func NewHandler(broker RoomCounter, cfg *config.Config, version, networkIP string, https bool) *Handler {
	return &Handler{
		broker:    broker,
		cfg:       cfg,
		startedAt: time.Now(),
		version:   version,
		https:     https,
		networkIP: networkIP,
	}
}

// healthResponse matches GET /health's documented shape.
type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Rooms:       h.broker.RoomCount(),
		Connections: h.broker.ConnectionCount(),
		Uptime:      time.Since(h.startedAt).String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// infoResponse matches GET /api/info's documented shape.
type infoResponse struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
	HTTPS       bool   `json:"https"`
	RoomExpiry  string `json:"room_expiry"`
	MaxRoomSize int    `json:"max_room_size"`
	NetworkIP   string `json:"network_ip"`
	Port        string `json:"port"`
}

// Info handles GET /api/info.
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, infoResponse{
		Version:     h.version,
		Environment: h.cfg.GoEnv,
		HTTPS:       h.https,
		RoomExpiry:  h.cfg.RoomExpiry.String(),
		MaxRoomSize: 2,
		NetworkIP:   h.networkIP,
		Port:        h.cfg.Port,
	})
}
