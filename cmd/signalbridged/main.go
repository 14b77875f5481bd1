// Command signalbridged runs the rendezvous signaling broker over
// HTTP/WebSocket, alongside the ambient health, info, and metrics
// endpoints.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dropwire/signalbridge/internal/config"
	"github.com/dropwire/signalbridge/internal/health"
	"github.com/dropwire/signalbridge/internal/logging"
	"github.com/dropwire/signalbridge/internal/middleware"
	"github.com/dropwire/signalbridge/internal/signaling"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	envPaths := []string{".env", "../../.env", "../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		println("signalbridged: " + err.Error())
		os.Exit(1)
	}

	if logErr := logging.Initialize(cfg.GoEnv != "production"); logErr != nil {
		panic(logErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := signaling.NewBroker(cfg.RoomExpiry, cfg.HeartbeatPeriod)
	broker.Run(ctx)
	defer broker.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	healthHandler := health.NewHandler(broker, cfg, version, localNetworkIP(), false)
	router.GET("/health", healthHandler.Health)
	router.GET("/api/info", healthHandler.Info)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", broker.ServeWS)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "signalbridged starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(context.Background(), "forced shutdown", zap.Error(err))
	}
}

// localNetworkIP best-effort discovers a non-loopback local address
// for the /api/info surface.
func localNetworkIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
