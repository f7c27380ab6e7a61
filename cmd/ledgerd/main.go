package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashupal86/GraminStore/config"
	"github.com/ashupal86/GraminStore/internal/api"
	"github.com/ashupal86/GraminStore/internal/channel"
	"github.com/ashupal86/GraminStore/internal/models"
	"github.com/ashupal86/GraminStore/internal/remote"
	"github.com/ashupal86/GraminStore/internal/store"
	syncpkg "github.com/ashupal86/GraminStore/internal/sync"
	"github.com/ashupal86/GraminStore/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ledger daemon")

	tp, err := util.InitTracer("ledgerd", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	ledger, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open ledger store: %v", err)
	}
	defer ledger.Close()
	log.Println("Ledger store opened")

	remoteClient := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token)

	monitor := syncpkg.NewMonitor(remoteClient, cfg.Sync.ProbeInterval)
	coordinator := syncpkg.NewCoordinator(ledger, remoteClient, monitor, cfg.Store.MerchantID, cfg.Sync.Interval)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	monitor.Start(runCtx)
	coordinator.Start(runCtx)

	channelClient := channel.NewClient(wsBaseURL(cfg.Remote.BaseURL), cfg.Channel.ReconnectBase, cfg.Channel.MaxReconnects)

	// A push from another device means the authority has state we don't;
	// re-sync rather than trusting the payload.
	channelClient.Subscribe(models.MessageTypeNewOrder, func(env models.Envelope) {
		logger.Info("New order notification received")
		go coordinator.ForceSync(runCtx)
	})

	// Any inbound channel traffic proves the authority is reachable, so feed
	// it to the monitor ahead of the next probe tick.
	channelClient.Subscribe(models.MessageTypeWildcard, func(models.Envelope) {
		monitor.SetOnline(true)
	})

	if cfg.Remote.Token != "" {
		channelClient.Connect(cfg.Remote.Token)
	}
	defer channelClient.Disconnect()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-pingTicker.C:
				channelClient.Ping()
			}
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(ledger, coordinator, channelClient, cfg.Store.MerchantID)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	coordinator.Stop()
	monitor.Stop()
	runCancel()

	log.Println("Ledger daemon exited")
}

// wsBaseURL derives the websocket endpoint from the REST base URL
func wsBaseURL(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}
