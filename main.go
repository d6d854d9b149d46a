/*
 * file: main.go
 * package: main
 * description:
 *     Initializes the application by loading configuration, opening the
 *     database and event store, wiring the actor runtime (GameServer
 *     registry + its Rooms), and launching the HTTP/WebSocket server.
 */
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pokerroom/server/internal/actor"
	"github.com/pokerroom/server/internal/adapters/db"
	"github.com/pokerroom/server/internal/adapters/handlers"
	"github.com/pokerroom/server/internal/config"
	"github.com/pokerroom/server/internal/core/gameserver"
	"github.com/pokerroom/server/internal/core/messages"
	"github.com/pokerroom/server/internal/core/room"
	"github.com/pokerroom/server/internal/infra/eventstore"
	"github.com/pokerroom/server/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		panic("config: " + err.Error())
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		panic("telemetry: " + err.Error())
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	logger.Info("database connection pool established")

	store := eventstore.New(dbConn, cfg.PostgresDSN)
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatal("event store migration failed", zap.Error(err))
	}
	cancelMigrate()
	logger.Info("event store schema up to date")

	gs := gameserver.New(store, logger, gameserver.Config{
		MailboxCapacity:     cfg.GameServerMailboxCapacity,
		RoomMailboxCapacity: cfg.RoomMailboxCapacity,
		SendTimeout:         cfg.SendTimeout,
		Room: room.Config{
			IdleGrace:   cfg.IdleRoomGrace,
			SendTimeout: cfg.SendTimeout,
		},
	})
	gsAddr, gsStopper := actor.Run[messages.GameServerMessage](gs, actor.Options{
		MailboxCapacity: cfg.GameServerMailboxCapacity,
		Logger:          logger,
	})
	defer gsStopper.Stop()

	wsHandler := handlers.NewWebSocketHandler(gsAddr, logger, cfg.PingPeriod, cfg.SendTimeout, cfg.PlayerMailboxCapacity)
	roomHandler := handlers.NewRoomHandler(gsAddr, logger, cfg.SendTimeout)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.HandleFunc("/api/rooms", roomHandler.Create)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("HTTP server starting", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
