package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/auth"
	"github.com/matchpoint/server/internal/config"
	"github.com/matchpoint/server/internal/database"
	"github.com/matchpoint/server/internal/handlers"
	"github.com/matchpoint/server/internal/logging"
	"github.com/matchpoint/server/internal/middleware"
	"github.com/matchpoint/server/internal/models"
	"github.com/matchpoint/server/internal/realtime"
	"github.com/matchpoint/server/internal/room"
	"github.com/matchpoint/server/internal/services"
	"github.com/matchpoint/server/internal/session"
	"github.com/matchpoint/server/internal/ws"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	// Initialize logger
	logger := logging.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Debug {
		logger.SetLevel(logging.LevelDebug)
		logging.SetDefaultLevel(logging.LevelDebug)
	}

	logger.Info("Starting Matchpoint server...")

	// Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), "migrations")
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	// Connect to Redis
	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	// Root context cancels when a shutdown signal arrives; every room and
	// session actor hangs off it.
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services
	dbAdapter := services.NewPoolAdapter(db.Pool)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.HandshakeGrace)

	presence := realtime.NewRedisPresence(redisDB.Client)
	registry := realtime.NewRegistry(presence, logger)

	notificationService := services.NewNotificationService(dbAdapter, registry)
	inviteLimiter := services.NewRedisRateLimiter(redisDB.Client, cfg.Invite.RateLimit, cfg.Invite.RateWindow, "invite_create")
	inviteService := services.NewInviteService(dbAdapter, notificationService, inviteLimiter, cfg.Invite.Expiry)
	friendService := services.NewFriendService(dbAdapter)
	matchService := services.NewMatchService(dbAdapter, &bracketLogger{logger: logger})

	// Game sessions
	sessions := session.NewManager(rootCtx, session.Config{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
	}, matchService, func(gameID uuid.UUID, roomCode, reason string) {
		logger.Info("Session closed", map[string]interface{}{
			"game_id":   gameID.String(),
			"room_code": roomCode,
			"reason":    reason,
		})
	}, logger)

	// Handing off a full, ready room creates the match record and the live
	// session, then points both lobby sockets at the game socket URL.
	handoff := room.HandoffFunc(func(ctx context.Context, code string, p1, p2 room.Player) (room.HandoffResult, error) {
		match, err := matchService.Create(ctx, code, p1.ID, p2.ID)
		if err != nil {
			return room.HandoffResult{}, fmt.Errorf("creating match: %w", err)
		}
		s := sessions.Create(code, match.ID, sessionPlayer(p1), sessionPlayer(p2))
		return room.HandoffResult{
			GameID:       s.GameID(),
			WebsocketURL: cfg.Server.PublicWSURL + "/ws/games/" + s.GameID().String(),
		}, nil
	})

	// Lobby rooms
	var hub *room.Hub
	hub = room.NewHub(func(code string) *room.Room {
		var rm *room.Room
		hooks := room.Hooks{
			OnPlayerLeft: func(code string, leaver, remaining room.Player) {
				// Hooks run on the room goroutine; do the DB write elsewhere.
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_, _, err := notificationService.Notify(ctx, remaining.ID, &leaver.ID,
						models.NotificationTypePlayerLeftRoom,
						map[string]string{"roomCode": code, "username": leaver.Username})
					if err != nil {
						logger.Error("Failed to notify remaining player", map[string]interface{}{
							"room_code": code,
							"error":     err.Error(),
						})
					}
				}()
			},
			OnClosed: func(code, reason string) {
				go func() {
					hub.Remove(code, rm)
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := inviteService.RemoveByRoomCode(ctx, code); err != nil {
						logger.Error("Failed to clear invitations for closed room", map[string]interface{}{
							"room_code": code,
							"error":     err.Error(),
						})
					}
				}()
			},
		}
		rm = room.New(rootCtx, code, room.Config{
			ReadyTimeout:     cfg.Room.ReadyTimeout,
			CountdownSeconds: cfg.Room.CountdownSeconds,
			AbandonedAge:     cfg.Room.AbandonedAge,
		}, handoff, hooks, logger)
		return rm
	}, logger)
	hub.StartSweeper(rootCtx, cfg.Room.CleanupInterval)

	// Background sweeps for expired invitations and stale notifications
	go runSweeps(rootCtx, inviteService, notificationService, logger)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisDB)
	friendHandler := handlers.NewFriendHandler(friendService, presence)
	inviteHandler := handlers.NewInviteHandler(inviteService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	matchHandler := handlers.NewMatchHandler(matchService)
	statsHandler := handlers.NewStatsHandler(hub, sessions)
	internalHandler := handlers.NewInternalHandler(cfg.Server.InternalToken, inviteService, hub)

	notificationsWS := ws.NewNotificationsHandler(verifier, registry, cfg.Auth.HandshakeGrace, logger)
	lobbyWS := ws.NewLobbyHandler(verifier, hub, inviteService, logger)
	gameWS := ws.NewGameHandler(verifier, sessions, logger)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(verifier)
	securityHeaders := middleware.NewSecurityHeaders(cfg.Server.Environment == "production")
	compress := middleware.NewCompress()
	requestLogger := middleware.NewRequestLogger(logger)
	apiLimiter := middleware.NewAPIRateLimiter(redisDB.Client)

	requireAuth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuth(h)
	}

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /health/ready", healthHandler.Ready)
	mux.HandleFunc("GET /health/live", healthHandler.Live)

	mux.Handle("GET /api/users/search", requireAuth(friendHandler.Search))
	mux.Handle("POST /api/users/{id}/invite", requireAuth(inviteHandler.Create))

	mux.Handle("GET /api/friends", requireAuth(friendHandler.List))
	mux.Handle("DELETE /api/friends/{id}", requireAuth(friendHandler.RemoveFriend))
	mux.Handle("GET /api/friends/requests", requireAuth(friendHandler.ListRequests))
	mux.Handle("POST /api/friends/requests", requireAuth(friendHandler.SendRequest))
	mux.Handle("POST /api/friends/requests/{id}/accept", requireAuth(friendHandler.AcceptRequest))
	mux.Handle("POST /api/friends/requests/{id}/reject", requireAuth(friendHandler.RejectRequest))

	mux.Handle("POST /api/invitations/{id}/accept", requireAuth(inviteHandler.Accept))
	mux.Handle("POST /api/invitations/{id}/decline", requireAuth(inviteHandler.Decline))

	mux.Handle("GET /api/notifications", requireAuth(notificationHandler.List))
	mux.Handle("POST /api/notifications/{id}/read", requireAuth(notificationHandler.MarkRead))
	mux.Handle("POST /api/notifications/read-all", requireAuth(notificationHandler.MarkAllRead))

	mux.Handle("GET /api/matches", requireAuth(matchHandler.List))
	mux.Handle("GET /api/matches/{id}", requireAuth(matchHandler.Get))
	mux.Handle("POST /api/matches/{id}/forfeit", requireAuth(matchHandler.Forfeit))
	mux.Handle("POST /api/matches/{id}/interrupt", requireAuth(matchHandler.Interrupt))
	mux.Handle("POST /api/tournaments/{id}/matches", requireAuth(matchHandler.LinkTournament))

	mux.Handle("GET /api/stats", requireAuth(statsHandler.Stats))

	// Server-to-server: authenticated by shared token, not user JWT
	mux.HandleFunc("POST /internal/rooms/{code}/closed", internalHandler.RoomClosed)

	// Websockets authenticate via ?token=, not the Authorization header
	mux.Handle("GET /ws/notifications", notificationsWS)
	mux.Handle("GET /ws/rooms/{code}", lobbyWS)
	mux.Handle("GET /ws/games/{id}", gameWS)

	// Build middleware chain (order matters: outermost first)
	var handler http.Handler = mux
	handler = authMiddleware.Authenticate(handler)
	handler = apiLimiter.Middleware(handler)
	handler = compress.Apply(handler)
	handler = securityHeaders.Apply(handler)
	handler = requestLogger.Apply(handler)

	// No global read/write timeouts: lobby and game sockets are long-lived.
	// The websocket handlers enforce their own per-message deadlines.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	go func() {
		<-rootCtx.Done()
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}

		hub.Shutdown()
		sessions.Shutdown()
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

func sessionPlayer(p room.Player) session.Player {
	return session.Player{
		ID:       p.ID,
		Username: p.Username,
		Slot:     session.Slot(p.Slot),
	}
}

// runSweeps ages out expired invitations and old read notifications until
// ctx is cancelled.
func runSweeps(ctx context.Context, invites *services.InviteService, notifications *services.NotificationService, logger *logging.Logger) {
	inviteTicker := time.NewTicker(time.Minute)
	defer inviteTicker.Stop()
	notificationTicker := time.NewTicker(time.Hour)
	defer notificationTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-inviteTicker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			removed, err := invites.ExpireSweep(sweepCtx)
			cancel()
			if err != nil {
				logger.Error("Invitation sweep failed", map[string]interface{}{"error": err.Error()})
			} else if removed > 0 {
				logger.Debug("Swept expired invitations", map[string]interface{}{"removed": removed})
			}
		case <-notificationTicker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			removed, err := notifications.CleanupOld(sweepCtx, 30*24*time.Hour)
			cancel()
			if err != nil {
				logger.Error("Notification cleanup failed", map[string]interface{}{"error": err.Error()})
			} else if removed > 0 {
				logger.Debug("Cleaned up old notifications", map[string]interface{}{"removed": removed})
			}
		}
	}
}

// bracketLogger records tournament interrupt reports in the log. The durable
// exactly-once marker lives in the tournament_matches row; an external
// bracket coordinator can consume it from there.
type bracketLogger struct {
	logger *logging.Logger
}

func (b *bracketLogger) ReportInterrupt(ctx context.Context, tournamentID, matchID uuid.UUID, reason string) error {
	b.logger.Warn("Tournament match interrupted", map[string]interface{}{
		"tournament_id": tournamentID.String(),
		"match_id":      matchID.String(),
		"reason":        reason,
	})
	return nil
}
