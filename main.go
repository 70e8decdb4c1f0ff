package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/helrift/gate/api/rest"
	apiws "github.com/helrift/gate/api/ws"
	"github.com/helrift/gate/audit"
	"github.com/helrift/gate/cache"
	"github.com/helrift/gate/config"
	dbadapter "github.com/helrift/gate/db"
	"github.com/helrift/gate/gate/conn"
	"github.com/helrift/gate/gate/event"
	"github.com/helrift/gate/gate/friends"
	"github.com/helrift/gate/gate/notify"
	"github.com/helrift/gate/gate/party"
	"github.com/helrift/gate/gate/presence"
	"github.com/helrift/gate/gate/realm"
	mw "github.com/helrift/gate/middleware"
	"github.com/helrift/gate/model"
	"github.com/helrift/gate/scheduler"
	"github.com/helrift/gate/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.GameServerKey == "" {
		logger.Warn("security.game_server_key is not set; game servers cannot connect")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")
	st := store.NewGormStore(db)

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Core ----
	bus := event.NewBus(logger)
	defer bus.Close()

	registry := conn.NewRegistry(logger)
	dir := presence.NewDirectory(bus, logger)
	fanout := notify.NewFanout(dir, registry, logger)

	realmSvc := realm.NewService(cfg.Realm.MaxPlayers, fanout, logger)
	realmSvc.Start(bus, dir)

	friendSvc := friends.NewService(st, dir, fanout, logger)
	partySvc := party.NewCoordinator(friendSvc, bus, logger)
	splitter := party.NewSplitter(partySvc, dir, fanout,
		cfg.Experience.ShareRange, cfg.Experience.RemainderToEarner, logger)

	// Transition subscribers. Order is not significant; each gets its own
	// goroutine and buffer.
	notify.SubscribePartyState(bus, fanout)
	notify.SubscribeFriendPresence(bus, fanout, friendSvc, logger)
	notify.SubscribePartyCleanup(bus, partySvc, logger)

	chatRelay := notify.NewChatRelay(pubsub, fanout, logger)
	if err := chatRelay.Start(context.Background()); err != nil {
		log.Fatalf("chat relay: %v", err)
	}
	defer chatRelay.Stop()

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("realm_state_heartbeat", cfg.Realm.StateBroadcastTick, realmSvc.BroadcastState)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(st, c, realmSvc, cfg.Security)
	presenceH := apirest.NewPresenceHandler(dir)
	partyH := apirest.NewPartyHandler(partySvc, st)
	friendsH := apirest.NewFriendsHandler(friendSvc)
	realmH := apirest.NewRealmHandler(realmSvc, auditSvc, sched)
	chatH := apirest.NewChatHandler(chatRelay)
	xpH := apirest.NewXPHandler(splitter)
	adminH := apirest.NewAdminHandler(registry, dir, realmSvc, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		api.GET("/realm/state", realmH.State)

		authed := api.Group("")
		authed.Use(mw.Auth(cfg.Security, c))
		authed.GET("/presence/online", presenceH.Online)

		partyG := authed.Group("/party")
		partyG.POST("", partyH.Create)
		partyG.GET("", partyH.Mine)
		partyG.GET("/list", partyH.List)
		partyG.POST("/join", partyH.Join)
		partyG.POST("/leave", partyH.Leave)
		partyG.POST("/kick", partyH.Kick)
		partyG.POST("/leader", partyH.SetLeader)

		friendsG := authed.Group("/friends")
		friendsG.GET("", friendsH.Snapshot)
		friendsG.POST("/request", friendsH.SendRequest)
		friendsG.POST("/accept", friendsH.Accept)
		friendsG.POST("/reject", friendsH.Reject)
		friendsG.POST("/cancel", friendsH.Cancel)
		friendsG.DELETE("/:id", friendsH.Delete)

		// Game-server ingest routes, shared-secret protected.
		gsG := api.Group("/gs")
		gsG.Use(mw.ServerKey(cfg.Security.GameServerKey))
		gsG.POST("/presence/register", presenceH.Register)
		gsG.POST("/presence/unregister", presenceH.Unregister)
		gsG.POST("/presence/fullsync", presenceH.FullSync)
		gsG.POST("/xp/batch", xpH.Batch)
		gsG.POST("/chat/broadcast", chatH.Broadcast)
		gsG.POST("/chat/whisper", chatH.Whisper)

		adminG := api.Group("/admin")
		if len(cfg.Security.AdminIPWhitelist) > 0 {
			adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPWhitelist))
		}
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/servers", adminH.ListServers)
		adminG.POST("/servers/:id/drop", adminH.DropServer)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/realm/operations", realmH.Operations)
		adminG.POST("/realm/shutdown", realmH.ScheduleShutdown)
		adminG.POST("/realm/maintenance", realmH.EnableMaintenance)
		adminG.POST("/realm/clear", realmH.ClearOperations)
	}

	// ---- Game-server WebSocket ----
	gw := apiws.NewGateway(registry, dir, realmSvc, cfg.Security, logger)
	r.GET("/ws/gameservers", gw.Serve)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Gate listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
