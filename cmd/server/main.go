package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-ledger/internal/ai"
	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/customers"
	"go-pos-ledger/internal/database"
	"go-pos-ledger/internal/handlers"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/logger"
	"go-pos-ledger/internal/lookup"
	"go-pos-ledger/internal/metrics"
	"go-pos-ledger/internal/middleware"
	"go-pos-ledger/internal/reports"
	"go-pos-ledger/internal/sales"
	"go-pos-ledger/internal/seed"
	"go-pos-ledger/internal/vision"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const uploadDir = "./uploads"

func main() {
	cfg, err := config.Load("pos-ledger")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Server.Env, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		zlog.Fatal("database error", zap.Error(err))
	}
	zlog.Info("database connected", zap.String("driver", cfg.DB.Driver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.ServiceName, reg)

	stock := ledger.NewStockLedger(db)
	credit := ledger.NewCreditLedger(db)
	cat := catalog.New(db, stock, cfg.Catalog, zlog.Named("catalog"))
	cust := customers.NewService(db, credit, m, zlog.Named("customers"))
	rep := reports.NewService(db, zlog.Named("reports"))

	if cfg.DB.SeedDemoData {
		if err := seed.Run(context.Background(), db, cat, cust, zlog.Named("seed")); err != nil {
			zlog.Fatal("seed error", zap.Error(err))
		}
	}

	// the camera lookup is optional; without a sidecar URL the scan screen
	// falls back to manual entry
	var detector vision.Detector
	if cfg.Vision.URL != "" {
		detector = vision.NewClient(cfg.Vision.URL, cfg.Vision.Timeout, zlog.Named("vision"))
	} else {
		zlog.Warn("VISION_SERVICE_URL not set, camera lookup disabled")
	}
	if cfg.AI.APIKey == "" {
		zlog.Warn("GEMINI_API_KEY not set, assistant disabled")
	}

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		zlog.Fatal("create upload dir", zap.Error(err))
	}

	h := &handlers.Handler{
		Catalog:   cat,
		Lookup:    lookup.New(cat, detector, cfg.Vision, m, zlog.Named("lookup")),
		Sales:     sales.NewService(db, cat, stock, credit, m, zlog.Named("sales")),
		Customers: cust,
		Reports:   rep,
		Assistant: ai.NewAgent(cfg.AI, &ai.Tools{Catalog: cat, Reports: rep, Customers: cust, Location: time.Local}, zlog.Named("ai")),
		BaseURL:   cfg.Server.BaseURL,
		UploadDir: uploadDir,
		Location:  time.Local,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(logger.Middleware(zlog))
	r.Use(m.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		status, code := "online", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "database unreachable", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "service": cfg.ServiceName})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.Static("/uploads", uploadDir)

	h.Register(r)

	// React build: static assets plus index.html for client-side routes
	r.Static("/assets", "./web/assets")
	r.StaticFile("/vite.svg", "./web/vite.svg")
	r.NoRoute(func(c *gin.Context) {
		c.File("./web/index.html")
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", server.Addr), zap.String("base_url", cfg.Server.BaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed to start", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	zlog.Info("server stopped")
}
