package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/meridian-health/platform/internal/access"
	"github.com/meridian-health/platform/internal/adapters/his"
	"github.com/meridian-health/platform/internal/appointment"
	"github.com/meridian-health/platform/internal/audit"
	"github.com/meridian-health/platform/internal/availability"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/notification"
	"github.com/meridian-health/platform/internal/referral"
	"github.com/meridian-health/platform/internal/report"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/config"
	"github.com/meridian-health/platform/internal/shared/database"
	"github.com/meridian-health/platform/internal/shared/events"
	"github.com/meridian-health/platform/internal/shared/lock"
	"github.com/meridian-health/platform/internal/shared/metrics"
	secmiddleware "github.com/meridian-health/platform/internal/shared/middleware"
)

// App holds the long-lived application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
}

func main() {
	ctx := context.Background()

	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not available: %v\n", err)
		os.Exit(1)
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	// Redis backs the per-doctor booking lock. Without it the exclusion
	// constraint still rejects the losing writer, so we degrade instead
	// of refusing to start.
	var locker lock.Locker = lock.NoopLocker{}
	redisClient, err := lock.NewClient(cfg.Redis)
	if err != nil {
		fmt.Printf("Warning: Redis not available, booking lock disabled: %v\n", err)
	} else {
		defer redisClient.Close()
		locker = lock.NewRedisDoctorLocker(redisClient, cfg.Redis.LockTTL)
		fmt.Println("Redis booking lock initialized")
	}

	// KurrentDB backs domain events and the audit trail (optional)
	bus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("Warning: KurrentDB not available, running without event streaming: %v\n", err)
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Println("KurrentDB event bus initialized")
	}

	// Repositories
	dirRepo := directory.NewRepository(db.Pool)
	availRepo := availability.NewRepository(db.Pool)
	apptRepo := appointment.NewRepository(db.Pool)
	refRepo := referral.NewRepository(db.Pool)
	reportRepo := report.NewRepository(db.Pool)

	// Services
	availSvc := availability.NewService(availRepo, dirRepo, apptRepo)
	assigner := appointment.NewAssigner(dirRepo, availSvc, apptRepo, cfg.Booking.SuggestionHorizonDays)

	notifSvc := notification.NewService(cfg.Notification, dirRepo, nil)
	if err := notifSvc.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start notification service: %v\n", err)
		os.Exit(1)
	}
	defer notifSvc.Stop()

	apptSvc := appointment.NewService(apptRepo, dirRepo, assigner, locker, app.Bus, notifSvc)
	engine := access.NewEngine(dirRepo, refRepo, apptRepo)

	// Legacy HIS import (optional)
	if cfg.HIS.Enabled {
		adapter := his.New(cfg.HIS)
		if err := adapter.Start(ctx); err != nil {
			fmt.Printf("Warning: HIS adapter failed to start: %v\n", err)
		} else {
			importer := his.NewImporter(his.NewPgStore(db.Pool))
			importer.Run(ctx, adapter)
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := adapter.Stop(stopCtx); err != nil {
					fmt.Printf("Warning: HIS adapter shutdown: %v\n", err)
				}
			}()
			fmt.Println("HIS import adapter started")
		}
	}

	rateLimiter := secmiddleware.NewIPRateLimiter(100, 200)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(rateLimiter.Middleware)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	authn := auth.Middleware(cfg.Auth)
	perms := auth.DefaultPermissions()

	r.Route("/api/v1", func(r chi.Router) {
		// Slot browsing is reachable without a token; the availability
		// handler applies authn to its management routes itself.
		r.Mount("/availability", availability.NewHandler(availSvc, cfg.Booking.SlotGranularity, perms).Routes(authn))

		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.Mount("/", directory.NewHandler(dirRepo).Routes())
			r.Mount("/appointments", appointment.NewHandler(apptSvc, perms).Routes())

			refHandler := referral.NewHandler(refRepo, dirRepo, app.Bus, perms)
			reportHandler := report.NewHandler(reportRepo, engine, perms)

			// Per-patient surfaces sit behind the department access policy
			r.Route("/patients/{patientID}", func(r chi.Router) {
				r.Use(access.RequirePatientAccess(engine))
				r.Mount("/referrals", refHandler.Routes())
				r.Mount("/reports", reportHandler.PatientRoutes())
			})
			r.Mount("/reports", reportHandler.Routes())

			if app.Bus != nil {
				auditRepo := audit.NewRepository(app.Bus.Client())
				if err := auditRepo.Initialize(ctx); err != nil {
					fmt.Printf("Warning: audit initialization failed: %v\n", err)
				}
				r.Mount("/audit", audit.NewHandler(auditRepo, perms).Routes())

				subscriber := audit.NewSubscriber(auditRepo, app.Bus)
				if err := subscriber.Start(ctx); err != nil {
					fmt.Printf("Warning: audit subscriber failed to start: %v\n", err)
				} else {
					fmt.Println("Audit subscriber started")
				}
			}
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("Meridian Health Scheduling Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:  %s\n", cfg.Server.Env)
	fmt.Printf("Server:       http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:          http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:       http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("KurrentDB:    %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Printf("HIS import:   %v\n", cfg.HIS.Enabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Meridian Health Scheduling Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
