// @title           ModTrack API
// @version         1.0
// @description     Factory production tracking backend for modular building manufacturing.

// @contact.name   API Support

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @schemes http https
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "modtrack/docs"
	"modtrack/handlers"
	"modtrack/services"
	"modtrack/storage"
)

func CORSConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"http://localhost:9000",
		"http://localhost:8080",
		"http://localhost:3000",
	}
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, origin)
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Content-Type", "Content-Length", "Accept-Encoding", "X-XSRF-TOKEN",
		"Accept", "Origin", "X-Requested-With", "Authorization", "User-Agent",
		"Cache-Control", "Referer",
	}
	corsConfig.AllowMethods = []string{
		"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD", "PATCH",
	}
	corsConfig.ExposeHeaders = []string{
		"Content-Length", "Authorization", "Content-Type", "X-Total-Count",
	}
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}

func main() {
	db := storage.InitDB()
	gormDB := storage.InitGormDB()

	store := storage.NewStore(db)
	queue := storage.NewQueue(gormDB)

	validator := services.NewValidationService(store)
	moduleService := services.NewModuleService(store, validator)

	credentialsPath := os.Getenv("FCM_CREDENTIALS_PATH")
	if credentialsPath == "" {
		credentialsPath = "firebase-credentials.json"
	}
	fcmService, err := services.NewFCMService(credentialsPath, db)
	if err != nil {
		log.Printf("Warning: Failed to initialize FCM service: %v. Push notifications will be disabled.", err)
		fcmService = nil
	} else {
		log.Println("FCM service initialized successfully")
	}

	emailService := services.NewEmailService(db)

	uploader, err := services.NewHTTPPhotoUploader()
	if err != nil {
		log.Fatalf("Failed to initialize photo uploader: %v", err)
	}

	// The monitor's probe feeds the sync engine; the sync engine is the
	// monitor's online callback. Wire the monitor first, then close the loop.
	var syncService *services.SyncService
	monitor := services.NewConnectivityMonitor(30*time.Second, func() {
		if syncService == nil {
			return
		}
		if _, err := syncService.SyncAll(context.Background()); err != nil {
			log.Printf("Reconnect sync failed: %v", err)
		}
	}, nil)

	var notifier services.SyncNotifier
	if fcmService != nil {
		notifier = fcmService
	}
	syncService = services.NewSyncService(queue, moduleService, store, uploader, monitor.Online, notifier, nil)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitor.Start(monitorCtx)

	// Periodic drain keeps the queue small even when nothing triggers a pass.
	c := cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))),
	)
	_, err = c.AddFunc("@every 5m", func() {
		summary, err := syncService.SyncAll(context.Background())
		if err != nil {
			log.Printf("Scheduled sync failed: %v", err)
			return
		}
		if summary.Skipped == "" && summary.Processed > 0 {
			log.Printf("Scheduled sync: %d processed, %d synced, %d failed",
				summary.Processed, summary.Synced, summary.Failed)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule sync cron job: %v", err)
	}
	c.Start()

	r := gin.Default()
	r.MaxMultipartMemory = 8 << 20

	r.Use(cors.New(CORSConfig()))

	// ==================== 1. AUTH ====================
	r.POST("/api/login", handlers.Login(db))
	r.POST("/api/validate-session", handlers.ValidateSession(db))

	// ==================== 2. MODULES ====================
	r.GET("/api/module/:module_id", handlers.GetModule(db, store))
	r.GET("/api/module/:module_id/qr", handlers.GetModuleQRLabel(db, store))
	r.GET("/api/project/:project_id/modules", handlers.GetProjectModules(db, store))
	r.POST("/api/project/:project_id/modules", handlers.CreateProjectModules(db, store))
	r.PUT("/api/module/:module_id/status", handlers.UpdateModuleStatus(db, moduleService))
	r.POST("/api/module/:module_id/move", handlers.MoveModuleToStation(db, moduleService))

	// ==================== 3. QC ====================
	r.POST("/api/module/:module_id/qc", handlers.SubmitQCRecord(db, store, moduleService, fcmService))
	r.GET("/api/module/:module_id/qc", handlers.GetModuleQCRecords(db, store))
	r.PUT("/api/qc/:record_id/rework-complete", handlers.CompleteRework(db, store))

	// ==================== 4. STATIONS ====================
	r.GET("/api/factory/:factory_id/stations", handlers.GetFactoryStations(db, store))
	r.POST("/api/stations", handlers.CreateStation(db, store))
	r.PUT("/api/stations/:station_id", handlers.UpdateStation(db, store))

	// ==================== 5. SYNC ====================
	r.POST("/api/sync/actions", handlers.EnqueueAction(db, queue))
	r.DELETE("/api/sync/actions/:action_id", handlers.DiscardAction(db, queue))
	r.POST("/api/sync/run", handlers.RunSync(db, syncService))
	r.POST("/api/sync/retry", handlers.RetryFailedActions(db, syncService))
	r.GET("/api/sync/status", handlers.GetSyncStatus(db, syncService))
	r.POST("/api/sync/digest", handlers.EmailFailureDigest(db, queue, emailService))

	// ==================== 6. SHIFTS & INVENTORY ====================
	r.POST("/api/shifts/clock-in", handlers.ClockIn(db, store))
	r.POST("/api/shifts/clock-out", handlers.ClockOut(db, store))
	r.POST("/api/inventory/receipts", handlers.ReceiveInventory(db, store))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	portInt, err := strconv.Atoi(port)
	if err != nil {
		log.Fatalf("Invalid PORT environment variable: %s. Must be a number.", port)
	}
	if portInt < 0 || portInt > 65535 {
		log.Fatalf("Invalid PORT: %d. Must be between 0 and 65535.", portInt)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopMonitor()
	cronCtx := c.Stop()
	<-cronCtx.Done()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exiting")
}
