package main

import (
	"fmt"
	"os"

	"github.com/aulalink/aulalink-backend/internal/data/db"
	repos "github.com/aulalink/aulalink-backend/internal/data/repos/grading"
	"github.com/aulalink/aulalink-backend/internal/http/handlers"
	"github.com/aulalink/aulalink-backend/internal/platform/envutil"
	"github.com/aulalink/aulalink-backend/internal/platform/gcp"
	"github.com/aulalink/aulalink-backend/internal/platform/logger"
	"github.com/aulalink/aulalink-backend/internal/server"
	"github.com/aulalink/aulalink-backend/internal/services"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Database
	databaseService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err := databaseService.AutoMigrateAll(); err != nil {
		log.Fatal("Database auto migration failed", "error", err)
	}
	theDB := databaseService.DB()

	// Repos
	log.Info("Setting up repos...")
	submissionRepo := repos.NewSubmissionRepo(theDB, log)

	// Services
	log.Info("Setting up services...")
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Fatal("Could not init BucketService", "error", err)
	}
	sourceService := services.NewSourceService(log, bucketService)
	annotationService, err := services.NewAnnotationService(theDB, log, bucketService, sourceService, submissionRepo)
	if err != nil {
		log.Fatal("Could not init AnnotationService", "error", err)
	}

	// Handlers + router
	annotationHandler := handlers.NewAnnotationHandler(log, annotationService, submissionRepo)
	router := server.NewRouter(server.RouterConfig{
		AnnotationHandler: annotationHandler,
	})

	port := envutil.Str("PORT", "8080")
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
