package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gcbaptista/medlex-spotter/internal/logging"
	"github.com/gcbaptista/medlex-spotter/internal/metrics"
	"github.com/gcbaptista/medlex-spotter/services"
)

const serviceName = "medlex-spotter"

// API holds dependencies for API handlers, primarily the scanner.
type API struct {
	scanner services.Scanner
	metrics *metrics.Metrics
	logger  *zap.Logger
	started time.Time
}

// NewAPI creates a new API handler structure. m and logger may be nil.
func NewAPI(scanner services.Scanner, m *metrics.Metrics, logger *zap.Logger) *API {
	return &API{
		scanner: scanner,
		metrics: m,
		logger:  logging.OrNop(logger),
		started: time.Now(),
	}
}

// SetupRoutes installs the middleware chain and every route on router.
// Batch and job routes answer 501 unless scanner is a services.BatchScanner.
func SetupRoutes(router *gin.Engine, scanner services.Scanner, m *metrics.Metrics, logger *zap.Logger) {
	apiHandler := NewAPI(scanner, m, logger)

	router.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(apiHandler.logger, m),
		CORSMiddleware(),
		RequestSizeLimitMiddleware(DefaultMaxBodyBytes),
	)

	// Health check route
	router.GET("/health", apiHandler.HealthCheckHandler)

	// Prometheus exposition
	if reg := m.Registry(); reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	// Vocabulary and scanning routes
	router.GET("/targets", apiHandler.ListTargetsHandler)
	router.POST("/scan", apiHandler.ScanHandler)
	router.POST("/batches", apiHandler.CreateBatchHandler)

	// Job management routes
	jobRoutes := router.Group("/jobs")
	{
		jobRoutes.GET("", apiHandler.ListJobsHandler)                     // List jobs, optionally by status
		jobRoutes.GET("/metrics", apiHandler.GetJobMetricsHandler)        // Get job performance metrics
		jobRoutes.GET("/:jobId", apiHandler.GetJobHandler)                // Get job status by ID
		jobRoutes.GET("/:jobId/results", apiHandler.GetJobResultsHandler) // Get rows of a completed job
		jobRoutes.POST("/:jobId/cancel", apiHandler.CancelJobHandler)     // Cancel a pending or running job
	}
}

// HealthCheckHandler provides a simple health check endpoint
func (api *API) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        serviceName,
		"targets":        len(api.scanner.Canonicals()),
		"uptime_seconds": int64(time.Since(api.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// ListTargetsHandler lists the configured canonicals and their flag keys
func (api *API) ListTargetsHandler(c *gin.Context) {
	canonicals := api.scanner.Canonicals()
	c.JSON(http.StatusOK, gin.H{
		"canonicals": canonicals,
		"flag_keys":  api.scanner.FlagKeys(),
		"total":      len(canonicals),
	})
}
