package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/medlex-spotter/internal/jobs"
	"github.com/gcbaptista/medlex-spotter/model"
	"github.com/gcbaptista/medlex-spotter/services"
)

// jobMetricsProvider is implemented by scanners that run background jobs
type jobMetricsProvider interface {
	GetJobMetrics() jobs.JobMetricsData
	GetJobSuccessRate() float64
	GetCurrentWorkload() int64
}

// jobManager returns the scanner as a job manager, or answers 501
func (api *API) jobManager(c *gin.Context) (services.BatchScanner, bool) {
	batchScanner, ok := api.scanner.(services.BatchScanner)
	if !ok {
		SendNotImplementedError(c, "Job management")
	}
	return batchScanner, ok
}

// validJobID reads and validates the :jobId parameter
func validJobID(c *gin.Context) (string, bool) {
	jobID := c.Param("jobId")
	if result := ValidateJobID(jobID); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return "", false
	}
	return jobID, true
}

// GetJobHandler handles requests to get job status by ID
func (api *API) GetJobHandler(c *gin.Context) {
	jm, ok := api.jobManager(c)
	if !ok {
		return
	}
	jobID, ok := validJobID(c)
	if !ok {
		return
	}

	job, err := jm.GetJob(jobID)
	if err != nil {
		SendJobError(c, jobID, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetJobResultsHandler returns the rows of a completed batch, sorted by note_id
func (api *API) GetJobResultsHandler(c *gin.Context) {
	jm, ok := api.jobManager(c)
	if !ok {
		return
	}
	jobID, ok := validJobID(c)
	if !ok {
		return
	}

	rows, err := jm.GetJobResults(jobID)
	if err != nil {
		SendJobError(c, jobID, err)
		return
	}
	if rows == nil {
		rows = []model.Row{}
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":    jobID,
		"flag_keys": jm.FlagKeys(),
		"results":   rows,
		"total":     len(rows),
	})
}

// CancelJobHandler asks a pending or running job to stop
func (api *API) CancelJobHandler(c *gin.Context) {
	jm, ok := api.jobManager(c)
	if !ok {
		return
	}
	jobID, ok := validJobID(c)
	if !ok {
		return
	}

	if err := jm.CancelJob(jobID); err != nil {
		if _, lookupErr := jm.GetJob(jobID); lookupErr != nil {
			SendJobError(c, jobID, lookupErr)
			return
		}
		SendError(c, http.StatusConflict, ErrorCodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "cancelling",
		"message": "Cancellation requested for job '" + jobID + "'",
		"job_id":  jobID,
	})
}

// ListJobsHandler handles requests to list jobs
func (api *API) ListJobsHandler(c *gin.Context) {
	jm, ok := api.jobManager(c)
	if !ok {
		return
	}

	statusFilter, result := ValidateJobStatus(c.Query("status"))
	if result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	jobList := jm.ListJobs(statusFilter)
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobList,
		"total": len(jobList),
	})
}

// GetJobMetricsHandler handles requests to get job performance metrics
func (api *API) GetJobMetricsHandler(c *gin.Context) {
	provider, ok := api.scanner.(jobMetricsProvider)
	if !ok {
		SendNotImplementedError(c, "Job metrics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics":          provider.GetJobMetrics(),
		"success_rate":     provider.GetJobSuccessRate(),
		"current_workload": provider.GetCurrentWorkload(),
	})
}
