package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/gcbaptista/medlex-spotter/internal/errors"
	"github.com/gcbaptista/medlex-spotter/model"
	"github.com/gcbaptista/medlex-spotter/services"
)

// ScanResponse is the body returned by POST /scan
type ScanResponse struct {
	model.NoteResult
	NoteID *int64  `json:"note_id,omitempty"`
	Took   float64 `json:"took_ms"`
}

// ScanHandler scans one note synchronously.
// Request Body: ScanRequest
func (api *API) ScanHandler(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}

	if result := ValidateScanRequest(&req); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	start := time.Now()
	res := api.scanner.Scan(req.Text)
	took := time.Since(start)
	api.metrics.ObserveNote(res, took)

	c.JSON(http.StatusOK, ScanResponse{
		NoteID:     req.NoteID,
		NoteResult: res,
		Took:       float64(took.Microseconds()) / 1000,
	})
}

// CreateBatchHandler queues a batch of notes for background scanning.
// Request Body: BatchRequest
func (api *API) CreateBatchHandler(c *gin.Context) {
	batchScanner, ok := api.scanner.(services.BatchScanner)
	if !ok {
		SendNotImplementedError(c, "Batch scanning")
		return
	}

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}

	notes, result := ValidateBatchRequest(&req, services.MaxBatchNotes)
	if result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	jobID, err := batchScanner.ScanBatchAsync(notes)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
			return
		}
		SendJobExecutionError(c, "scan batch", err)
		return
	}

	api.logger.Info("batch accepted", zap.String("job_id", jobID), zap.Int("notes", len(notes)))
	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Scan started for " + pluralNotes(len(notes)),
		"job_id":  jobID,
	})
}

func pluralNotes(n int) string {
	if n == 1 {
		return "1 note"
	}
	return strconv.Itoa(n) + " notes"
}
