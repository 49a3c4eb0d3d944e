// Package api provides validation utilities for API request handling.
package api

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gcbaptista/medlex-spotter/model"
)

// MaxNoteBytes bounds the text of a single note
const MaxNoteBytes = 1 << 20

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ScanRequest is the body of POST /scan
type ScanRequest struct {
	NoteID *int64 `json:"note_id,omitempty"`
	Text   string `json:"text"`
}

// BatchNote is one note of a POST /batches body
type BatchNote struct {
	NoteID *int64 `json:"note_id"`
	Text   string `json:"text"`
}

// BatchRequest is the body of POST /batches
type BatchRequest struct {
	Notes []BatchNote `json:"notes"`
}

// ValidateScanRequest validates a single-note scan
func ValidateScanRequest(req *ScanRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(req.Text) > MaxNoteBytes {
		result.AddError("text", fmt.Sprintf("Text cannot exceed %d bytes", MaxNoteBytes))
	}

	return result
}

// ValidateBatchRequest validates a batch and converts it to notes
func ValidateBatchRequest(req *BatchRequest, maxNotes int) ([]model.Note, *ValidationResult) {
	result := &ValidationResult{Valid: true}

	if len(req.Notes) == 0 {
		result.AddError("notes", "At least one note is required")
		return nil, result
	}
	if maxNotes > 0 && len(req.Notes) > maxNotes {
		result.AddError("notes", fmt.Sprintf("At most %d notes per batch, got %d", maxNotes, len(req.Notes)))
		return nil, result
	}

	notes := make([]model.Note, 0, len(req.Notes))
	for i, n := range req.Notes {
		field := fmt.Sprintf("notes[%d]", i)
		if n.NoteID == nil {
			result.AddError(field+".note_id", "note_id is required")
			continue
		}
		if len(n.Text) > MaxNoteBytes {
			result.AddError(field+".text", fmt.Sprintf("Text cannot exceed %d bytes", MaxNoteBytes))
			continue
		}
		notes = append(notes, model.Note{NoteID: *n.NoteID, Text: n.Text})
	}

	if result.HasErrors() {
		return nil, result
	}
	return notes, result
}

// ValidateJobID validates a job ID path parameter
func ValidateJobID(jobID string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if strings.TrimSpace(jobID) == "" {
		result.AddError("jobId", "Job ID is required")
		return result
	}

	if _, err := uuid.Parse(jobID); err != nil {
		result.AddError("jobId", "Job ID must be a UUID")
	}

	return result
}

// ValidateJobStatus validates an optional ?status= filter
func ValidateJobStatus(raw string) (*model.JobStatus, *ValidationResult) {
	result := &ValidationResult{Valid: true}
	if raw == "" {
		return nil, result
	}

	status := model.JobStatus(raw)
	switch status {
	case model.JobStatusPending, model.JobStatusRunning, model.JobStatusCompleted,
		model.JobStatusFailed, model.JobStatusCancelling, model.JobStatusCancelled:
		return &status, result
	}
	result.AddError("status", "Unknown job status '"+raw+"'")
	return nil, result
}
