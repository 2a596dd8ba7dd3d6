package ingest

import (
	"fmt"
	"net/http"
)

// Status is the outcome of a batch.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result summarises a batch. A batch which reached the row loop is ok even if every
// row failed; only retrieval and platform detection failures are errors.
type Result struct {
	Status     Status `json:"status"`
	StatusCode int    `json:"statusCode"`
	BatchID    string `json:"batch_id,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped,omitempty"`
	Message    string `json:"message"`
}

// okResult reports a batch which was processed. The message counts the rows reached,
// out of the total when the batch was interrupted.
func okResult(batchID, platform string, total, succeeded, failed int) Result {
	processed := fmt.Sprintf("Processed %d rows.", total)
	if reached := succeeded + failed; reached < total {
		processed = fmt.Sprintf("Processed %d of %d rows.", reached, total)
	}
	return Result{
		Status:     StatusOK,
		StatusCode: http.StatusOK,
		BatchID:    batchID,
		Platform:   platform,
		Total:      total,
		Succeeded:  succeeded,
		Failed:     failed,
		Skipped:    total - succeeded - failed,
		Message:    fmt.Sprintf("%s Success: %d, Failed: %d", processed, succeeded, failed),
	}
}

// errorResult reports a batch that failed before any row was processed.
func errorResult(batchID string, err error) Result {
	return Result{
		Status:     StatusError,
		StatusCode: http.StatusInternalServerError,
		BatchID:    batchID,
		Message:    err.Error(),
	}
}

// RowResult is the outcome of processing one row. Err is nil for a stored row.
type RowResult struct {
	Row     int
	OrderID string
	Err     error
}
