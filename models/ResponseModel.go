package models

// ErrorResponse is the generic error envelope returned by handlers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageResponse is the generic success envelope returned by handlers.
type MessageResponse struct {
	Message string `json:"message"`
}

// ValidationFailureResponse is returned when an operation is rejected by the
// validation engine rather than by an infrastructure failure.
type ValidationFailureResponse struct {
	Error      string            `json:"error"`
	Validation *ValidationResult `json:"validation"`
}

// EnqueueResponse acknowledges a queued offline action.
type EnqueueResponse struct {
	ActionID     string `json:"action_id"`
	PhotosQueued int    `json:"photos_queued"`
}

// SyncStatusResponse is the body of GET /api/sync/status.
type SyncStatusResponse struct {
	Counts     SyncCounts `json:"counts"`
	LastSyncAt *string    `json:"last_sync_at,omitempty"`
	Syncing    bool       `json:"syncing"`
}
