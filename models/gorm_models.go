package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// GORM-managed queue tables. The offline action queue and photo blobs live on
// the gateway's own database, separate from the authoritative business tables.

// ActionType tags a pending action with its payload variant.
type ActionType string

const (
	ActionQCSubmit         ActionType = "qc_submit"
	ActionStationMove      ActionType = "station_move"
	ActionInventoryReceive ActionType = "inventory_receive"
	ActionClockIn          ActionType = "clock_in"
	ActionClockOut         ActionType = "clock_out"
)

// ActionStatus is the local sync state of a queued action.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSyncing ActionStatus = "syncing"
	ActionSynced  ActionStatus = "synced"
	ActionFailed  ActionStatus = "failed"
)

// PendingAction is a deferred mutation captured while offline. The id is a
// client-generated UUID and doubles as the idempotency key persisted on the
// server-side record it eventually creates.
type PendingAction struct {
	ID         string       `gorm:"primaryKey;column:id" json:"id"`
	DeviceID   string       `gorm:"column:device_id" json:"device_id"`
	ActionType ActionType   `gorm:"column:action_type;not null" json:"action_type"`
	Payload    string       `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status     ActionStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	RetryCount int          `gorm:"column:retry_count;default:0" json:"retry_count"`
	LastError  string       `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName specifies the table name for PendingAction
func (PendingAction) TableName() string {
	return "pending_actions"
}

// DecodePayload unmarshals the action payload into dst.
func (a *PendingAction) DecodePayload(dst interface{}) error {
	if err := json.Unmarshal([]byte(a.Payload), dst); err != nil {
		return fmt.Errorf("decode %s payload for action %s: %w", a.ActionType, a.ID, err)
	}
	return nil
}

// QueuedPhoto is a locally captured image awaiting upload, tied to a pending
// action. Deleted once its action is synced and the upload succeeded.
type QueuedPhoto struct {
	ID          string    `gorm:"primaryKey;column:id" json:"id"`
	ActionID    string    `gorm:"column:action_id;index;not null" json:"action_id"`
	FileName    string    `gorm:"column:file_name;not null" json:"file_name"`
	ContentType string    `gorm:"column:content_type" json:"content_type"`
	Data        []byte    `gorm:"column:data;type:bytea" json:"-"`
	Uploaded    bool      `gorm:"column:uploaded;default:false" json:"uploaded"`
	PublicURL   string    `gorm:"column:public_url" json:"public_url,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName specifies the table name for QueuedPhoto
func (QueuedPhoto) TableName() string {
	return "queued_photos"
}

// SyncState is a single-row table carrying the last successful sync pass time.
type SyncState struct {
	ID         int        `gorm:"primaryKey;column:id" json:"id"`
	LastSyncAt *time.Time `gorm:"column:last_sync_at" json:"last_sync_at,omitempty"`
}

// TableName specifies the table name for SyncState
func (SyncState) TableName() string {
	return "sync_state"
}

// Typed payloads, one per ActionType.

type QCSubmitPayload struct {
	ModuleID         int      `json:"module_id"`
	StationID        int      `json:"station_id"`
	InspectorID      int      `json:"inspector_id"`
	Passed           bool     `json:"passed"`
	ChecklistResults string   `json:"checklist_results,omitempty"`
	DefectsFound     string   `json:"defects_found,omitempty"`
	ReworkRequired   bool     `json:"rework_required"`
	PhotoURLs        []string `json:"photo_urls,omitempty"`
}

type StationMovePayload struct {
	ModuleID  int   `json:"module_id"`
	StationID int   `json:"station_id"`
	LeadID    *int  `json:"lead_id,omitempty"`
	CrewIDs   []int `json:"crew_ids,omitempty"`
	IsRework  bool  `json:"is_rework"`
}

type InventoryReceivePayload struct {
	FactoryID  int     `json:"factory_id"`
	ItemCode   string  `json:"item_code"`
	Quantity   float64 `json:"quantity"`
	ReceivedBy int     `json:"received_by"`
}

type ClockInPayload struct {
	WorkerID  int       `json:"worker_id"`
	StationID *int      `json:"station_id,omitempty"`
	At        time.Time `json:"at"`
}

type ClockOutPayload struct {
	WorkerID int       `json:"worker_id"`
	At       time.Time `json:"at"`
}

// SyncStatus is the aggregate state reported to listeners.
type SyncStatus string

const (
	SyncStatusSyncing  SyncStatus = "syncing"
	SyncStatusComplete SyncStatus = "complete"
	SyncStatusError    SyncStatus = "error"
)

// SyncCounts summarizes the queue for listeners and the status endpoint.
type SyncCounts struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}

// SyncResult makes degraded success explicit: the record may be created even
// when some of its photo attachments are still waiting for a retry.
type SyncResult struct {
	RecordCreated  bool `json:"record_created"`
	PhotosUploaded int  `json:"photos_uploaded"`
	PhotosFailed   int  `json:"photos_failed"`
}

// ActionError is one failed action inside a sync pass.
type ActionError struct {
	ActionID string `json:"action_id"`
	Message  string `json:"message"`
}

// SyncSummary is the outcome of one sync pass. Skipped is set (with the
// reason) when the pass did not run at all.
type SyncSummary struct {
	Skipped   string        `json:"skipped,omitempty"`
	Processed int           `json:"processed"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Errors    []ActionError `json:"errors,omitempty"`
}
