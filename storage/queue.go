package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"modtrack/models"
)

// Queue is the durable offline action queue backed by the gateway's GORM
// connection. Actions are drained by the sync engine in insertion order.
type Queue struct {
	db *gorm.DB
}

// NewQueue wraps a GORM handle.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue persists a pending action and its photo blobs in one transaction.
// A missing action id gets a fresh UUID; the id doubles as the idempotency
// key on the server-side record the action will create.
func (q *Queue) Enqueue(a *models.PendingAction, photos []models.QueuedPhoto) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.ActionPending
	}
	return q.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		for i := range photos {
			photos[i].ActionID = a.ID
			if photos[i].ID == "" {
				photos[i].ID = uuid.NewString()
			}
			if err := tx.Create(&photos[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingActions returns all pending actions in insertion order.
func (q *Queue) PendingActions() ([]models.PendingAction, error) {
	var actions []models.PendingAction
	err := q.db.
		Where("status = ?", models.ActionPending).
		Order("created_at, id").
		Find(&actions).Error
	return actions, err
}

// RetryableActions returns failed actions still under the retry bound, in
// insertion order.
func (q *Queue) RetryableActions(maxRetries int) ([]models.PendingAction, error) {
	var actions []models.PendingAction
	err := q.db.
		Where("status = ? AND retry_count < ?", models.ActionFailed, maxRetries).
		Order("created_at, id").
		Find(&actions).Error
	return actions, err
}

// FailedActions returns every failed action, in insertion order. These feed
// the operator digest and the manual retry/discard affordances.
func (q *Queue) FailedActions() ([]models.PendingAction, error) {
	var actions []models.PendingAction
	err := q.db.
		Where("status = ?", models.ActionFailed).
		Order("created_at, id").
		Find(&actions).Error
	return actions, err
}

// MarkSyncing flags an action as in flight.
func (q *Queue) MarkSyncing(id string) error {
	return q.db.Model(&models.PendingAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.ActionSyncing}).Error
}

// MarkSynced flags an action as applied.
func (q *Queue) MarkSynced(id string) error {
	return q.db.Model(&models.PendingAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.ActionSynced, "last_error": ""}).Error
}

// MarkFailed records the failure message and bumps the attempt counter.
func (q *Queue) MarkFailed(id, lastError string) error {
	return q.db.Model(&models.PendingAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      models.ActionFailed,
			"last_error":  lastError,
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
}

// ResetFailed returns failed actions to pending, resetting the attempt
// window. Used by the manual retry-all affordance.
func (q *Queue) ResetFailed() (int64, error) {
	result := q.db.Model(&models.PendingAction{}).
		Where("status = ?", models.ActionFailed).
		Updates(map[string]interface{}{"status": models.ActionPending, "retry_count": 0})
	return result.RowsAffected, result.Error
}

// DeleteAction discards an action and its photos.
func (q *Queue) DeleteAction(id string) error {
	return q.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("action_id = ?", id).Delete(&models.QueuedPhoto{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.PendingAction{}).Error
	})
}

// CleanupSynced removes synced actions and their uploaded photos. A synced
// action whose photos are still pending upload survives until the photos
// clear, so the next pass can retry just the upload.
func (q *Queue) CleanupSynced() (int64, error) {
	if err := q.db.
		Where("uploaded = true AND action_id IN (SELECT id FROM pending_actions WHERE status = ?)", models.ActionSynced).
		Delete(&models.QueuedPhoto{}).Error; err != nil {
		return 0, err
	}
	result := q.db.
		Where("status = ? AND NOT EXISTS (SELECT 1 FROM queued_photos p WHERE p.action_id = pending_actions.id)", models.ActionSynced).
		Delete(&models.PendingAction{})
	return result.RowsAffected, result.Error
}

// Counts reports the queue size for listeners and the status endpoint.
func (q *Queue) Counts() (pending int64, failed int64, err error) {
	if err = q.db.Model(&models.PendingAction{}).
		Where("status = ?", models.ActionPending).
		Count(&pending).Error; err != nil {
		return 0, 0, err
	}
	err = q.db.Model(&models.PendingAction{}).
		Where("status = ?", models.ActionFailed).
		Count(&failed).Error
	return pending, failed, err
}

// PendingPhotos returns the not-yet-uploaded photos of one action.
func (q *Queue) PendingPhotos(actionID string) ([]models.QueuedPhoto, error) {
	var photos []models.QueuedPhoto
	err := q.db.
		Where("action_id = ? AND uploaded = false", actionID).
		Order("created_at, id").
		Find(&photos).Error
	return photos, err
}

// PendingPhotosOfSynced returns photos that outlived their synced action,
// awaiting an upload retry.
func (q *Queue) PendingPhotosOfSynced() ([]models.QueuedPhoto, error) {
	var photos []models.QueuedPhoto
	err := q.db.
		Joins("JOIN pending_actions a ON a.id = queued_photos.action_id").
		Where("queued_photos.uploaded = false AND a.status = ?", models.ActionSynced).
		Order("queued_photos.created_at, queued_photos.id").
		Find(&photos).Error
	return photos, err
}

// MarkPhotoUploaded stores the public URL so the blob is never re-uploaded.
func (q *Queue) MarkPhotoUploaded(id, publicURL string) error {
	return q.db.Model(&models.QueuedPhoto{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"uploaded": true, "public_url": publicURL}).Error
}

// SetLastSyncAt persists the completion time of the latest sync pass.
func (q *Queue) SetLastSyncAt(t time.Time) error {
	state := models.SyncState{ID: 1, LastSyncAt: &t}
	return q.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_sync_at"}),
	}).Create(&state).Error
}

// LastSyncAt returns the completion time of the latest sync pass, or nil.
func (q *Queue) LastSyncAt() (*time.Time, error) {
	var state models.SyncState
	err := q.db.First(&state, 1).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state.LastSyncAt, nil
}
