package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"modtrack/models"
)

// MaxRetries bounds the automatic attempts per action. Beyond it an action
// stays failed until an operator retries or discards it.
const MaxRetries = 3

// photoUploadConcurrency caps the upload fan-out; floor networks are weak.
const photoUploadConcurrency = 3

// ActionQueue is the durable local queue the sync engine drains.
type ActionQueue interface {
	Enqueue(a *models.PendingAction, photos []models.QueuedPhoto) error
	PendingActions() ([]models.PendingAction, error)
	RetryableActions(maxRetries int) ([]models.PendingAction, error)
	MarkSyncing(id string) error
	MarkSynced(id string) error
	MarkFailed(id, lastError string) error
	ResetFailed() (int64, error)
	DeleteAction(id string) error
	CleanupSynced() (int64, error)
	Counts() (pending int64, failed int64, err error)
	PendingPhotos(actionID string) ([]models.QueuedPhoto, error)
	PendingPhotosOfSynced() ([]models.QueuedPhoto, error)
	MarkPhotoUploaded(id, publicURL string) error
	SetLastSyncAt(t time.Time) error
	LastSyncAt() (*time.Time, error)
}

// RecordStore exposes the same record-creation paths the interactive
// handlers use, so replayed actions resolve identically to online ones.
type RecordStore interface {
	CreateQCRecord(rec *models.QCRecord) (int, error)
	CreateInventoryReceipt(r *models.InventoryReceipt) (int, error)
	ClockIn(e *models.ShiftEntry) (int, error)
	ClockOut(workerID int, at time.Time) error
	AttachPhoto(clientActionID, publicURL string) error
}

// PhotoUploader pushes one photo blob to storage, returning its public URL.
type PhotoUploader interface {
	Upload(ctx context.Context, photo models.QueuedPhoto) (string, error)
}

// ConnectivityProbe reports whether the upstream is reachable right now.
type ConnectivityProbe func() bool

// SyncListener receives aggregate status updates around a sync pass.
type SyncListener func(status models.SyncStatus, counts models.SyncCounts)

// SyncNotifier is pinged (best-effort) when a pass leaves failures behind.
type SyncNotifier interface {
	NotifySyncFailures(ctx context.Context, failed int64) error
}

// SyncService drains the offline action queue through the validated module
// mutation path. One instance per process owns the in-flight guard; there is
// no ambient global state.
type SyncService struct {
	queue    ActionQueue
	modules  *ModuleService
	records  RecordStore
	photos   PhotoUploader
	online   ConnectivityProbe
	notifier SyncNotifier
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	syncing bool

	lmu       sync.Mutex
	listeners map[int]SyncListener
	nextID    int
}

// NewSyncService wires the sync engine. notifier may be nil.
func NewSyncService(queue ActionQueue, modules *ModuleService, records RecordStore, photos PhotoUploader, online ConnectivityProbe, notifier SyncNotifier, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncService{
		queue:     queue,
		modules:   modules,
		records:   records,
		photos:    photos,
		online:    online,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		listeners: map[int]SyncListener{},
	}
}

// AddListener registers a status listener and returns its unsubscribe func.
func (s *SyncService) AddListener(fn SyncListener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *SyncService) notify(status models.SyncStatus, counts models.SyncCounts) {
	s.lmu.Lock()
	fns := make([]SyncListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(status, counts)
	}
}

// Syncing reports whether a pass is currently in flight.
func (s *SyncService) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

func (s *SyncService) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	return true
}

func (s *SyncService) end() {
	s.mu.Lock()
	s.syncing = false
	s.mu.Unlock()
}

// SyncAll runs one sync pass: drain pending actions in queue order, retry
// failed ones still under the bound within the same pass, flush leftover
// photo uploads, clean up, and notify listeners with the aggregate outcome.
// Concurrent triggers coalesce; a pass cannot be cancelled once started.
func (s *SyncService) SyncAll(ctx context.Context) (*models.SyncSummary, error) {
	if s.online != nil && !s.online() {
		return &models.SyncSummary{Skipped: "offline"}, nil
	}
	if !s.tryBegin() {
		return &models.SyncSummary{Skipped: "sync_in_progress"}, nil
	}
	defer s.end()

	if pending, failed, err := s.queue.Counts(); err == nil {
		s.notify(models.SyncStatusSyncing, models.SyncCounts{Pending: pending, Failed: failed})
	}

	summary := &models.SyncSummary{}

	actions, err := s.queue.PendingActions()
	if err != nil {
		return nil, fmt.Errorf("fetch pending actions: %w", err)
	}
	for i := range actions {
		s.runAction(ctx, &actions[i], summary)
	}

	// One extra attempt within the same pass for anything still retryable.
	retries, err := s.queue.RetryableActions(MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("fetch retryable actions: %w", err)
	}
	for i := range retries {
		s.runAction(ctx, &retries[i], summary)
	}

	s.flushLeftoverPhotos(ctx)

	if _, err := s.queue.CleanupSynced(); err != nil {
		s.logger.Printf("[sync] cleanup failed: %v", err)
	}
	if err := s.queue.SetLastSyncAt(s.now()); err != nil {
		s.logger.Printf("[sync] persist last-sync timestamp failed: %v", err)
	}

	pending, failed, err := s.queue.Counts()
	if err != nil {
		return nil, fmt.Errorf("count queue: %w", err)
	}
	counts := models.SyncCounts{Pending: pending, Failed: failed}
	if failed == 0 {
		s.notify(models.SyncStatusComplete, counts)
	} else {
		s.notify(models.SyncStatusError, counts)
		if s.notifier != nil {
			if err := s.notifier.NotifySyncFailures(ctx, failed); err != nil {
				s.logger.Printf("[sync] failure notification failed: %v", err)
			}
		}
	}

	return summary, nil
}

// RetryFailed resets every failed action to pending (a fresh attempt window)
// and runs a pass. This is the operator's manual affordance for actions that
// exhausted their automatic retries.
func (s *SyncService) RetryFailed(ctx context.Context) (int64, *models.SyncSummary, error) {
	n, err := s.queue.ResetFailed()
	if err != nil {
		return 0, nil, fmt.Errorf("reset failed actions: %w", err)
	}
	summary, err := s.SyncAll(ctx)
	return n, summary, err
}

func (s *SyncService) runAction(ctx context.Context, action *models.PendingAction, summary *models.SyncSummary) {
	summary.Processed++
	if err := s.processAction(ctx, action); err != nil {
		summary.Failed++
		summary.Errors = append(summary.Errors, models.ActionError{ActionID: action.ID, Message: err.Error()})
		return
	}
	summary.Synced++
	// A same-pass retry that succeeds supersedes its earlier failure.
	if summary.Failed > summary.Processed-summary.Synced {
		summary.Failed = summary.Processed - summary.Synced
	}
}

// processAction marks the entry syncing, dispatches by action type, and
// records the outcome. Handler errors are retained on the row, never
// discarded.
func (s *SyncService) processAction(ctx context.Context, action *models.PendingAction) error {
	if err := s.queue.MarkSyncing(action.ID); err != nil {
		return fmt.Errorf("mark syncing: %w", err)
	}

	result, err := s.dispatch(ctx, action)
	if err != nil {
		if markErr := s.queue.MarkFailed(action.ID, err.Error()); markErr != nil {
			s.logger.Printf("[sync] mark action %s failed: %v", action.ID, markErr)
		}
		return err
	}

	if err := s.queue.MarkSynced(action.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if result.PhotosFailed > 0 {
		s.logger.Printf("[sync] action %s synced with %d photo(s) still queued", action.ID, result.PhotosFailed)
	}
	return nil
}

// dispatch is the exhaustive match over action types. An unknown type is an
// error, not a silently dropped default.
func (s *SyncService) dispatch(ctx context.Context, action *models.PendingAction) (models.SyncResult, error) {
	switch action.ActionType {
	case models.ActionQCSubmit:
		return s.handleQCSubmit(ctx, action)
	case models.ActionStationMove:
		return s.handleStationMove(ctx, action)
	case models.ActionInventoryReceive:
		return s.handleInventoryReceive(ctx, action)
	case models.ActionClockIn:
		return s.handleClockIn(ctx, action)
	case models.ActionClockOut:
		return s.handleClockOut(ctx, action)
	default:
		return models.SyncResult{}, fmt.Errorf("unhandled action type %q", action.ActionType)
	}
}

// handleQCSubmit uploads the action's photos (best-effort) and creates the
// inspection record through the same path the online handler uses. A photo
// failure leaves the blob queued for the next pass but never fails the
// record.
func (s *SyncService) handleQCSubmit(ctx context.Context, action *models.PendingAction) (models.SyncResult, error) {
	var payload models.QCSubmitPayload
	if err := action.DecodePayload(&payload); err != nil {
		return models.SyncResult{}, err
	}

	uploaded, failed, urls := s.uploadActionPhotos(ctx, action.ID)

	status := models.QCPassed
	if !payload.Passed {
		status = models.QCFailed
	}
	_, err := s.records.CreateQCRecord(&models.QCRecord{
		ModuleID:         payload.ModuleID,
		StationID:        payload.StationID,
		InspectorID:      payload.InspectorID,
		Status:           status,
		Passed:           payload.Passed,
		ChecklistResults: payload.ChecklistResults,
		DefectsFound:     payload.DefectsFound,
		ReworkRequired:   payload.ReworkRequired,
		PhotoURLs:        pq.StringArray(append(payload.PhotoURLs, urls...)),
		ClientActionID:   action.ID,
	})
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("create QC record: %w", err)
	}

	return models.SyncResult{RecordCreated: true, PhotosUploaded: uploaded, PhotosFailed: failed}, nil
}

// handleStationMove replays the move through the validated state machine.
// A module already sitting at the target station means an earlier delivery
// of this action landed and the ack was lost; re-applying would duplicate
// the assignment and reset the status, so that replay resolves as a synced
// no-op.
func (s *SyncService) handleStationMove(ctx context.Context, action *models.PendingAction) (models.SyncResult, error) {
	var payload models.StationMovePayload
	if err := action.DecodePayload(&payload); err != nil {
		return models.SyncResult{}, err
	}

	module, err := s.modules.store.GetModule(payload.ModuleID)
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("fetch module %d: %w", payload.ModuleID, err)
	}
	if module.CurrentStationID != nil && *module.CurrentStationID == payload.StationID {
		return models.SyncResult{}, nil
	}

	res, err := s.modules.MoveModuleToStation(payload.ModuleID, payload.StationID, payload.LeadID, payload.CrewIDs, MoveOptions{
		IsRework: payload.IsRework,
	})
	if err != nil {
		return models.SyncResult{}, err
	}
	if !res.Valid {
		return models.SyncResult{}, fmt.Errorf("move rejected: %s (%s)", res.Message, res.Code)
	}
	return models.SyncResult{RecordCreated: true}, nil
}

func (s *SyncService) handleInventoryReceive(ctx context.Context, action *models.PendingAction) (models.SyncResult, error) {
	var payload models.InventoryReceivePayload
	if err := action.DecodePayload(&payload); err != nil {
		return models.SyncResult{}, err
	}

	_, err := s.records.CreateInventoryReceipt(&models.InventoryReceipt{
		FactoryID:      payload.FactoryID,
		ItemCode:       payload.ItemCode,
		Quantity:       payload.Quantity,
		ReceivedBy:     payload.ReceivedBy,
		ClientActionID: action.ID,
	})
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("create receipt: %w", err)
	}
	return models.SyncResult{RecordCreated: true}, nil
}

func (s *SyncService) handleClockIn(ctx context.Context, action *models.PendingAction) (models.SyncResult, error) {
	var payload models.ClockInPayload
	if err := action.DecodePayload(&payload); err != nil {
		return models.SyncResult{}, err
	}

	_, err := s.records.ClockIn(&models.ShiftEntry{
		WorkerID:       payload.WorkerID,
		StationID:      payload.StationID,
		ClockIn:        payload.At,
		ClientActionID: action.ID,
	})
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("clock in: %w", err)
	}
	return models.SyncResult{RecordCreated: true}, nil
}

func (s *SyncService) handleClockOut(ctx context.Context, action *models.PendingAction) (models.SyncResult, error) {
	var payload models.ClockOutPayload
	if err := action.DecodePayload(&payload); err != nil {
		return models.SyncResult{}, err
	}

	if err := s.records.ClockOut(payload.WorkerID, payload.At); err != nil {
		return models.SyncResult{}, fmt.Errorf("clock out: %w", err)
	}
	return models.SyncResult{RecordCreated: true}, nil
}

// uploadActionPhotos pushes the pending photos of one action in bounded
// parallel chunks, marking each success so retries never re-upload.
func (s *SyncService) uploadActionPhotos(ctx context.Context, actionID string) (uploaded, failed int, urls []string) {
	photos, err := s.queue.PendingPhotos(actionID)
	if err != nil {
		s.logger.Printf("[sync] fetch photos for action %s: %v", actionID, err)
		return 0, 0, nil
	}
	if len(photos) == 0 {
		return 0, 0, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(photoUploadConcurrency)
	for i := range photos {
		photo := photos[i]
		g.Go(func() error {
			url, err := s.photos.Upload(gctx, photo)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Attachments are best-effort: the blob stays queued.
				s.logger.Printf("[sync] upload photo %s: %v", photo.ID, err)
				failed++
				return nil
			}
			if err := s.queue.MarkPhotoUploaded(photo.ID, url); err != nil {
				s.logger.Printf("[sync] mark photo %s uploaded: %v", photo.ID, err)
				failed++
				return nil
			}
			uploaded++
			urls = append(urls, url)
			return nil
		})
	}
	_ = g.Wait()
	return uploaded, failed, urls
}

// flushLeftoverPhotos retries uploads that outlived their synced action,
// appending each recovered URL to the record the action created.
func (s *SyncService) flushLeftoverPhotos(ctx context.Context) {
	photos, err := s.queue.PendingPhotosOfSynced()
	if err != nil {
		s.logger.Printf("[sync] fetch leftover photos: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(photoUploadConcurrency)
	for i := range photos {
		photo := photos[i]
		g.Go(func() error {
			url, err := s.photos.Upload(gctx, photo)
			if err != nil {
				s.logger.Printf("[sync] retry upload photo %s: %v", photo.ID, err)
				return nil
			}
			if err := s.records.AttachPhoto(photo.ActionID, url); err != nil {
				s.logger.Printf("[sync] attach photo %s to record: %v", photo.ID, err)
				return nil
			}
			if err := s.queue.MarkPhotoUploaded(photo.ID, url); err != nil {
				s.logger.Printf("[sync] mark photo %s uploaded: %v", photo.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Status summarizes the queue for the status endpoint.
func (s *SyncService) Status() (*models.SyncStatusResponse, error) {
	pending, failed, err := s.queue.Counts()
	if err != nil {
		return nil, err
	}
	resp := &models.SyncStatusResponse{
		Counts:  models.SyncCounts{Pending: pending, Failed: failed},
		Syncing: s.Syncing(),
	}
	if last, err := s.queue.LastSyncAt(); err == nil && last != nil {
		formatted := last.Format(time.RFC3339)
		resp.LastSyncAt = &formatted
	}
	return resp, nil
}
