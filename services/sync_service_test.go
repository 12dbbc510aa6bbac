package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modtrack/models"
)

func encodePayload(t *testing.T, payload interface{}) string {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(data)
}

func syncFixture(t *testing.T) (*fakeStore, *fakeQueue, *fakeUploader, *SyncService) {
	t.Helper()
	store := progressionFixture()
	store.modules[1] = &models.Module{
		ID:               1,
		SerialNumber:     "MOD/TST/0001",
		FactoryID:        1,
		Status:           models.StatusInQueue,
		CurrentStationID: intPtr(1),
	}
	queue := newFakeQueue()
	uploader := &fakeUploader{}
	modules := NewModuleService(store, NewValidationService(store))
	svc := NewSyncService(queue, modules, store, uploader, func() bool { return true }, nil, nil)
	return store, queue, uploader, svc
}

func enqueueQC(t *testing.T, queue *fakeQueue, id string, photoCount int) {
	t.Helper()
	payload := models.QCSubmitPayload{ModuleID: 1, StationID: 1, InspectorID: 7, Passed: true}
	action := &models.PendingAction{
		ID:         id,
		DeviceID:   "tablet-3",
		ActionType: models.ActionQCSubmit,
		Payload:    encodePayload(t, payload),
	}
	var photos []models.QueuedPhoto
	for i := 0; i < photoCount; i++ {
		photos = append(photos, models.QueuedPhoto{
			FileName:    "shot.jpg",
			ContentType: "image/jpeg",
			Data:        []byte{0xff, 0xd8},
		})
	}
	require.NoError(t, queue.Enqueue(action, photos))
}

func TestSyncAllDrainsQCActionWithPhotos(t *testing.T) {
	store, queue, uploader, svc := syncFixture(t)
	enqueueQC(t, queue, "qc-1", 2)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, 0, summary.Failed)

	require.Len(t, store.qcRecords, 1)
	rec := store.qcRecords[0]
	assert.Equal(t, "qc-1", rec.ClientActionID)
	assert.True(t, rec.Passed)
	assert.Len(t, rec.PhotoURLs, 2)
	assert.Equal(t, 2, uploader.count())

	// the synced action and its uploaded photos are cleaned up
	pending, failed, err := queue.Counts()
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Zero(t, failed)
	assert.Empty(t, queue.status("qc-1"))

	last, err := queue.LastSyncAt()
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestSyncAllOfflineIsANoOp(t *testing.T) {
	_, queue, _, _ := syncFixture(t)
	enqueueQC(t, queue, "qc-1", 0)

	store := progressionFixture()
	modules := NewModuleService(store, NewValidationService(store))
	svc := NewSyncService(queue, modules, store, &fakeUploader{}, func() bool { return false }, nil, nil)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "offline", summary.Skipped)
	assert.Equal(t, models.ActionStatus(models.ActionPending), queue.status("qc-1"))
}

func TestSyncAllCoalescesConcurrentTriggers(t *testing.T) {
	_, queue, uploader, svc := syncFixture(t)
	enqueueQC(t, queue, "qc-1", 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	uploader.fn = func(photo models.QueuedPhoto) (string, error) {
		once.Do(func() { close(entered) })
		<-release
		return "https://media.example.com/" + photo.FileName, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstSummary *models.SyncSummary
	go func() {
		defer wg.Done()
		firstSummary, _ = svc.SyncAll(context.Background())
	}()

	<-entered
	assert.True(t, svc.Syncing())

	second, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sync_in_progress", second.Skipped)

	close(release)
	wg.Wait()
	require.NotNil(t, firstSummary)
	assert.Equal(t, 1, firstSummary.Synced)
	assert.False(t, svc.Syncing())
}

func TestSyncAllRetriesWithinBoundThenStopsTrying(t *testing.T) {
	store, queue, _, svc := syncFixture(t)
	store.createErr = errors.New("records table unavailable")
	enqueueQC(t, queue, "qc-1", 0)

	// pass 1: initial attempt plus the same-pass retry
	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, models.ActionFailed, queue.status("qc-1"))
	assert.Equal(t, 2, queue.retryCount("qc-1"))

	// pass 2: one more attempt hits the bound
	_, err = svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, queue.retryCount("qc-1"))

	// pass 3: the exhausted action is left alone
	summary, err = svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, models.ActionFailed, queue.status("qc-1"))
}

func TestRetryFailedResetsTheWindow(t *testing.T) {
	store, queue, _, svc := syncFixture(t)
	store.createErr = errors.New("records table unavailable")
	enqueueQC(t, queue, "qc-1", 0)

	_, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	_, err = svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, queue.retryCount("qc-1"))

	// operator fixes the cause, then retries
	store.mu.Lock()
	store.createErr = nil
	store.mu.Unlock()

	reset, summary, err := svc.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)
	assert.Equal(t, 1, summary.Synced)
	require.Len(t, store.qcRecords, 1)
}

func TestSyncAllRecoversPhotosOfSyncedActions(t *testing.T) {
	store, queue, uploader, svc := syncFixture(t)
	enqueueQC(t, queue, "qc-1", 1)

	// every upload fails in the first pass; the record is still created
	uploader.fn = func(photo models.QueuedPhoto) (string, error) {
		return "", errors.New("media store unreachable")
	}

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Synced)
	require.Len(t, store.qcRecords, 1)
	assert.Empty(t, store.qcRecords[0].PhotoURLs)

	// the synced action survives cleanup while its photo is still queued
	assert.Equal(t, models.ActionSynced, queue.status("qc-1"))
	leftover, err := queue.PendingPhotosOfSynced()
	require.NoError(t, err)
	require.Len(t, leftover, 1)

	// next pass the upload succeeds and the URL lands on the record
	uploader.fn = nil
	_, err = svc.SyncAll(context.Background())
	require.NoError(t, err)

	require.Len(t, store.attached["qc-1"], 1)
	assert.Empty(t, queue.status("qc-1"), "action removed once its photos cleared")
}

func TestSyncAllReplaysStationMoveThroughValidation(t *testing.T) {
	store, queue, _, svc := syncFixture(t)
	store.workers[10] = &models.Worker{ID: 10, Name: "Dana", PrimaryStationID: intPtr(2), IsLead: true, IsActive: true}

	payload := models.StationMovePayload{ModuleID: 1, StationID: 2, LeadID: intPtr(10)}
	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "move-1",
		ActionType: models.ActionStationMove,
		Payload:    encodePayload(t, payload),
	}, nil))

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, 2, *store.modules[1].CurrentStationID)
	require.Len(t, store.assignments, 1)
}

func TestReplayedStationMoveIsANoOp(t *testing.T) {
	store, queue, _, svc := syncFixture(t)

	payload := models.StationMovePayload{ModuleID: 1, StationID: 2}
	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "move-1",
		ActionType: models.ActionStationMove,
		Payload:    encodePayload(t, payload),
	}, nil))

	_, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, store.assignments, 1)

	// Work starts at the new station; then the device, having missed the
	// ack, re-submits the same move.
	res, err := svc.modules.UpdateModuleStatus(1, models.StatusInProgress, nil, UpdateStatusOptions{})
	require.NoError(t, err)
	require.True(t, res.Valid)

	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "move-1",
		ActionType: models.ActionStationMove,
		Payload:    encodePayload(t, payload),
	}, nil))

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Synced)
	assert.Len(t, store.assignments, 1, "replay records no second assignment")
	assert.Equal(t, models.StatusInProgress, store.modules[1].Status)
	assert.Equal(t, 2, *store.modules[1].CurrentStationID)
}

func TestSyncAllRejectedMoveFailsTheAction(t *testing.T) {
	store, queue, _, svc := syncFixture(t)

	// skipping from station 1 to 3 on a non-rush module is rejected
	payload := models.StationMovePayload{ModuleID: 1, StationID: 3}
	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "move-bad",
		ActionType: models.ActionStationMove,
		Payload:    encodePayload(t, payload),
	}, nil))

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Synced)
	assert.Equal(t, models.ActionFailed, queue.status("move-bad"))
	require.NotEmpty(t, summary.Errors)
	assert.Contains(t, summary.Errors[0].Message, "StationSkipped")
	assert.Empty(t, store.assignments)
}

func TestSyncAllHandlesShiftAndInventoryActions(t *testing.T) {
	store, queue, _, svc := syncFixture(t)

	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "in-1",
		ActionType: models.ActionClockIn,
		Payload:    encodePayload(t, models.ClockInPayload{WorkerID: 5, StationID: intPtr(1)}),
	}, nil))
	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "out-1",
		ActionType: models.ActionClockOut,
		Payload:    encodePayload(t, models.ClockOutPayload{WorkerID: 5}),
	}, nil))
	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "inv-1",
		ActionType: models.ActionInventoryReceive,
		Payload:    encodePayload(t, models.InventoryReceivePayload{FactoryID: 1, ItemCode: "LUM-2x6", Quantity: 40, ReceivedBy: 5}),
	}, nil))

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Synced)
	require.Len(t, store.shifts, 1)
	assert.Equal(t, "in-1", store.shifts[0].ClientActionID)
	assert.Equal(t, []int{5}, store.clockOuts)
	require.Len(t, store.receipts, 1)
	assert.Equal(t, "inv-1", store.receipts[0].ClientActionID)
}

func TestSyncAllFailsUnknownActionType(t *testing.T) {
	_, queue, _, svc := syncFixture(t)
	require.NoError(t, queue.Enqueue(&models.PendingAction{
		ID:         "odd-1",
		ActionType: models.ActionType("firmware_update"),
		Payload:    "{}",
	}, nil))

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Synced)
	require.NotEmpty(t, summary.Errors)
	assert.Contains(t, summary.Errors[0].Message, "unhandled action type")
}

func TestListenersSeeSyncingThenComplete(t *testing.T) {
	_, queue, _, svc := syncFixture(t)
	enqueueQC(t, queue, "qc-1", 0)

	var mu sync.Mutex
	var statuses []models.SyncStatus
	unsubscribe := svc.AddListener(func(status models.SyncStatus, counts models.SyncCounts) {
		mu.Lock()
		statuses = append(statuses, status)
		mu.Unlock()
	})

	_, err := svc.SyncAll(context.Background())
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, statuses, 2)
	assert.Equal(t, models.SyncStatusSyncing, statuses[0])
	assert.Equal(t, models.SyncStatusComplete, statuses[1])
	mu.Unlock()

	unsubscribe()
	_, err = svc.SyncAll(context.Background())
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, statuses, 2, "unsubscribed listener hears nothing")
	mu.Unlock()
}

func TestListenersSeeErrorWhenFailuresRemain(t *testing.T) {
	store, queue, _, svc := syncFixture(t)
	store.createErr = errors.New("records table unavailable")
	enqueueQC(t, queue, "qc-1", 0)

	var mu sync.Mutex
	var last models.SyncStatus
	svc.AddListener(func(status models.SyncStatus, counts models.SyncCounts) {
		mu.Lock()
		last = status
		mu.Unlock()
	})

	_, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, models.SyncStatusError, last)
	mu.Unlock()
}

func TestStatusReportsCountsAndLastSync(t *testing.T) {
	_, queue, _, svc := syncFixture(t)
	enqueueQC(t, queue, "qc-1", 0)

	status, err := svc.Status()
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Counts.Pending)
	assert.False(t, status.Syncing)
	assert.Nil(t, status.LastSyncAt)

	_, err = svc.SyncAll(context.Background())
	require.NoError(t, err)

	status, err = svc.Status()
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Counts.Pending)
	assert.NotNil(t, status.LastSyncAt)
}

func TestReplayedQCActionIsIdempotent(t *testing.T) {
	store, queue, _, svc := syncFixture(t)
	enqueueQC(t, queue, "qc-1", 0)

	_, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, store.qcRecords, 1)

	// the device re-submits the same action after a dropped ack
	enqueueQC(t, queue, "qc-1", 0)
	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Synced)
	assert.Len(t, store.qcRecords, 1, "replay resolves to the existing record")
}
