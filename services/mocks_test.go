package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"modtrack/models"
)

func key(a, b int) string { return fmt.Sprintf("%d:%d", a, b) }

// fakeStore is an in-memory stand-in for storage.Store covering the
// validation, module and record collaborator interfaces.
type fakeStore struct {
	mu sync.Mutex

	modules       map[int]*models.Module
	stations      map[int]*models.StationTemplate
	workers       map[int]*models.Worker
	crossTraining map[string]*models.CrossTraining
	qcLatest      map[string]*models.QCRecord

	updates     []map[string]interface{}
	assignments []models.StationAssignment
	qcRecords   []*models.QCRecord
	receipts    []*models.InventoryReceipt
	shifts      []*models.ShiftEntry
	clockOuts   []int
	attached    map[string][]string

	nextID     int
	createErr  error
	qcByAction map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		modules:       map[int]*models.Module{},
		stations:      map[int]*models.StationTemplate{},
		workers:       map[int]*models.Worker{},
		crossTraining: map[string]*models.CrossTraining{},
		qcLatest:      map[string]*models.QCRecord{},
		attached:      map[string][]string{},
		qcByAction:    map[string]int{},
		nextID:        100,
	}
}

func (f *fakeStore) GetModule(id int) (*models.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modules[id]
	if !ok {
		return nil, fmt.Errorf("module %d not found", id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) UpdateModule(id int, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modules[id]
	if !ok {
		return fmt.Errorf("module %d not found", id)
	}
	for col, val := range fields {
		switch col {
		case "status":
			m.Status = models.ModuleStatus(val.(string))
		case "current_station_id":
			sid := val.(int)
			m.CurrentStationID = &sid
		case "actual_start":
			t := val.(time.Time)
			m.ActualStart = &t
		case "actual_end":
			t := val.(time.Time)
			m.ActualEnd = &t
		}
	}
	f.updates = append(f.updates, fields)
	return nil
}

func (f *fakeStore) GetStationTemplate(id int) (*models.StationTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stations[id]
	if !ok {
		return nil, fmt.Errorf("station %d not found", id)
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStore) GetLatestQCRecord(moduleID, stationID int) (*models.QCRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.qcLatest[key(moduleID, stationID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) GetWorker(id int) (*models.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workers[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeStore) GetActiveCrossTraining(workerID, stationID int) (*models.CrossTraining, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ct, ok := f.crossTraining[key(workerID, stationID)]
	if !ok {
		return nil, nil
	}
	cp := *ct
	return &cp, nil
}

func (f *fakeStore) CreateStationAssignment(a *models.StationAssignment) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	f.assignments = append(f.assignments, *a)
	return a.ID, nil
}

func (f *fakeStore) CreateQCRecord(rec *models.QCRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	if rec.ClientActionID != "" {
		if id, ok := f.qcByAction[rec.ClientActionID]; ok {
			return id, nil
		}
	}
	f.nextID++
	rec.ID = f.nextID
	cp := *rec
	f.qcRecords = append(f.qcRecords, &cp)
	f.qcLatest[key(rec.ModuleID, rec.StationID)] = &cp
	if rec.ClientActionID != "" {
		f.qcByAction[rec.ClientActionID] = rec.ID
	}
	return rec.ID, nil
}

func (f *fakeStore) CreateInventoryReceipt(r *models.InventoryReceipt) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	r.ID = f.nextID
	cp := *r
	f.receipts = append(f.receipts, &cp)
	return r.ID, nil
}

func (f *fakeStore) ClockIn(e *models.ShiftEntry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	cp := *e
	f.shifts = append(f.shifts, &cp)
	return e.ID, nil
}

func (f *fakeStore) ClockOut(workerID int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clockOuts = append(f.clockOuts, workerID)
	return nil
}

func (f *fakeStore) AttachPhoto(clientActionID, publicURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[clientActionID] = append(f.attached[clientActionID], publicURL)
	return nil
}

// fakeQueue is an in-memory ActionQueue.
type fakeQueue struct {
	mu sync.Mutex

	actions    []*models.PendingAction
	photos     []*models.QueuedPhoto
	lastSyncAt *time.Time
	nextID     int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{}
}

func (q *fakeQueue) Enqueue(a *models.PendingAction, photos []models.QueuedPhoto) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a.ID == "" {
		q.nextID++
		a.ID = fmt.Sprintf("action-%d", q.nextID)
	}
	if a.Status == "" {
		a.Status = models.ActionPending
	}
	cp := *a
	q.actions = append(q.actions, &cp)
	for i := range photos {
		photos[i].ActionID = a.ID
		if photos[i].ID == "" {
			q.nextID++
			photos[i].ID = fmt.Sprintf("photo-%d", q.nextID)
		}
		pcp := photos[i]
		q.photos = append(q.photos, &pcp)
	}
	return nil
}

func (q *fakeQueue) find(id string) *models.PendingAction {
	for _, a := range q.actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (q *fakeQueue) PendingActions() ([]models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.PendingAction
	for _, a := range q.actions {
		if a.Status == models.ActionPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (q *fakeQueue) RetryableActions(maxRetries int) ([]models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.PendingAction
	for _, a := range q.actions {
		if a.Status == models.ActionFailed && a.RetryCount < maxRetries {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (q *fakeQueue) MarkSyncing(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a := q.find(id); a != nil {
		a.Status = models.ActionSyncing
	}
	return nil
}

func (q *fakeQueue) MarkSynced(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a := q.find(id); a != nil {
		a.Status = models.ActionSynced
		a.LastError = ""
	}
	return nil
}

func (q *fakeQueue) MarkFailed(id, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a := q.find(id); a != nil {
		a.Status = models.ActionFailed
		a.LastError = lastError
		a.RetryCount++
	}
	return nil
}

func (q *fakeQueue) ResetFailed() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, a := range q.actions {
		if a.Status == models.ActionFailed {
			a.Status = models.ActionPending
			a.RetryCount = 0
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) DeleteAction(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var actions []*models.PendingAction
	for _, a := range q.actions {
		if a.ID != id {
			actions = append(actions, a)
		}
	}
	q.actions = actions
	var photos []*models.QueuedPhoto
	for _, p := range q.photos {
		if p.ActionID != id {
			photos = append(photos, p)
		}
	}
	q.photos = photos
	return nil
}

func (q *fakeQueue) CleanupSynced() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	synced := map[string]bool{}
	for _, a := range q.actions {
		if a.Status == models.ActionSynced {
			synced[a.ID] = true
		}
	}

	var photos []*models.QueuedPhoto
	for _, p := range q.photos {
		if p.Uploaded && synced[p.ActionID] {
			continue
		}
		photos = append(photos, p)
	}
	q.photos = photos

	remaining := map[string]bool{}
	for _, p := range q.photos {
		remaining[p.ActionID] = true
	}

	var n int64
	var actions []*models.PendingAction
	for _, a := range q.actions {
		if a.Status == models.ActionSynced && !remaining[a.ID] {
			n++
			continue
		}
		actions = append(actions, a)
	}
	q.actions = actions
	return n, nil
}

func (q *fakeQueue) Counts() (pending int64, failed int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, a := range q.actions {
		switch a.Status {
		case models.ActionPending:
			pending++
		case models.ActionFailed:
			failed++
		}
	}
	return pending, failed, nil
}

func (q *fakeQueue) PendingPhotos(actionID string) ([]models.QueuedPhoto, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.QueuedPhoto
	for _, p := range q.photos {
		if p.ActionID == actionID && !p.Uploaded {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (q *fakeQueue) PendingPhotosOfSynced() ([]models.QueuedPhoto, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	synced := map[string]bool{}
	for _, a := range q.actions {
		if a.Status == models.ActionSynced {
			synced[a.ID] = true
		}
	}
	var out []models.QueuedPhoto
	for _, p := range q.photos {
		if !p.Uploaded && synced[p.ActionID] {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (q *fakeQueue) MarkPhotoUploaded(id, publicURL string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.photos {
		if p.ID == id {
			p.Uploaded = true
			p.PublicURL = publicURL
		}
	}
	return nil
}

func (q *fakeQueue) SetLastSyncAt(t time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastSyncAt = &t
	return nil
}

func (q *fakeQueue) LastSyncAt() (*time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSyncAt, nil
}

func (q *fakeQueue) status(id string) models.ActionStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a := q.find(id); a != nil {
		return a.Status
	}
	return ""
}

func (q *fakeQueue) retryCount(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a := q.find(id); a != nil {
		return a.RetryCount
	}
	return -1
}

// fakeUploader records uploads and can be pointed at a custom function to
// simulate failures or block mid-upload.
type fakeUploader struct {
	mu       sync.Mutex
	fn       func(photo models.QueuedPhoto) (string, error)
	uploaded []string
}

func (u *fakeUploader) Upload(ctx context.Context, photo models.QueuedPhoto) (string, error) {
	u.mu.Lock()
	fn := u.fn
	u.mu.Unlock()
	if fn != nil {
		url, err := fn(photo)
		if err != nil {
			return "", err
		}
		u.mu.Lock()
		u.uploaded = append(u.uploaded, photo.ID)
		u.mu.Unlock()
		return url, nil
	}
	u.mu.Lock()
	u.uploaded = append(u.uploaded, photo.ID)
	u.mu.Unlock()
	return "https://media.example.com/" + photo.FileName, nil
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploaded)
}
