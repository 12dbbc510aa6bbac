package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modtrack/models"
)

func testModule(status models.ModuleStatus, stationID *int) *models.Module {
	return &models.Module{
		ID:               1,
		SerialNumber:     "MOD/TST/0001",
		Status:           status,
		CurrentStationID: stationID,
	}
}

func intPtr(i int) *int { return &i }

func TestValidateStatusTransition(t *testing.T) {
	v := NewValidationService(newFakeStore())
	station := intPtr(10)

	tests := []struct {
		name     string
		from     models.ModuleStatus
		to       models.ModuleStatus
		station  *int
		wantOK   bool
		wantCode models.ValidationCode
	}{
		{"not started to queue", models.StatusNotStarted, models.StatusInQueue, station, true, ""},
		{"queue to in progress", models.StatusInQueue, models.StatusInProgress, station, true, ""},
		{"queue back to not started", models.StatusInQueue, models.StatusNotStarted, station, true, ""},
		{"in progress to qc hold", models.StatusInProgress, models.StatusQCHold, station, true, ""},
		{"qc hold to rework", models.StatusQCHold, models.StatusRework, station, true, ""},
		{"rework to qc hold", models.StatusRework, models.StatusQCHold, station, true, ""},
		{"completed to staged", models.StatusCompleted, models.StatusStaged, station, true, ""},
		{"staged back to completed", models.StatusStaged, models.StatusCompleted, station, true, ""},
		{"staged to shipped", models.StatusStaged, models.StatusShipped, station, true, ""},
		{"not started straight to completed", models.StatusNotStarted, models.StatusCompleted, station, false, models.CodeInvalidTransition},
		{"completed back to in progress", models.StatusCompleted, models.StatusInProgress, station, false, models.CodeInvalidTransition},
		{"shipped is terminal", models.StatusShipped, models.StatusCompleted, station, false, models.CodeInvalidTransition},
		{"shipped cannot re-ship", models.StatusShipped, models.StatusShipped, station, false, models.CodeInvalidTransition},
		{"in progress needs a station", models.StatusInQueue, models.StatusInProgress, nil, false, models.CodeMissingStation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateStatusTransition(testModule(tt.from, tt.station), tt.to)
			assert.Equal(t, tt.wantOK, res.Valid)
			if !tt.wantOK {
				assert.Equal(t, tt.wantCode, res.Code)
			}
		})
	}
}

func progressionFixture() *fakeStore {
	store := newFakeStore()
	store.stations[1] = &models.StationTemplate{ID: 1, Name: "Framing", OrderNum: 1, MinCrewSize: 1, MaxCrewSize: 6, IsActive: true}
	store.stations[2] = &models.StationTemplate{ID: 2, Name: "Rough-In", OrderNum: 2, MinCrewSize: 1, MaxCrewSize: 6, IsActive: true}
	store.stations[3] = &models.StationTemplate{ID: 3, Name: "Close-Up", OrderNum: 3, RequiresInspection: true, MinCrewSize: 1, MaxCrewSize: 6, IsActive: true}
	store.stations[4] = &models.StationTemplate{ID: 4, Name: "Finishes", OrderNum: 4, MinCrewSize: 1, MaxCrewSize: 6, IsActive: true}
	store.stations[9] = &models.StationTemplate{ID: 9, Name: "Retired Bay", OrderNum: 9, MinCrewSize: 1, MaxCrewSize: 6, IsActive: false}
	return store
}

func TestValidateStationProgression(t *testing.T) {
	store := progressionFixture()
	v := NewValidationService(store)

	t.Run("inactive station is rejected", func(t *testing.T) {
		m := testModule(models.StatusInProgress, intPtr(1))
		res, err := v.ValidateStationProgression(m, store.stations[9], ProgressionOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeStationInactive, res.Code)
	})

	t.Run("adjacent forward move passes", func(t *testing.T) {
		m := testModule(models.StatusInProgress, intPtr(1))
		res, err := v.ValidateStationProgression(m, store.stations[2], ProgressionOptions{})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("first station with no current station passes", func(t *testing.T) {
		m := testModule(models.StatusNotStarted, nil)
		res, err := v.ValidateStationProgression(m, store.stations[1], ProgressionOptions{})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("skipping a station is rejected", func(t *testing.T) {
		m := testModule(models.StatusInProgress, intPtr(1))
		res, err := v.ValidateStationProgression(m, store.stations[3], ProgressionOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeStationSkipped, res.Code)
	})

	t.Run("rush module may skip ahead", func(t *testing.T) {
		m := testModule(models.StatusInProgress, intPtr(1))
		m.IsRush = true
		res, err := v.ValidateStationProgression(m, store.stations[3], ProgressionOptions{})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("backward move is rejected by default", func(t *testing.T) {
		m := testModule(models.StatusInProgress, intPtr(2))
		res, err := v.ValidateStationProgression(m, store.stations[1], ProgressionOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeBackwardNotAllowed, res.Code)
	})

	t.Run("backward move allowed for rework", func(t *testing.T) {
		m := testModule(models.StatusRework, intPtr(2))
		res, err := v.ValidateStationProgression(m, store.stations[1], ProgressionOptions{IsRework: true})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("backward move allowed with explicit override", func(t *testing.T) {
		m := testModule(models.StatusInProgress, intPtr(2))
		res, err := v.ValidateStationProgression(m, store.stations[1], ProgressionOptions{AllowBackward: true})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("leaving inspection station without QC is rejected", func(t *testing.T) {
		m := testModule(models.StatusInProgress, intPtr(3))
		res, err := v.ValidateStationProgression(m, store.stations[4], ProgressionOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeQCRequired, res.Code)
	})

	t.Run("leaving inspection station with failed QC is rejected", func(t *testing.T) {
		store.qcLatest[key(1, 3)] = &models.QCRecord{ID: 7, ModuleID: 1, StationID: 3, Passed: false}
		m := testModule(models.StatusInProgress, intPtr(3))
		res, err := v.ValidateStationProgression(m, store.stations[4], ProgressionOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeQCFailed, res.Code)
	})

	t.Run("leaving inspection station with passed QC clears", func(t *testing.T) {
		store.qcLatest[key(1, 3)] = &models.QCRecord{ID: 8, ModuleID: 1, StationID: 3, Passed: true}
		m := testModule(models.StatusInProgress, intPtr(3))
		res, err := v.ValidateStationProgression(m, store.stations[4], ProgressionOptions{})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("rush does not bypass the departing QC gate", func(t *testing.T) {
		delete(store.qcLatest, key(1, 3))
		m := testModule(models.StatusInProgress, intPtr(3))
		m.IsRush = true
		res, err := v.ValidateStationProgression(m, store.stations[4], ProgressionOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeQCRequired, res.Code)
	})
}

func TestValidateQCGateByLinePosition(t *testing.T) {
	store := newFakeStore()
	// order 5 always carries an inspection hold even without the flag
	store.stations[5] = &models.StationTemplate{ID: 5, Name: "Mid-Line Check", OrderNum: 5, MinCrewSize: 1, MaxCrewSize: 4, IsActive: true}
	v := NewValidationService(store)

	res, err := v.ValidateQCGate(1, 5)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, models.CodeQCRequired, res.Code)

	store.qcLatest[key(1, 5)] = &models.QCRecord{ID: 1, ModuleID: 1, StationID: 5, Passed: true}
	res, err = v.ValidateQCGate(1, 5)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidateCrewSize(t *testing.T) {
	store := newFakeStore()
	station := &models.StationTemplate{ID: 2, Name: "Rough-In", OrderNum: 2, MinCrewSize: 2, MaxCrewSize: 4, IsActive: true}
	store.workers[1] = &models.Worker{ID: 1, Name: "Dana", IsLead: true, IsActive: true}
	store.workers[2] = &models.Worker{ID: 2, Name: "Lee", IsLead: false, IsActive: true}
	store.workers[3] = &models.Worker{ID: 3, Name: "Sam", IsLead: true, IsActive: false}
	v := NewValidationService(store)

	t.Run("crew too small", func(t *testing.T) {
		res, err := v.ValidateCrewSize(station, []int{2}, nil)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeCrewTooSmall, res.Code)
	})

	t.Run("crew too large", func(t *testing.T) {
		res, err := v.ValidateCrewSize(station, []int{2, 4, 5, 6, 7}, nil)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeCrewTooLarge, res.Code)
	})

	t.Run("lead counts toward the crew once", func(t *testing.T) {
		res, err := v.ValidateCrewSize(station, []int{1, 2}, intPtr(1))
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("non-lead as lead is rejected", func(t *testing.T) {
		res, err := v.ValidateCrewSize(station, []int{4, 5}, intPtr(2))
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeNotALead, res.Code)
	})

	t.Run("inactive lead is rejected", func(t *testing.T) {
		res, err := v.ValidateCrewSize(station, []int{4, 5}, intPtr(3))
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeLeadInactive, res.Code)
	})

	t.Run("unknown lead is rejected", func(t *testing.T) {
		res, err := v.ValidateCrewSize(station, []int{4, 5}, intPtr(99))
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeNotALead, res.Code)
	})
}

func TestValidateWorkerCertification(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	store.workers[1] = &models.Worker{ID: 1, Name: "Dana", PrimaryStationID: intPtr(2), IsActive: true}
	store.workers[2] = &models.Worker{ID: 2, Name: "Lee", PrimaryStationID: intPtr(1), IsActive: true}
	store.workers[3] = &models.Worker{ID: 3, Name: "Sam", PrimaryStationID: intPtr(1), IsActive: true}
	store.workers[4] = &models.Worker{ID: 4, Name: "Ash", PrimaryStationID: intPtr(1), IsActive: true}

	expired := now.Add(-24 * time.Hour)
	valid := now.Add(30 * 24 * time.Hour)
	store.crossTraining[key(2, 2)] = &models.CrossTraining{ID: 1, WorkerID: 2, StationID: 2, ExpiresAt: &valid, IsActive: true}
	store.crossTraining[key(3, 2)] = &models.CrossTraining{ID: 2, WorkerID: 3, StationID: 2, ExpiresAt: &expired, IsActive: true}

	v := NewValidationService(store)
	v.now = func() time.Time { return now }

	t.Run("primary station passes", func(t *testing.T) {
		res, err := v.ValidateWorkerCertification(1, 2)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("active cross-training passes", func(t *testing.T) {
		res, err := v.ValidateWorkerCertification(2, 2)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("expired cross-training is rejected", func(t *testing.T) {
		res, err := v.ValidateWorkerCertification(3, 2)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeCertificationExpired, res.Code)
	})

	t.Run("no certification is rejected", func(t *testing.T) {
		res, err := v.ValidateWorkerCertification(4, 2)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeNotCertified, res.Code)
	})

	t.Run("unknown worker is rejected", func(t *testing.T) {
		res, err := v.ValidateWorkerCertification(99, 2)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.CodeNotCertified, res.Code)
	})

	t.Run("no expiry means no expiry check", func(t *testing.T) {
		store.crossTraining[key(4, 2)] = &models.CrossTraining{ID: 3, WorkerID: 4, StationID: 2, IsActive: true}
		res, err := v.ValidateWorkerCertification(4, 2)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})
}

func TestValidateCrewCertificationsReportsEveryFault(t *testing.T) {
	store := newFakeStore()
	store.workers[1] = &models.Worker{ID: 1, Name: "Dana", PrimaryStationID: intPtr(2), IsActive: true}
	store.workers[2] = &models.Worker{ID: 2, Name: "Lee", PrimaryStationID: intPtr(1), IsActive: true}
	v := NewValidationService(store)

	// worker 1 certified, worker 2 and 99 not; 2 repeated to check dedup
	certs, err := v.ValidateCrewCertifications([]int{1, 2, 2, 99}, 2)
	require.NoError(t, err)
	assert.False(t, certs.Valid)
	assert.Equal(t, []int{1}, certs.ValidIDs)
	require.Len(t, certs.Invalid, 2)
	assert.Equal(t, 2, certs.Invalid[0].WorkerID)
	assert.Equal(t, 99, certs.Invalid[1].WorkerID)
	assert.Len(t, certs.Messages(), 2)
}
