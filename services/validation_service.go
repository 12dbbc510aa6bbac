package services

import (
	"fmt"
	"time"

	"modtrack/models"
)

// ValidationStore is the read-only collaborator the validation engine pulls
// station, inspection and worker records from.
type ValidationStore interface {
	GetStationTemplate(id int) (*models.StationTemplate, error)
	GetLatestQCRecord(moduleID, stationID int) (*models.QCRecord, error)
	GetWorker(id int) (*models.Worker, error)
	GetActiveCrossTraining(workerID, stationID int) (*models.CrossTraining, error)
}

// ValidationService holds the decision functions gating every module
// mutation. Business rejections come back as ValidationResult values;
// the error return is reserved for infrastructure failures.
type ValidationService struct {
	store ValidationStore
	now   func() time.Time
}

// NewValidationService builds a validation engine over the given store.
func NewValidationService(store ValidationStore) *ValidationService {
	return &ValidationService{store: store, now: time.Now}
}

// ValidateStatusTransition checks newStatus against the status graph.
// Moving into in_progress additionally requires a current station.
func (v *ValidationService) ValidateStatusTransition(module *models.Module, newStatus models.ModuleStatus) *models.ValidationResult {
	if !module.Status.CanTransitionTo(newStatus) {
		return models.Invalid(models.CodeInvalidTransition,
			"module %s cannot go from %s to %s", module.SerialNumber, module.Status, newStatus).
			WithDetail("from", string(module.Status)).
			WithDetail("to", string(newStatus))
	}
	if newStatus == models.StatusInProgress && module.CurrentStationID == nil {
		return models.Invalid(models.CodeMissingStation,
			"module %s has no station to start work at", module.SerialNumber)
	}
	return models.ValidOK()
}

// ProgressionOptions tune a station move check.
type ProgressionOptions struct {
	AllowBackward bool
	IsRework      bool
}

// ValidateStationProgression checks a move along the line. Rush modules may
// skip ahead; backward moves need an explicit override or a rework flag.
// Leaving an inspection station requires the QC gate to clear first.
func (v *ValidationService) ValidateStationProgression(module *models.Module, target *models.StationTemplate, opts ProgressionOptions) (*models.ValidationResult, error) {
	if !target.IsActive {
		return models.Invalid(models.CodeStationInactive,
			"station %s is disabled", target.Name).
			WithDetail("station_id", target.ID), nil
	}

	currentOrder := 0
	var current *models.StationTemplate
	if module.CurrentStationID != nil {
		var err error
		current, err = v.store.GetStationTemplate(*module.CurrentStationID)
		if err != nil {
			return nil, fmt.Errorf("fetch current station %d: %w", *module.CurrentStationID, err)
		}
		currentOrder = current.OrderNum
	}

	if target.OrderNum < currentOrder && !opts.AllowBackward && !opts.IsRework {
		return models.Invalid(models.CodeBackwardNotAllowed,
			"module %s cannot move backward to %s", module.SerialNumber, target.Name).
			WithDetail("current_order", currentOrder).
			WithDetail("target_order", target.OrderNum), nil
	}

	if target.OrderNum > currentOrder+1 && !module.IsRush {
		return models.Invalid(models.CodeStationSkipped,
			"move to %s would skip stations (order %d from %d)", target.Name, target.OrderNum, currentOrder).
			WithDetail("current_order", currentOrder).
			WithDetail("target_order", target.OrderNum), nil
	}

	// Forward movement off an inspection station is gated on a passing
	// inspection of the work done there.
	if current != nil && target.OrderNum > currentOrder && current.InspectionRequired() {
		gate, err := v.ValidateQCGate(module.ID, current.ID)
		if err != nil {
			return nil, err
		}
		if !gate.Valid {
			return gate, nil
		}
	}

	return models.ValidOK(), nil
}

// ValidateQCGate clears trivially when the station needs no inspection.
// Otherwise the latest QC record for (module, station) must exist and have
// passed; a failed latest record means rework is still owed.
func (v *ValidationService) ValidateQCGate(moduleID, stationID int) (*models.ValidationResult, error) {
	station, err := v.store.GetStationTemplate(stationID)
	if err != nil {
		return nil, fmt.Errorf("fetch station %d: %w", stationID, err)
	}
	if !station.InspectionRequired() {
		return models.ValidOK(), nil
	}

	rec, err := v.store.GetLatestQCRecord(moduleID, stationID)
	if err != nil {
		return nil, fmt.Errorf("fetch QC history for module %d station %d: %w", moduleID, stationID, err)
	}
	if rec == nil {
		return models.Invalid(models.CodeQCRequired,
			"station %s requires an inspection before the module may leave", station.Name).
			WithDetail("station_id", stationID), nil
	}
	if !rec.Passed {
		return models.Invalid(models.CodeQCFailed,
			"latest inspection at %s failed; rework required", station.Name).
			WithDetail("station_id", stationID).
			WithDetail("qc_record_id", rec.ID), nil
	}
	return models.ValidOK(), nil
}

// ValidateCrewSize checks the effective crew (crew plus lead, if distinct)
// against the station's bounds, and the lead's privilege and active flag.
func (v *ValidationService) ValidateCrewSize(station *models.StationTemplate, crewIDs []int, leadID *int) (*models.ValidationResult, error) {
	effective := map[int]bool{}
	for _, id := range crewIDs {
		effective[id] = true
	}
	if leadID != nil {
		effective[*leadID] = true
	}
	size := len(effective)

	if size < station.MinCrewSize {
		return models.Invalid(models.CodeCrewTooSmall,
			"station %s needs at least %d workers, got %d", station.Name, station.MinCrewSize, size).
			WithDetail("min", station.MinCrewSize).
			WithDetail("actual", size), nil
	}
	if size > station.MaxCrewSize {
		return models.Invalid(models.CodeCrewTooLarge,
			"station %s allows at most %d workers, got %d", station.Name, station.MaxCrewSize, size).
			WithDetail("max", station.MaxCrewSize).
			WithDetail("actual", size), nil
	}

	if leadID != nil {
		lead, err := v.store.GetWorker(*leadID)
		if err != nil {
			return nil, fmt.Errorf("fetch lead %d: %w", *leadID, err)
		}
		if lead == nil || !lead.IsLead {
			return models.Invalid(models.CodeNotALead,
				"worker %d does not have lead privilege", *leadID).
				WithDetail("worker_id", *leadID), nil
		}
		if !lead.IsActive {
			return models.Invalid(models.CodeLeadInactive,
				"lead %s is inactive", lead.Name).
				WithDetail("worker_id", *leadID), nil
		}
	}

	return models.ValidOK(), nil
}

// ValidateWorkerCertification passes when the station is the worker's
// primary station or an active, unexpired cross-training record exists.
func (v *ValidationService) ValidateWorkerCertification(workerID, stationID int) (*models.ValidationResult, error) {
	worker, err := v.store.GetWorker(workerID)
	if err != nil {
		return nil, fmt.Errorf("fetch worker %d: %w", workerID, err)
	}
	if worker == nil {
		return models.Invalid(models.CodeNotCertified,
			"worker %d is not on record", workerID).
			WithDetail("worker_id", workerID), nil
	}

	if worker.PrimaryStationID != nil && *worker.PrimaryStationID == stationID {
		return models.ValidOK(), nil
	}

	ct, err := v.store.GetActiveCrossTraining(workerID, stationID)
	if err != nil {
		return nil, fmt.Errorf("fetch cross-training for worker %d station %d: %w", workerID, stationID, err)
	}
	if ct == nil {
		return models.Invalid(models.CodeNotCertified,
			"%s is not certified for this station", worker.Name).
			WithDetail("worker_id", workerID), nil
	}
	if ct.ExpiresAt != nil && !ct.ExpiresAt.After(v.now()) {
		return models.Invalid(models.CodeCertificationExpired,
			"%s's certification expired on %s", worker.Name, ct.ExpiresAt.Format("2006-01-02")).
			WithDetail("worker_id", workerID).
			WithDetail("expired_at", ct.ExpiresAt), nil
	}
	return models.ValidOK(), nil
}

// ValidateCrewCertifications runs the single-worker check over a whole crew
// without short-circuiting, so the caller can report every offending worker
// in one pass.
func (v *ValidationService) ValidateCrewCertifications(crewIDs []int, stationID int) (*models.CrewCertification, error) {
	out := &models.CrewCertification{Valid: true}
	seen := map[int]bool{}
	for _, workerID := range crewIDs {
		if seen[workerID] {
			continue
		}
		seen[workerID] = true

		res, err := v.ValidateWorkerCertification(workerID, stationID)
		if err != nil {
			return nil, err
		}
		if res.Valid {
			out.ValidIDs = append(out.ValidIDs, workerID)
			continue
		}
		out.Valid = false
		out.Invalid = append(out.Invalid, models.WorkerFault{
			WorkerID: workerID,
			Code:     res.Code,
			Message:  res.Message,
		})
	}
	return out, nil
}
