package services

import (
	"fmt"
	"strings"
	"time"

	"modtrack/models"
)

// ModuleStore is the persistence collaborator for module mutations.
type ModuleStore interface {
	ValidationStore
	GetModule(id int) (*models.Module, error)
	UpdateModule(id int, fields map[string]interface{}) error
	CreateStationAssignment(a *models.StationAssignment) (int, error)
}

// ModuleService orchestrates validated mutations of a module's status and
// station. Every offline action replayed by the sync engine resolves into
// the same operations the interactive handlers call.
type ModuleService struct {
	store     ModuleStore
	validator *ValidationService
	now       func() time.Time
}

// NewModuleService builds the state machine over a store and its validator.
func NewModuleService(store ModuleStore, validator *ValidationService) *ModuleService {
	return &ModuleService{store: store, validator: validator, now: time.Now}
}

// UpdateStatusOptions tune a status write.
type UpdateStatusOptions struct {
	// SkipValidation is the explicit trust boundary for administrative
	// overrides and idempotent replays of actions that already succeeded.
	SkipValidation bool
}

// MoveOptions tune a station move.
type MoveOptions struct {
	SkipValidation bool
	IsRework       bool
	AllowBackward  bool
}

// UpdateModuleStatus validates and writes a status transition. Entering
// completed or staged additionally requires the QC gate of the module's
// current station to clear. actual_start and actual_end are stamped exactly
// once; replays never overwrite an existing timestamp.
func (s *ModuleService) UpdateModuleStatus(moduleID int, newStatus models.ModuleStatus, stationID *int, opts UpdateStatusOptions) (*models.ValidationResult, error) {
	module, err := s.store.GetModule(moduleID)
	if err != nil {
		return nil, fmt.Errorf("fetch module %d: %w", moduleID, err)
	}

	if !opts.SkipValidation {
		// Validate against the station the module will actually hold.
		effective := *module
		if stationID != nil {
			effective.CurrentStationID = stationID
		}
		if res := s.validator.ValidateStatusTransition(&effective, newStatus); !res.Valid {
			return res, nil
		}

		if (newStatus == models.StatusCompleted || newStatus == models.StatusStaged) && module.CurrentStationID != nil {
			gate, err := s.validator.ValidateQCGate(module.ID, *module.CurrentStationID)
			if err != nil {
				return nil, err
			}
			if !gate.Valid {
				return gate, nil
			}
		}
	}

	fields := map[string]interface{}{"status": string(newStatus)}
	if stationID != nil {
		fields["current_station_id"] = *stationID
	}
	if newStatus == models.StatusInProgress && module.ActualStart == nil {
		fields["actual_start"] = s.now()
	}
	if (newStatus == models.StatusCompleted || newStatus == models.StatusShipped) && module.ActualEnd == nil {
		fields["actual_end"] = s.now()
	}

	if err := s.store.UpdateModule(moduleID, fields); err != nil {
		return nil, fmt.Errorf("update module %d: %w", moduleID, err)
	}
	return models.ValidOK(), nil
}

// MoveModuleToStation validates progression and, when a crew is supplied,
// crew size and certifications; on success the module is queued at the new
// station and a fresh assignment is recorded. Crew failures report every
// invalid worker, not just the first.
func (s *ModuleService) MoveModuleToStation(moduleID, stationID int, leadID *int, crewIDs []int, opts MoveOptions) (*models.ValidationResult, error) {
	module, err := s.store.GetModule(moduleID)
	if err != nil {
		return nil, fmt.Errorf("fetch module %d: %w", moduleID, err)
	}
	target, err := s.store.GetStationTemplate(stationID)
	if err != nil {
		return nil, fmt.Errorf("fetch station %d: %w", stationID, err)
	}

	if !opts.SkipValidation {
		res, err := s.validator.ValidateStationProgression(module, target, ProgressionOptions{
			AllowBackward: opts.AllowBackward,
			IsRework:      opts.IsRework,
		})
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return res, nil
		}

		if len(crewIDs) > 0 || leadID != nil {
			res, err = s.validator.ValidateCrewSize(target, crewIDs, leadID)
			if err != nil {
				return nil, err
			}
			if !res.Valid {
				return res, nil
			}

			everyone := crewIDs
			if leadID != nil {
				everyone = append(append([]int{}, crewIDs...), *leadID)
			}
			certs, err := s.validator.ValidateCrewCertifications(everyone, stationID)
			if err != nil {
				return nil, err
			}
			if !certs.Valid {
				return models.Invalid(models.CodeNotCertified,
					"crew not certified for %s: %s", target.Name, strings.Join(certs.Messages(), "; ")).
					WithDetail("invalid_workers", certs.Invalid).
					WithDetail("valid_workers", certs.ValidIDs), nil
			}
		}
	}

	fields := map[string]interface{}{
		"status":             string(models.StatusInQueue),
		"current_station_id": stationID,
	}
	if err := s.store.UpdateModule(moduleID, fields); err != nil {
		return nil, fmt.Errorf("update module %d: %w", moduleID, err)
	}

	crew := make([]int64, 0, len(crewIDs))
	for _, id := range crewIDs {
		crew = append(crew, int64(id))
	}
	assignmentID, err := s.store.CreateStationAssignment(&models.StationAssignment{
		ModuleID:  moduleID,
		StationID: stationID,
		LeadID:    leadID,
		CrewIDs:   crew,
		Status:    "active",
	})
	if err != nil {
		return nil, fmt.Errorf("create assignment for module %d: %w", moduleID, err)
	}

	return models.ValidOK().WithDetail("assignment_id", assignmentID), nil
}
