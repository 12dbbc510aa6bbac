package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ModuleStatus is the production status of a module on the line.
type ModuleStatus string

const (
	StatusNotStarted ModuleStatus = "not_started"
	StatusInQueue    ModuleStatus = "in_queue"
	StatusInProgress ModuleStatus = "in_progress"
	StatusQCHold     ModuleStatus = "qc_hold"
	StatusRework     ModuleStatus = "rework"
	StatusCompleted  ModuleStatus = "completed"
	StatusStaged     ModuleStatus = "staged"
	StatusShipped    ModuleStatus = "shipped"
)

// StatusTransitions is the directed status graph. Shipped is terminal.
var StatusTransitions = map[ModuleStatus][]ModuleStatus{
	StatusNotStarted: {StatusInQueue, StatusInProgress},
	StatusInQueue:    {StatusInProgress, StatusNotStarted},
	StatusInProgress: {StatusQCHold, StatusCompleted, StatusInQueue, StatusRework},
	StatusQCHold:     {StatusInProgress, StatusRework, StatusCompleted},
	StatusRework:     {StatusInProgress, StatusInQueue, StatusQCHold},
	StatusCompleted:  {StatusStaged, StatusShipped},
	StatusStaged:     {StatusShipped, StatusCompleted},
	StatusShipped:    {},
}

// CanTransitionTo reports whether next is in the adjacency set of s.
func (s ModuleStatus) CanTransitionTo(next ModuleStatus) bool {
	for _, n := range StatusTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// InspectionOrderNums are line positions that always carry an inspection hold,
// independent of the station's requires_inspection flag.
var InspectionOrderNums = map[int]bool{
	5:  true,
	10: true,
}

// Module is one physical production unit moving through factory stations.
type Module struct {
	ID               int            `json:"id"`
	SerialNumber     string         `json:"serial_number"`
	SequenceNumber   int            `json:"sequence_number"`
	ProjectID        int            `json:"project_id"`
	FactoryID        int            `json:"factory_id"`
	Status           ModuleStatus   `json:"status"`
	CurrentStationID *int           `json:"current_station_id,omitempty"`
	IsRush           bool           `json:"is_rush"`
	ScheduledStart   *time.Time     `json:"scheduled_start,omitempty"`
	ScheduledEnd     *time.Time     `json:"scheduled_end,omitempty"`
	ActualStart      *time.Time     `json:"actual_start,omitempty"`
	ActualEnd        *time.Time     `json:"actual_end,omitempty"`
	LongLeadRefs     pq.StringArray `json:"long_lead_refs,omitempty" swaggertype:"array,string"`
	Archived         bool           `json:"archived"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// StationTemplate is a position on the production line. order_num strictly
// orders progression; exactly one active template per order_num per factory.
type StationTemplate struct {
	ID                 int    `json:"id"`
	FactoryID          int    `json:"factory_id"`
	Name               string `json:"name"`
	OrderNum           int    `json:"order_num"`
	RequiresInspection bool   `json:"requires_inspection"`
	MinCrewSize        int    `json:"min_crew_size"`
	MaxCrewSize        int    `json:"max_crew_size"`
	IsActive           bool   `json:"is_active"`
}

// InspectionRequired reports whether leaving this station needs a QC gate,
// either by flag or by line position.
func (s *StationTemplate) InspectionRequired() bool {
	return s.RequiresInspection || InspectionOrderNums[s.OrderNum]
}

// QCStatus is the outcome recorded on an inspection.
type QCStatus string

const (
	QCPending QCStatus = "pending"
	QCPassed  QCStatus = "passed"
	QCFailed  QCStatus = "failed"
)

// QCRecord is an inspection outcome. The latest record per (module, station)
// is authoritative for gating; older records are history.
type QCRecord struct {
	ID               int            `json:"id"`
	ModuleID         int            `json:"module_id"`
	StationID        int            `json:"station_id"`
	InspectorID      int            `json:"inspector_id"`
	Status           QCStatus       `json:"status"`
	Passed           bool           `json:"passed"`
	ChecklistResults string         `json:"checklist_results,omitempty"`
	DefectsFound     string         `json:"defects_found,omitempty"`
	ReworkRequired   bool           `json:"rework_required"`
	ReworkCompleted  bool           `json:"rework_completed"`
	PhotoURLs        pq.StringArray `json:"photo_urls,omitempty" swaggertype:"array,string"`
	ClientActionID   string         `json:"client_action_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// StationAssignment is the crew assigned to a module at a station. One active
// assignment per (module, station) visit.
type StationAssignment struct {
	ID        int           `json:"id"`
	ModuleID  int           `json:"module_id"`
	StationID int           `json:"station_id"`
	LeadID    *int          `json:"lead_id,omitempty"`
	CrewIDs   pq.Int64Array `json:"crew_ids" swaggertype:"array,integer"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Worker is a factory floor worker.
type Worker struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	PrimaryStationID *int   `json:"primary_station_id,omitempty"`
	IsLead           bool   `json:"is_lead"`
	IsActive         bool   `json:"is_active"`
}

// CrossTraining certifies a worker for a station other than their primary one.
type CrossTraining struct {
	ID               int        `json:"id"`
	WorkerID         int        `json:"worker_id"`
	StationID        int        `json:"station_id"`
	ProficiencyLevel int        `json:"proficiency_level"`
	CertifiedAt      time.Time  `json:"certified_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	IsActive         bool       `json:"is_active"`
}

// InventoryReceipt records material received on the floor.
type InventoryReceipt struct {
	ID             int       `json:"id"`
	FactoryID      int       `json:"factory_id"`
	ItemCode       string    `json:"item_code"`
	Quantity       float64   `json:"quantity"`
	ReceivedBy     int       `json:"received_by"`
	ClientActionID string    `json:"client_action_id,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// ShiftEntry is one worker clock-in/out pair.
type ShiftEntry struct {
	ID             int        `json:"id"`
	WorkerID       int        `json:"worker_id"`
	StationID      *int       `json:"station_id,omitempty"`
	ClockIn        time.Time  `json:"clock_in"`
	ClockOut       *time.Time `json:"clock_out,omitempty"`
	ClientActionID string     `json:"client_action_id,omitempty"`
}

// ValidationCode identifies why a validation check rejected an operation.
type ValidationCode string

const (
	CodeInvalidTransition    ValidationCode = "InvalidTransition"
	CodeMissingStation       ValidationCode = "MissingStation"
	CodeStationSkipped       ValidationCode = "StationSkipped"
	CodeBackwardNotAllowed   ValidationCode = "BackwardNotAllowed"
	CodeStationInactive      ValidationCode = "StationInactive"
	CodeQCRequired           ValidationCode = "QCRequired"
	CodeQCFailed             ValidationCode = "QCFailed"
	CodeCrewTooSmall         ValidationCode = "CrewTooSmall"
	CodeCrewTooLarge         ValidationCode = "CrewTooLarge"
	CodeNotALead             ValidationCode = "NotALead"
	CodeLeadInactive         ValidationCode = "LeadInactive"
	CodeNotCertified         ValidationCode = "NotCertified"
	CodeCertificationExpired ValidationCode = "CertificationExpired"
)

// ValidationResult is the structured outcome of a validation check. Validators
// never abort on a business rule; callers decide whether to hard-fail or
// surface the reason to an operator.
type ValidationResult struct {
	Valid   bool                   `json:"valid"`
	Code    ValidationCode         `json:"code,omitempty"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidOK returns a passing result.
func ValidOK() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// Invalid returns a failing result with the given code and message.
func Invalid(code ValidationCode, format string, args ...interface{}) *ValidationResult {
	return &ValidationResult{
		Valid:   false,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail attaches a detail entry and returns the result for chaining.
func (r *ValidationResult) WithDetail(key string, value interface{}) *ValidationResult {
	if r.Details == nil {
		r.Details = map[string]interface{}{}
	}
	r.Details[key] = value
	return r
}

// WorkerFault is one invalid crew member from a batch certification check.
type WorkerFault struct {
	WorkerID int            `json:"worker_id"`
	Code     ValidationCode `json:"code"`
	Message  string         `json:"message"`
}

// CrewCertification partitions a crew into valid and invalid workers. The
// batch check never short-circuits, so every offending worker is reported.
type CrewCertification struct {
	Valid    bool          `json:"valid"`
	ValidIDs []int         `json:"valid_ids"`
	Invalid  []WorkerFault `json:"invalid"`
}

// Messages aggregates the per-worker failure messages.
func (c *CrewCertification) Messages() []string {
	msgs := make([]string, 0, len(c.Invalid))
	for _, f := range c.Invalid {
		msgs = append(msgs, f.Message)
	}
	return msgs
}

// Session mirrors one row of the session table.
type Session struct {
	UserID    int       `json:"user_id"`
	SessionID string    `json:"session_id"`
	HostName  string    `json:"host_name"`
	IPAddress string    `json:"ip_address"`
	Timestamp time.Time `json:"timestp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActivityLog is one audit trail entry.
type ActivityLog struct {
	ID           int       `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UserName     string    `json:"user_name"`
	HostName     string    `json:"host_name"`
	EventContext string    `json:"event_context"`
	IPAddress    string    `json:"ip_address"`
	Description  string    `json:"description"`
	EventName    string    `json:"event_name"`
	ProjectID    int       `json:"project_id"`
}
