package storage

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"modtrack/models"
	"modtrack/utils"
)

// Store implements the read and write collaborators consumed by the
// validation engine, the module state machine and the sync engine, over the
// business tables.
type Store struct {
	db *sql.DB
}

// NewStore wraps a business database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetModule fetches a module by id.
func (s *Store) GetModule(id int) (*models.Module, error) {
	ctx, cancel := utils.GetFastQueryContext(nil)
	defer cancel()

	query := `
		SELECT id, serial_number, sequence_number, project_id, factory_id, status,
		       current_station_id, is_rush, scheduled_start, scheduled_end,
		       actual_start, actual_end, long_lead_refs, archived, created_at, updated_at
		FROM modules WHERE id = $1`

	var m models.Module
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.SerialNumber, &m.SequenceNumber, &m.ProjectID, &m.FactoryID, &m.Status,
		&m.CurrentStationID, &m.IsRush, &m.ScheduledStart, &m.ScheduledEnd,
		&m.ActualStart, &m.ActualEnd, &m.LongLeadRefs, &m.Archived, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetModulesByProject lists the non-archived modules of a project in sequence order.
func (s *Store) GetModulesByProject(projectID int) ([]models.Module, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		SELECT id, serial_number, sequence_number, project_id, factory_id, status,
		       current_station_id, is_rush, scheduled_start, scheduled_end,
		       actual_start, actual_end, long_lead_refs, archived, created_at, updated_at
		FROM modules WHERE project_id = $1 AND archived = false
		ORDER BY sequence_number`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []models.Module
	for rows.Next() {
		var m models.Module
		if err := rows.Scan(
			&m.ID, &m.SerialNumber, &m.SequenceNumber, &m.ProjectID, &m.FactoryID, &m.Status,
			&m.CurrentStationID, &m.IsRush, &m.ScheduledStart, &m.ScheduledEnd,
			&m.ActualStart, &m.ActualEnd, &m.LongLeadRefs, &m.Archived, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// CreateModule inserts a module row. Serial and sequence numbers come from
// the caller; new modules start unplaced.
func (s *Store) CreateModule(m *models.Module) (int, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		INSERT INTO modules (serial_number, sequence_number, project_id, factory_id, status,
		                     is_rush, scheduled_start, scheduled_end, long_lead_refs,
		                     archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, NOW(), NOW())
		RETURNING id`

	var id int
	err := s.db.QueryRowContext(ctx, query,
		m.SerialNumber, m.SequenceNumber, m.ProjectID, m.FactoryID, m.Status,
		m.IsRush, m.ScheduledStart, m.ScheduledEnd, m.LongLeadRefs,
	).Scan(&id)
	return id, err
}

// UpdateModule applies a partial update to a module row. Field names are the
// column names; the caller is trusted to pass valid columns.
func (s *Store) UpdateModule(id int, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update for module %d", id)
	}

	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var updates []string
	var args []interface{}
	for i, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, fields[col])
	}
	updates = append(updates, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE modules SET %s WHERE id = $%d", strings.Join(updates, ", "), len(args))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetStationTemplate fetches a station template by id.
func (s *Store) GetStationTemplate(id int) (*models.StationTemplate, error) {
	ctx, cancel := utils.GetFastQueryContext(nil)
	defer cancel()

	query := `
		SELECT id, factory_id, name, order_num, requires_inspection,
		       min_crew_size, max_crew_size, is_active
		FROM station_templates WHERE id = $1`

	var st models.StationTemplate
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&st.ID, &st.FactoryID, &st.Name, &st.OrderNum, &st.RequiresInspection,
		&st.MinCrewSize, &st.MaxCrewSize, &st.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetActiveStationsByFactory lists the active line positions in order.
func (s *Store) GetActiveStationsByFactory(factoryID int) ([]models.StationTemplate, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		SELECT id, factory_id, name, order_num, requires_inspection,
		       min_crew_size, max_crew_size, is_active
		FROM station_templates WHERE factory_id = $1 AND is_active = true
		ORDER BY order_num`

	rows, err := s.db.QueryContext(ctx, query, factoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.StationTemplate
	for rows.Next() {
		var st models.StationTemplate
		if err := rows.Scan(
			&st.ID, &st.FactoryID, &st.Name, &st.OrderNum, &st.RequiresInspection,
			&st.MinCrewSize, &st.MaxCrewSize, &st.IsActive,
		); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// CreateStationTemplate inserts a new line position.
func (s *Store) CreateStationTemplate(st *models.StationTemplate) (int, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		INSERT INTO station_templates (factory_id, name, order_num, requires_inspection,
		                               min_crew_size, max_crew_size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int
	err := s.db.QueryRowContext(ctx, query,
		st.FactoryID, st.Name, st.OrderNum, st.RequiresInspection,
		st.MinCrewSize, st.MaxCrewSize, st.IsActive,
	).Scan(&id)
	return id, err
}

// UpdateStationTemplate applies a partial update to a station template.
func (s *Store) UpdateStationTemplate(id int, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update for station %d", id)
	}

	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var updates []string
	var args []interface{}
	for i, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, fields[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE station_templates SET %s WHERE id = $%d", strings.Join(updates, ", "), len(args))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// GetLatestQCRecord returns the authoritative (most recent) QC record for a
// (module, station) pair, or nil when none exists.
func (s *Store) GetLatestQCRecord(moduleID, stationID int) (*models.QCRecord, error) {
	ctx, cancel := utils.GetFastQueryContext(nil)
	defer cancel()

	query := `
		SELECT id, module_id, station_id, inspector_id, status, passed,
		       checklist_results, defects_found, rework_required, rework_completed,
		       photo_urls, COALESCE(client_action_id, ''), created_at
		FROM qc_records
		WHERE module_id = $1 AND station_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var rec models.QCRecord
	err := s.db.QueryRowContext(ctx, query, moduleID, stationID).Scan(
		&rec.ID, &rec.ModuleID, &rec.StationID, &rec.InspectorID, &rec.Status, &rec.Passed,
		&rec.ChecklistResults, &rec.DefectsFound, &rec.ReworkRequired, &rec.ReworkCompleted,
		&rec.PhotoURLs, &rec.ClientActionID, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetQCRecordsForModule returns a module's full inspection history, newest first.
func (s *Store) GetQCRecordsForModule(moduleID int) ([]models.QCRecord, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		SELECT id, module_id, station_id, inspector_id, status, passed,
		       checklist_results, defects_found, rework_required, rework_completed,
		       photo_urls, COALESCE(client_action_id, ''), created_at
		FROM qc_records WHERE module_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.QCRecord
	for rows.Next() {
		var rec models.QCRecord
		if err := rows.Scan(
			&rec.ID, &rec.ModuleID, &rec.StationID, &rec.InspectorID, &rec.Status, &rec.Passed,
			&rec.ChecklistResults, &rec.DefectsFound, &rec.ReworkRequired, &rec.ReworkCompleted,
			&rec.PhotoURLs, &rec.ClientActionID, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreateQCRecord appends an inspection record. client_action_id is the
// client-generated idempotency key: replaying the same offline action hits
// the unique index and returns the already-created record instead of a
// duplicate.
func (s *Store) CreateQCRecord(rec *models.QCRecord) (int, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		INSERT INTO qc_records (module_id, station_id, inspector_id, status, passed,
		                        checklist_results, defects_found, rework_required,
		                        rework_completed, photo_urls, client_action_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (client_action_id) DO NOTHING
		RETURNING id`

	var id int
	err := s.db.QueryRowContext(ctx, query,
		rec.ModuleID, rec.StationID, rec.InspectorID, rec.Status, rec.Passed,
		rec.ChecklistResults, rec.DefectsFound, rec.ReworkRequired,
		rec.ReworkCompleted, rec.PhotoURLs, nullIfEmpty(rec.ClientActionID), time.Now(),
	).Scan(&id)
	if err == sql.ErrNoRows && rec.ClientActionID != "" {
		// Replay of an action that already succeeded once.
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM qc_records WHERE client_action_id = $1`,
			rec.ClientActionID,
		).Scan(&id)
	}
	return id, err
}

// MarkReworkCompleted flags the rework on a QC record as done. Records are
// otherwise immutable; re-inspection appends a new record.
func (s *Store) MarkReworkCompleted(recordID int) error {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE qc_records SET rework_completed = true WHERE id = $1 AND rework_required = true`,
		recordID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AttachPhoto appends an uploaded photo URL to the QC record created by the
// given offline action. Returns sql.ErrNoRows when no record carries the key.
func (s *Store) AttachPhoto(clientActionID, publicURL string) error {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE qc_records
		 SET photo_urls = array_append(COALESCE(photo_urls, '{}'), $2)
		 WHERE client_action_id = $1`,
		clientActionID, publicURL,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateStationAssignment records a crew assignment for a station visit.
func (s *Store) CreateStationAssignment(a *models.StationAssignment) (int, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		INSERT INTO station_assignments (module_id, station_id, lead_id, crew_ids, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int
	err := s.db.QueryRowContext(ctx, query,
		a.ModuleID, a.StationID, a.LeadID, a.CrewIDs, a.Status, time.Now(),
	).Scan(&id)
	return id, err
}

// GetWorker fetches a worker by id, or nil when unknown.
func (s *Store) GetWorker(id int) (*models.Worker, error) {
	ctx, cancel := utils.GetFastQueryContext(nil)
	defer cancel()

	query := `SELECT id, name, primary_station_id, is_lead, is_active FROM workers WHERE id = $1`

	var w models.Worker
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID, &w.Name, &w.PrimaryStationID, &w.IsLead, &w.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetActiveCrossTraining returns the active cross-training record for a
// (worker, station) pair, or nil when none exists.
func (s *Store) GetActiveCrossTraining(workerID, stationID int) (*models.CrossTraining, error) {
	ctx, cancel := utils.GetFastQueryContext(nil)
	defer cancel()

	query := `
		SELECT id, worker_id, station_id, proficiency_level, certified_at, expires_at, is_active
		FROM cross_trainings
		WHERE worker_id = $1 AND station_id = $2 AND is_active = true
		ORDER BY certified_at DESC
		LIMIT 1`

	var ct models.CrossTraining
	err := s.db.QueryRowContext(ctx, query, workerID, stationID).Scan(
		&ct.ID, &ct.WorkerID, &ct.StationID, &ct.ProficiencyLevel,
		&ct.CertifiedAt, &ct.ExpiresAt, &ct.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

// CreateInventoryReceipt records a material receipt, idempotent on the
// client action id.
func (s *Store) CreateInventoryReceipt(r *models.InventoryReceipt) (int, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		INSERT INTO inventory_receipts (factory_id, item_code, quantity, received_by, client_action_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_action_id) DO NOTHING
		RETURNING id`

	receivedAt := r.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	var id int
	err := s.db.QueryRowContext(ctx, query,
		r.FactoryID, r.ItemCode, r.Quantity, r.ReceivedBy, nullIfEmpty(r.ClientActionID), receivedAt,
	).Scan(&id)
	if err == sql.ErrNoRows && r.ClientActionID != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM inventory_receipts WHERE client_action_id = $1`,
			r.ClientActionID,
		).Scan(&id)
	}
	return id, err
}

// ClockIn opens a shift entry, idempotent on the client action id.
func (s *Store) ClockIn(e *models.ShiftEntry) (int, error) {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	query := `
		INSERT INTO shift_entries (worker_id, station_id, clock_in, client_action_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_action_id) DO NOTHING
		RETURNING id`

	var id int
	err := s.db.QueryRowContext(ctx, query,
		e.WorkerID, e.StationID, e.ClockIn, nullIfEmpty(e.ClientActionID),
	).Scan(&id)
	if err == sql.ErrNoRows && e.ClientActionID != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM shift_entries WHERE client_action_id = $1`,
			e.ClientActionID,
		).Scan(&id)
	}
	return id, err
}

// ClockOut closes the worker's open shift entry. Closing an already-closed
// shift is a no-op, which keeps replays harmless.
func (s *Store) ClockOut(workerID int, at time.Time) error {
	ctx, cancel := utils.GetDefaultQueryContext(nil)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE shift_entries SET clock_out = $2
		WHERE worker_id = $1 AND clock_out IS NULL`,
		workerID, at,
	)
	return err
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
