package repository

import (
	"database/sql"
	"fmt"
	"strings"
)

// GenerateModuleSerial builds a module serial number in the format
// "PREFIX/PROJECTCODE/0001". The sequence number is zero-padded to four
// digits so labels sort correctly.
func GenerateModuleSerial(prefix, projectCode string, sequenceNumber int) string {
	formattedPrefix := strings.ToUpper(prefix)
	formattedSequence := fmt.Sprintf("%04d", sequenceNumber)

	return formattedPrefix + "/" + projectCode + "/" + formattedSequence
}

// NextSequenceNumber returns the next module sequence number for a project.
func NextSequenceNumber(db *sql.DB, projectID int) (int, error) {
	var max sql.NullInt64
	err := db.QueryRow(
		`SELECT MAX(sequence_number) FROM modules WHERE project_id = $1`,
		projectID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch max sequence for project %d: %w", projectID, err)
	}
	return int(max.Int64) + 1, nil
}

// FetchProjectCode retrieves the serial prefix configured on a project.
func FetchProjectCode(db *sql.DB, projectID int) (string, error) {
	var code string
	err := db.QueryRow(`SELECT code FROM project WHERE project_id = $1`, projectID).Scan(&code)
	if err != nil {
		return "", fmt.Errorf("failed to fetch project code for project %d: %w", projectID, err)
	}
	return code, nil
}
