package db

import (
	"fmt"
	"strings"
)

// WorkflowEvent represents a row in the workflow_events table.
type WorkflowEvent struct {
	ID        int
	RunID     string
	Project   string
	Event     string
	Phase     string
	Attempt   int
	Detail    string
	Timestamp string
}

// LogWorkflowEvent records a workflow lifecycle event.
func (d *DB) LogWorkflowEvent(runID string, project string, event string, phase string, attempt int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO workflow_events (run_id, project, event, phase, attempt, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, project, event, phase, attempt, detail,
	)
	if err != nil {
		return fmt.Errorf("log workflow event: %w", err)
	}
	return nil
}

// LogValidation records a validation result.
func (d *DB) LogValidation(runID string, project string, attempt int, grade int, valid bool, issues []string) error {
	_, err := d.conn.Exec(
		`INSERT INTO validation_results (run_id, project, attempt, grade, valid, issues) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, project, attempt, grade, valid, strings.Join(issues, "\n"),
	)
	if err != nil {
		return fmt.Errorf("log validation: %w", err)
	}
	return nil
}

// GetWorkflowHistory returns all events for a project, newest first.
func (d *DB) GetWorkflowHistory(project string) ([]WorkflowEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, project, event, COALESCE(phase, ''), COALESCE(attempt, 0), COALESCE(detail, ''), timestamp
		 FROM workflow_events WHERE project = ? ORDER BY timestamp DESC, id DESC`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow events: %w", err)
	}
	defer rows.Close()

	var events []WorkflowEvent
	for rows.Next() {
		var e WorkflowEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Project, &e.Event, &e.Phase, &e.Attempt, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
