package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Stats aggregates the recorded runs of one operation
type Stats struct {
	Resource      string      `json:"resource"`
	Label         string      `json:"label"`
	Total         int         `json:"total"`
	OK            int         `json:"ok"`
	Gone          int         `json:"gone"`
	Conflict      int         `json:"conflict"`
	Failed        int         `json:"failed"`
	AvgDurationMs float64     `json:"avgDurationMs"`
	MinDurationMs int64       `json:"minDurationMs"`
	MaxDurationMs int64       `json:"maxDurationMs"`
	StatusCodes   map[int]int `json:"statusCodes"`
	LastRun       time.Time   `json:"lastRun"`
}

// Stats groups the history by resource and operation, most recently run first.
// An empty resource covers every resource.
func (m *Manager) Stats(ctx context.Context, resource string) ([]Stats, error) {
	query := `
		WITH status_codes_agg AS (
			SELECT
				resource,
				label,
				json_group_object(CAST(status AS TEXT), count) AS status_codes_json
			FROM (
				SELECT resource, label, status, COUNT(*) AS count
				FROM operations
				WHERE ? = '' OR resource = ?
				GROUP BY resource, label, status
			)
			GROUP BY resource, label
		)
		SELECT
			o.resource,
			o.label,
			COUNT(*) AS total,
			SUM(CASE WHEN o.outcome = 'ok' THEN 1 ELSE 0 END) AS ok_count,
			SUM(CASE WHEN o.outcome = 'gone' THEN 1 ELSE 0 END) AS gone_count,
			SUM(CASE WHEN o.outcome = 'conflict' THEN 1 ELSE 0 END) AS conflict_count,
			SUM(CASE WHEN o.outcome = 'failed' THEN 1 ELSE 0 END) AS failed_count,
			AVG(o.duration_ms) AS avg_duration,
			MIN(o.duration_ms) AS min_duration,
			MAX(o.duration_ms) AS max_duration,
			MAX(o.timestamp) AS last_run,
			COALESCE(s.status_codes_json, '{}') AS status_codes_json
		FROM operations o
		LEFT JOIN status_codes_agg s ON o.resource = s.resource AND o.label = s.label
		WHERE ? = '' OR o.resource = ?
		GROUP BY o.resource, o.label
		ORDER BY last_run DESC, o.resource, o.label
	`

	rows, err := m.db.QueryContext(ctx, query, resource, resource, resource, resource)
	if err != nil {
		return nil, fmt.Errorf("failed to get history stats: %w", err)
	}
	defer rows.Close()

	statsList := make([]Stats, 0)
	for rows.Next() {
		var s Stats
		var lastRun sql.NullString
		var statusCodesJSON string

		err := rows.Scan(
			&s.Resource,
			&s.Label,
			&s.Total,
			&s.OK,
			&s.Gone,
			&s.Conflict,
			&s.Failed,
			&s.AvgDurationMs,
			&s.MinDurationMs,
			&s.MaxDurationMs,
			&lastRun,
			&statusCodesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}

		if lastRun.Valid {
			if parsed, err := time.ParseInLocation(timestampLayout, lastRun.String, time.UTC); err == nil {
				s.LastRun = parsed.Local()
			}
		}

		var codes map[string]int
		if err := json.Unmarshal([]byte(statusCodesJSON), &codes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status codes: %w", err)
		}
		s.StatusCodes = make(map[int]int, len(codes))
		for codeStr, count := range codes {
			if code, err := strconv.Atoi(codeStr); err == nil {
				s.StatusCodes[code] = count
			}
		}

		statsList = append(statsList, s)
	}

	return statsList, rows.Err()
}
