package store

import (
	"database/sql"
	"fmt"

	"github.com/aera-procure/apollobot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanTurns reads all turns from a result set.
func scanTurns(rows *sql.Rows) ([]models.Turn, error) {
	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var userID sql.NullString
		if err := rows.Scan(&t.ConversationID, &userID, &t.Inbound, &t.Outbound, &t.Time); err != nil {
			return nil, fmt.Errorf("scan turn failed: %w", err)
		}
		t.UserID = userID.String
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}
