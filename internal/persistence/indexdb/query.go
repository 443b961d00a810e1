package indexdb

import (
	"context"
	"database/sql"
	"strings"
)

type TransitionRow struct {
	EventID     string `json:"event_id"`
	WorldID     string `json:"world_id"`
	Tick        int64  `json:"tick"`
	Kind        string `json:"kind"`
	EntityID    int64  `json:"entity_id"`
	DisplayName string `json:"display_name,omitempty"`
	OwnerID     int64  `json:"owner_id,omitempty"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	At          string `json:"at"`
}

type TransitionFilter struct {
	EntityID int64  // 0 = any
	Kind     string // "" = any
	Limit    int
}

// ListTransitions returns the newest transitions first.
func ListTransitions(ctx context.Context, db *sql.DB, f TransitionFilter) ([]TransitionRow, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	var (
		where []string
		args  []any
	)
	if f.EntityID != 0 {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, strings.ToUpper(f.Kind))
	}
	q := `SELECT event_id,world_id,tick,kind,entity_id,COALESCE(display_name,''),owner_id,outcome,COALESCE(reason,''),at FROM transitions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tick DESC, at DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransitionRow
	for rows.Next() {
		var r TransitionRow
		if err := rows.Scan(&r.EventID, &r.WorldID, &r.Tick, &r.Kind, &r.EntityID, &r.DisplayName, &r.OwnerID, &r.Outcome, &r.Reason, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type SessionRow struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	WorldID   string `json:"world_id"`
	Role      string `json:"role"`
	PlayerID  int64  `json:"player_id,omitempty"`
	HostName  string `json:"host_name,omitempty"`
	Tick      int64  `json:"tick"`
	At        string `json:"at"`
}

// ListSessions returns the newest session events first. playerID 0 matches
// every session.
func ListSessions(ctx context.Context, db *sql.DB, playerID int64, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT session_id,event,world_id,role,player_id,COALESCE(host_name,''),tick,at FROM sessions`
	var args []any
	if playerID != 0 {
		q += " WHERE player_id = ?"
		args = append(args, playerID)
	}
	q += " ORDER BY at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.SessionID, &r.Event, &r.WorldID, &r.Role, &r.PlayerID, &r.HostName, &r.Tick, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
