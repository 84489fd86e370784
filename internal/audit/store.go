package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Schema for the append-only security event log. Events are ordered by their
// own timestamp, not by arrival order.
const schema = `
CREATE TABLE IF NOT EXISTS security_events (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    level TEXT NOT NULL,
    event_type TEXT NOT NULL,
    category TEXT NOT NULL,
    risk TEXT NOT NULL,
    ip TEXT NOT NULL,
    user_agent TEXT,
    email TEXT,
    details TEXT
);

CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events(created_at);
CREATE INDEX IF NOT EXISTS idx_security_events_risk ON security_events(risk);
CREATE INDEX IF NOT EXISTS idx_security_events_category ON security_events(category);
CREATE INDEX IF NOT EXISTS idx_security_events_ip ON security_events(ip);
CREATE INDEX IF NOT EXISTS idx_security_events_email ON security_events(email);
`

// Stats aggregates event counts over a time window.
type Stats struct {
	Since   time.Time         `json:"since"`
	Total   int               `json:"total"`
	ByLevel map[Level]int     `json:"byLevel"`
	ByType  map[EventType]int `json:"byType"`
	ByRisk  map[Risk]int      `json:"byRisk"`
}

// Store persists security events in SQLite and serves the admin query surface.
type Store struct {
	db *sql.DB
}

// NewStore creates the schema if needed. The *sql.DB may be shared with the
// credential store; SQLite serializes the appends.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Append inserts one event. It is the sink behind the Recorder.
func (s *Store) Append(ctx context.Context, e Event) error {
	var details []byte
	if e.Details != nil {
		details, _ = json.Marshal(e.Details)
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO security_events (
            id, created_at, level, event_type, category, risk,
            ip, user_agent, email, details
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, e.ID, e.Timestamp, e.Level, e.Type, e.Category, e.Risk,
		e.IP, e.UserAgent, e.Email, string(details))
	return err
}

// List returns a page of events, newest first, with the total count.
func (s *Store) List(ctx context.Context, page, perPage int) ([]Event, int, error) {
	return s.query(ctx, "", nil, page, perPage)
}

// HighRisk returns a page of HIGH-risk events.
func (s *Store) HighRisk(ctx context.Context, page, perPage int) ([]Event, int, error) {
	return s.query(ctx, "risk = ?", []any{string(RiskHigh)}, page, perPage)
}

// ByCategory returns a page of events in the given category (csrf|auth).
func (s *Store) ByCategory(ctx context.Context, category string, page, perPage int) ([]Event, int, error) {
	return s.query(ctx, "category = ?", []any{category}, page, perPage)
}

// ByIP returns a page of events from the given actor IP.
func (s *Store) ByIP(ctx context.Context, ip string, page, perPage int) ([]Event, int, error) {
	return s.query(ctx, "ip = ?", []any{ip}, page, perPage)
}

// ByEmail returns a page of events attached to the given user email.
func (s *Store) ByEmail(ctx context.Context, email string, page, perPage int) ([]Event, int, error) {
	return s.query(ctx, "email = ?", []any{email}, page, perPage)
}

func (s *Store) query(ctx context.Context, where string, args []any, page, perPage int) ([]Event, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	countSQL := "SELECT COUNT(*) FROM security_events"
	listSQL := `SELECT id, created_at, level, event_type, category, risk,
	       ip, user_agent, email, details FROM security_events`
	if where != "" {
		countSQL += " WHERE " + where
		listSQL += " WHERE " + where
	}
	listSQL += " ORDER BY created_at DESC LIMIT ? OFFSET ?"

	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)
	rows, err := s.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]Event, 0, perPage)
	for rows.Next() {
		var e Event
		var userAgent, email, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Type, &e.Category,
			&e.Risk, &e.IP, &userAgent, &email, &details); err != nil {
			return nil, 0, err
		}
		e.UserAgent = userAgent.String
		e.Email = email.String
		if details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &e.Details)
		}
		events = append(events, e)
	}

	return events, total, rows.Err()
}

// StatsSince aggregates counts by level, type, and risk for events at or after
// the given time.
func (s *Store) StatsSince(ctx context.Context, since time.Time) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT level, event_type, risk, COUNT(*)
        FROM security_events
        WHERE created_at >= ?
        GROUP BY level, event_type, risk
    `, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &Stats{
		Since:   since,
		ByLevel: make(map[Level]int),
		ByType:  make(map[EventType]int),
		ByRisk:  make(map[Risk]int),
	}
	for rows.Next() {
		var level Level
		var typ EventType
		var risk Risk
		var count int
		if err := rows.Scan(&level, &typ, &risk, &count); err != nil {
			return nil, err
		}
		stats.ByLevel[level] += count
		stats.ByType[typ] += count
		stats.ByRisk[risk] += count
		stats.Total += count
	}

	return stats, rows.Err()
}
