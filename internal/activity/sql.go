package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// sqliteTimeLayout keeps a fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLLog struct {
	db      *sql.DB
	dialect string
}

func NewSQLLog(db *sql.DB, dialect string) (*SQLLog, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	d := strings.ToLower(strings.TrimSpace(dialect))
	if d == "" {
		return nil, fmt.Errorf("empty dialect")
	}
	if d != "postgres" && d != "sqlite" {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	return &SQLLog{db: db, dialect: d}, nil
}

func (s *SQLLog) Append(ctx context.Context, entry Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	ctxJSON := []byte("{}")
	if len(entry.Context) > 0 {
		b, err := json.Marshal(entry.Context)
		if err != nil {
			return fmt.Errorf("encode activity context: %w", err)
		}
		ctxJSON = b
	}
	query := `INSERT INTO activity_log (id, level, message, tenant, context, created_at) VALUES (` +
		s.ph(1) + `, ` + s.ph(2) + `, ` + s.ph(3) + `, ` + s.ph(4) + `, ` + s.jsonPh(5) + `, ` + s.ph(6) + `)`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Level),
		entry.Message,
		nullable(entry.Tenant),
		string(ctxJSON),
		s.tsValue(entry.CreatedAt),
	)
	return err
}

func (s *SQLLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, level, message, tenant, CAST(context AS TEXT), created_at FROM activity_log ORDER BY created_at DESC, id DESC LIMIT ` + s.ph(1)
	rows, err := s.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			level   string
			tenant  sql.NullString
			ctxJSON string
			created interface{}
		)
		if err := rows.Scan(&e.ID, &level, &e.Message, &tenant, &ctxJSON, &created); err != nil {
			return nil, err
		}
		e.Level = Level(level)
		e.Tenant = tenant.String
		if ctxJSON != "" && ctxJSON != "{}" {
			if err := json.Unmarshal([]byte(ctxJSON), &e.Context); err != nil {
				return nil, fmt.Errorf("decode activity context %s: %w", e.ID, err)
			}
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, fmt.Errorf("decode activity time %s: %w", e.ID, err)
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLLog) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLLog) jsonPh(n int) string {
	if s.dialect == "postgres" {
		return s.ph(n) + "::jsonb"
	}
	return s.ph(n)
}

func (s *SQLLog) tsValue(t time.Time) interface{} {
	if s.dialect == "sqlite" {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func parseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

func nullable(in string) interface{} {
	if strings.TrimSpace(in) == "" {
		return nil
	}
	return in
}
