package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Postgres implements Repository over database/sql.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the Postgres-backed session repository.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (r *Postgres) Insert(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, code, subject, teacher_id, year_level, anchor_lat, anchor_lng, started_at, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.ID, s.Code, s.Subject, s.TeacherID, s.YearLevel, s.AnchorLat, s.AnchorLng, s.StartedAt, s.Active)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *Postgres) GetByCode(ctx context.Context, code string) (Session, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, code, subject, teacher_id, year_level, anchor_lat, anchor_lng, started_at, ended_at, active
		FROM attendance_sessions WHERE code = $1
	`, code))
}

func (r *Postgres) GetByID(ctx context.Context, id string) (Session, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, code, subject, teacher_id, year_level, anchor_lat, anchor_lng, started_at, ended_at, active
		FROM attendance_sessions WHERE id = $1
	`, id))
}

func (r *Postgres) scanOne(row *sql.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Code, &s.Subject, &s.TeacherID, &s.YearLevel,
		&s.AnchorLat, &s.AnchorLng, &s.StartedAt, &s.EndedAt, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Close flips active to false once. The WHERE active guard keeps repeat
// closes from touching ended_at, so the first end timestamp is the record.
func (r *Postgres) Close(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET active = FALSE, ended_at = $2
		WHERE id = $1 AND active
	`, id, endedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish "already closed" from "never existed".
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

func (r *Postgres) ListByTeacher(ctx context.Context, teacherID string, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, subject, teacher_id, year_level, anchor_lat, anchor_lng, started_at, ended_at, active
		FROM attendance_sessions
		WHERE teacher_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, teacherID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Code, &s.Subject, &s.TeacherID, &s.YearLevel,
			&s.AnchorLat, &s.AnchorLng, &s.StartedAt, &s.EndedAt, &s.Active); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Postgres) CountDays(ctx context.Context, yearLevel int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT (started_at AT TIME ZONE 'Asia/Kolkata')::date)
		FROM attendance_sessions WHERE year_level = $1
	`, yearLevel).Scan(&n)
	return n, err
}
