package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

// Postgres implements Repository over database/sql with the pgx driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the Postgres-backed attendance repository.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Insert writes a record, relying on the (student_id, attended_on) unique
// index to serialize duplicate same-day writers. The second writer gets
// ErrAlreadyMarked; the first record is never touched.
func (r *Postgres) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, attended_on, status, marked_by)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.AttendedOn, rec.Status, rec.MarkedBy)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrAlreadyMarked
		}
		return Record{}, err
	}
	return rec, nil
}

// SetStatus inserts or overrides the record for (student, day). Used only by
// the teacher correction path.
func (r *Postgres) SetStatus(ctx context.Context, studentID string, day time.Time, status Status, markedBy string) (Record, error) {
	rec := Record{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		AttendedOn: day,
		Status:     status,
		MarkedBy:   &markedBy,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, attended_on, status, marked_by)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (student_id, attended_on) DO UPDATE SET
			status = EXCLUDED.status,
			marked_by = EXCLUDED.marked_by
		RETURNING id, created_at
	`, rec.ID, rec.StudentID, rec.AttendedOn, rec.Status, rec.MarkedBy)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Postgres) ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, attended_on, status, marked_by, created_at
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY attended_on DESC
		LIMIT $2 OFFSET $3
	`, studentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.AttendedOn, &rec.Status, &rec.MarkedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r *Postgres) CountAttended(ctx context.Context, studentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records
		WHERE student_id = $1 AND status IN ('present', 'late')
	`, studentID).Scan(&n)
	return n, err
}

func (r *Postgres) StudentsWithoutRecord(ctx context.Context, yearLevel int, day time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id FROM students s
		WHERE s.year_level = $1
		AND NOT EXISTS (
			SELECT 1 FROM attendance_records ar
			WHERE ar.student_id = s.id AND ar.attended_on = $2
		)
	`, yearLevel, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
