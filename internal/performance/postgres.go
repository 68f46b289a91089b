package performance

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Postgres implements Repository over database/sql.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the Postgres-backed performance repository.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// column maps a component to its column. Components are validated upstream;
// this is the only place a component name reaches SQL.
func column(c Component) (string, error) {
	switch c {
	case Midterm1:
		return "midterm1", nil
	case Midterm2:
		return "midterm2", nil
	case EndTerm:
		return "endterm", nil
	case Assignment:
		return "assignment", nil
	}
	return "", fmt.Errorf("unknown component %q", c)
}

// Publish is a single-statement compare-and-set: the row is created empty on
// first touch, then the component column is written only while NULL. Two
// concurrent publishers serialize in the store; the loser sees zero rows and
// gets ErrAlreadyPublished.
func (r *Postgres) Publish(ctx context.Context, studentID, subject string, c Component, value float64) error {
	col, err := column(c)
	if err != nil {
		return err
	}
	if err := r.ensureRow(ctx, studentID, subject); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE performance_records
		SET %s = $3, updated_at = NOW()
		WHERE student_id = $1 AND subject = $2 AND %s IS NULL
	`, col, col), studentID, subject, value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyPublished
	}
	return nil
}

func (r *Postgres) ensureRow(ctx context.Context, studentID, subject string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO performance_records (id, student_id, subject)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, subject) DO NOTHING
	`, uuid.NewString(), studentID, subject)
	return err
}

func (r *Postgres) SetEngagement(ctx context.Context, studentID, subject string, value float64) error {
	if err := r.ensureRow(ctx, studentID, subject); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE performance_records
		SET engagement = $3, updated_at = NOW()
		WHERE student_id = $1 AND subject = $2
	`, studentID, subject, value)
	return err
}

func (r *Postgres) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, subject, midterm1, midterm2, endterm, assignment, engagement
		FROM performance_records
		WHERE student_id = $1
		ORDER BY subject
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.StudentID, &rec.Subject, &rec.Midterm1, &rec.Midterm2, &rec.EndTerm, &rec.Assignment, &rec.Engagement); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
