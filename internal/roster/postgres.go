package roster

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
)

// Postgres implements Repository over database/sql.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the Postgres-backed roster repository.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (r *Postgres) GetStudent(ctx context.Context, id string) (Student, error) {
	return r.scanStudent(r.db.QueryRowContext(ctx, `
		SELECT id, reg_no, name, department, year_level, password_hash
		FROM students WHERE id = $1
	`, id))
}

func (r *Postgres) GetStudentByRegNo(ctx context.Context, regNo string) (Student, error) {
	return r.scanStudent(r.db.QueryRowContext(ctx, `
		SELECT id, reg_no, name, department, year_level, password_hash
		FROM students WHERE reg_no = $1
	`, regNo))
}

func (r *Postgres) scanStudent(row *sql.Row) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.RegNo, &s.Name, &s.Department, &s.YearLevel, &s.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	if err != nil {
		return Student{}, err
	}
	return s, nil
}

func (r *Postgres) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return r.scanTeacher(r.db.QueryRowContext(ctx, `
		SELECT id, staff_no, name, subject, years, is_admin, password_hash
		FROM teachers WHERE id = $1
	`, id))
}

func (r *Postgres) GetTeacherByStaffNo(ctx context.Context, staffNo string) (Teacher, error) {
	return r.scanTeacher(r.db.QueryRowContext(ctx, `
		SELECT id, staff_no, name, subject, years, is_admin, password_hash
		FROM teachers WHERE staff_no = $1
	`, staffNo))
}

func (r *Postgres) scanTeacher(row *sql.Row) (Teacher, error) {
	var t Teacher
	var years string
	err := row.Scan(&t.ID, &t.StaffNo, &t.Name, &t.Subject, &years, &t.IsAdmin, &t.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Teacher{}, ErrNotFound
	}
	if err != nil {
		return Teacher{}, err
	}
	t.Years = parseYears(years)
	return t, nil
}

// Taught years are stored as a comma-separated text column ("1,2,3").
func parseYears(s string) []int {
	var years []int
	for _, part := range strings.Split(s, ",") {
		if y, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			years = append(years, y)
		}
	}
	return years
}
