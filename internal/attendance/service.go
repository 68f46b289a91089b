// Package attendance records one attendance fact per student per calendar
// day. Live check-ins are gated by the session registry and the geo
// verifier; duplicate same-day marks are rejected by the storage layer's
// uniqueness constraint, which callers must treat as an expected outcome.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edutrack/internal/geo"
	"edutrack/internal/metrics"
	"edutrack/internal/risk"
	"edutrack/internal/session"
)

// Status of one attendance record.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
	Late    Status = "late"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s == Present || s == Absent || s == Late
}

// Record is one student's status on one calendar date.
type Record struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	AttendedOn time.Time `json:"attended_on"`
	Status     Status    `json:"status"`
	MarkedBy   *string   `json:"marked_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	// ErrSessionNotFound covers unknown, inactive, and stale-dated codes.
	ErrSessionNotFound = errors.New("invalid session code")
	// ErrAlreadyMarked means a record for (student, day) already exists.
	ErrAlreadyMarked = errors.New("already marked today")
	// ErrNotEligible means the student's year level does not match the
	// session's.
	ErrNotEligible = errors.New("session is not for your year")
)

// Repository persists attendance records.
type Repository interface {
	// Insert writes a new record and returns ErrAlreadyMarked when one
	// already exists for (student, day). The existing record is untouched.
	Insert(ctx context.Context, rec Record) (Record, error)
	// SetStatus is the teacher correction path: insert-or-override for a
	// (student, day), no uniqueness failure.
	SetStatus(ctx context.Context, studentID string, day time.Time, status Status, markedBy string) (Record, error)
	ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]Record, error)
	// CountAttended counts records with status present or late.
	CountAttended(ctx context.Context, studentID string) (int, error)
	// StudentsWithoutRecord lists ids of students at a year level with no
	// record for the day.
	StudentsWithoutRecord(ctx context.Context, yearLevel int, day time.Time) ([]string, error)
}

// SessionSource is the slice of the session registry the recorder needs.
type SessionSource interface {
	GetByCode(ctx context.Context, code string) (session.Session, error)
	CountDays(ctx context.Context, yearLevel int) (int, error)
}

// Recorder coordinates live check-ins, corrections, and aggregation.
type Recorder struct {
	repo         Repository
	sessions     SessionSource
	radiusMeters float64
	now          func() time.Time
}

// NewRecorder creates a recorder. A non-positive radius falls back to the
// fixed 50 m default.
func NewRecorder(repo Repository, sessions SessionSource, radiusMeters float64) *Recorder {
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultRadiusMeters
	}
	return &Recorder{repo: repo, sessions: sessions, radiusMeters: radiusMeters, now: time.Now}
}

// Mark performs a live check-in. Steps, in order: resolve the session by
// code (active, dated today, matching the student's year level), verify the
// reported location against the anchor, insert a present record for today's
// IST date. Each failure maps to one taxonomy error; none is retried
// server-side.
func (r *Recorder) Mark(ctx context.Context, studentID string, yearLevel int, code string, reported geo.Point) (Record, error) {
	sess, err := r.sessions.GetByCode(ctx, session.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			metrics.CheckinRejected("session")
			return Record{}, ErrSessionNotFound
		}
		return Record{}, err
	}
	today := session.DayOf(r.now())
	if !sess.Active {
		metrics.CheckinRejected("session")
		return Record{}, ErrSessionNotFound
	}
	// A stale active session from a prior day still exists in history but
	// cannot accept marks.
	if day, err := session.CodeDate(sess.Code); err != nil || !day.Equal(today) {
		metrics.CheckinRejected("session")
		return Record{}, ErrSessionNotFound
	}
	// A mark against another year's session would inflate the student's
	// attended count without touching their own year's day denominator.
	if sess.YearLevel != yearLevel {
		metrics.CheckinRejected("eligibility")
		return Record{}, ErrNotEligible
	}

	if err := geo.Verify(sess.Anchor(), reported, r.radiusMeters); err != nil {
		metrics.CheckinRejected("location")
		return Record{}, err
	}

	rec, err := r.repo.Insert(ctx, Record{
		StudentID:  studentID,
		AttendedOn: today,
		Status:     Present,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyMarked) {
			metrics.CheckinRejected("duplicate")
		}
		return Record{}, err
	}
	metrics.CheckinAccepted()
	return rec, nil
}

// Correct is the teacher's manual path: sets any status for a (student, day)
// with no geo check, overriding a live mark if one exists.
func (r *Recorder) Correct(ctx context.Context, teacherID, studentID string, day time.Time, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, fmt.Errorf("unknown status %q", status)
	}
	return r.repo.SetStatus(ctx, studentID, session.DayOf(day), status, teacherID)
}

// History returns a student's records, newest first.
func (r *Recorder) History(ctx context.Context, studentID string, limit, offset int) ([]Record, error) {
	return r.repo.ListByStudent(ctx, studentID, limit, offset)
}

// Percent computes the student's rolling attendance percentage: attended
// days over distinct session days for the year level, clamped to [0,100].
// Zero session days yields 0, deliberately conservative.
func (r *Recorder) Percent(ctx context.Context, studentID string, yearLevel int) (float64, error) {
	days, err := r.sessions.CountDays(ctx, yearLevel)
	if err != nil {
		return 0, err
	}
	if days == 0 {
		return 0, nil
	}
	attended, err := r.repo.CountAttended(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return risk.Clamp(100 * float64(attended) / float64(days)), nil
}

// SweepAbsent marks absent every student of the session's year level with no
// record on the session's day. Races with late live marks resolve through
// the uniqueness constraint; duplicates are skipped, not errors. Returns the
// number of records written.
func (r *Recorder) SweepAbsent(ctx context.Context, sess session.Session) (int, error) {
	day, err := session.CodeDate(sess.Code)
	if err != nil {
		return 0, err
	}
	ids, err := r.repo.StudentsWithoutRecord(ctx, sess.YearLevel, day)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, id := range ids {
		teacher := sess.TeacherID
		_, err := r.repo.Insert(ctx, Record{
			StudentID:  id,
			AttendedOn: day,
			Status:     Absent,
			MarkedBy:   &teacher,
		})
		if errors.Is(err, ErrAlreadyMarked) {
			continue
		}
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
