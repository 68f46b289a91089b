package session

import (
	"context"
	"time"

	"edutrack/internal/geo"
)

// Repository persists sessions.
type Repository interface {
	Insert(ctx context.Context, s Session) (Session, error)
	GetByCode(ctx context.Context, code string) (Session, error)
	GetByID(ctx context.Context, id string) (Session, error)
	// Close sets ended_at and clears the active flag. Closing an already
	// closed session is a no-op; it reports whether this call closed it.
	Close(ctx context.Context, id string, endedAt time.Time) (bool, error)
	ListByTeacher(ctx context.Context, teacherID string, limit, offset int) ([]Session, error)
	// CountDays returns the number of distinct session days held for a year
	// level, the denominator of a student's attendance percentage.
	CountDays(ctx context.Context, yearLevel int) (int, error)
}

// Registry is the session-facing service.
type Registry struct {
	repo Repository
	now  func() time.Time
}

// NewRegistry creates a registry backed by a repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

// Create opens a new attendance window anchored at the teacher's reported
// location and returns it with a freshly generated code.
func (r *Registry) Create(ctx context.Context, teacherID, subject string, yearLevel int, anchor geo.Point) (Session, error) {
	if !anchor.Valid() {
		return Session{}, geo.ErrInvalidCoordinates
	}
	code, err := NewCode(r.now())
	if err != nil {
		return Session{}, err
	}
	s := Session{
		Code:      code,
		Subject:   subject,
		TeacherID: teacherID,
		YearLevel: yearLevel,
		AnchorLat: anchor.Lat,
		AnchorLng: anchor.Lng,
		StartedAt: r.now().UTC(),
		Active:    true,
	}
	return r.repo.Insert(ctx, s)
}

// Close ends a session. Idempotent: closing twice is a no-op, not an error.
// It reports whether this call performed the close, so the caller can decide
// whether to enqueue the absentee sweep exactly once.
func (r *Registry) Close(ctx context.Context, id string) (bool, error) {
	return r.repo.Close(ctx, id, r.now().UTC())
}

// Get fetches a session by id.
func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	return r.repo.GetByID(ctx, id)
}

// Resolve looks up a session by submitted code, normalizing first.
func (r *Registry) Resolve(ctx context.Context, code string) (Session, error) {
	return r.repo.GetByCode(ctx, NormalizeCode(code))
}

// History lists a teacher's sessions, newest first.
func (r *Registry) History(ctx context.Context, teacherID string, limit, offset int) ([]Session, error) {
	return r.repo.ListByTeacher(ctx, teacherID, limit, offset)
}
