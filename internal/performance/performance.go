// Package performance holds per-student, per-subject score components. Each
// component starts unset and is published by the teacher at most once;
// published values are immutable. Engagement is the one mutable field, fed
// by the skill tracker.
package performance

import (
	"context"
	"errors"
	"fmt"
)

// Component names one publishable score field.
type Component string

const (
	Midterm1   Component = "midterm1"
	Midterm2   Component = "midterm2"
	EndTerm    Component = "endterm"
	Assignment Component = "assignment"
)

// Max returns the component's score cap, or -1 for unknown components.
func (c Component) Max() float64 {
	switch c {
	case Midterm1, Midterm2, Assignment:
		return 10
	case EndTerm:
		return 70
	}
	return -1
}

// Valid reports whether c names a publishable component.
func (c Component) Valid() bool { return c.Max() > 0 }

// ErrAlreadyPublished means the component was published before; the original
// value stands.
var ErrAlreadyPublished = errors.New("component already published")

// Record is one student's scores for one subject. Nil means unpublished.
type Record struct {
	StudentID  string   `json:"student_id"`
	Subject    string   `json:"subject"`
	Midterm1   *float64 `json:"midterm1"`
	Midterm2   *float64 `json:"midterm2"`
	EndTerm    *float64 `json:"endterm"`
	Assignment *float64 `json:"assignment"`
	Engagement *float64 `json:"engagement"`
}

// Total sums the published components. Unpublished components contribute
// nothing; a fully published subject totals out of 100.
func (r Record) Total() float64 {
	t := 0.0
	for _, v := range []*float64{r.Midterm1, r.Midterm2, r.EndTerm, r.Assignment} {
		if v != nil {
			t += *v
		}
	}
	return t
}

// HasAny reports whether at least one component is published.
func (r Record) HasAny() bool {
	return r.Midterm1 != nil || r.Midterm2 != nil || r.EndTerm != nil || r.Assignment != nil
}

// Repository persists performance records.
type Repository interface {
	// Publish sets a component for (student, subject) iff it is still
	// unset, returning ErrAlreadyPublished otherwise. The conditional
	// write must be a single statement so concurrent publishers serialize
	// in the store.
	Publish(ctx context.Context, studentID, subject string, c Component, value float64) error
	SetEngagement(ctx context.Context, studentID, subject string, value float64) error
	ListByStudent(ctx context.Context, studentID string) ([]Record, error)
}

// weakTotalBelow marks a subject as a weak area when its published total
// falls under it.
const weakTotalBelow = 40.0

// Service validates and publishes score components.
type Service struct {
	repo Repository
}

// NewService creates the performance service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Publish finalizes one component value. Values outside [0, cap] are
// rejected before touching storage.
func (s *Service) Publish(ctx context.Context, studentID, subject string, c Component, value float64) error {
	if !c.Valid() {
		return fmt.Errorf("unknown component %q", c)
	}
	if value < 0 || value > c.Max() {
		return fmt.Errorf("%s must be in [0, %g]", c, c.Max())
	}
	return s.repo.Publish(ctx, studentID, subject, c, value)
}

// SetEngagement records the 0-100 engagement score for a subject.
func (s *Service) SetEngagement(ctx context.Context, studentID, subject string, value float64) error {
	if value < 0 || value > 100 {
		return fmt.Errorf("engagement must be in [0, 100]")
	}
	return s.repo.SetEngagement(ctx, studentID, subject, value)
}

// Summary returns the student's average published total across subjects and
// the names of weak subjects (total below 40). Subjects with nothing
// published yet are excluded from the average; no subjects at all yields 0.
func (s *Service) Summary(ctx context.Context, studentID string) (float64, []string, error) {
	recs, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return 0, nil, err
	}
	sum, n := 0.0, 0
	var weak []string
	for _, r := range recs {
		if !r.HasAny() {
			continue
		}
		total := r.Total()
		sum += total
		n++
		if total < weakTotalBelow {
			weak = append(weak, r.Subject)
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	return sum / float64(n), weak, nil
}
