// Package session manages teacher-opened attendance windows. A session pins
// an anchor coordinate and a human-typeable code; students check in against
// it while it is active. Sessions are append-only history and never deleted.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"edutrack/internal/geo"
)

// Zone fixes the calendar-day boundary for sessions and attendance marks.
// Loaded once; day arithmetic never round-trips through formatted strings.
var Zone = mustLoadZone()

func mustLoadZone() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(fmt.Sprintf("load timezone: %v", err))
	}
	return loc
}

// DayOf returns t's calendar date in Zone, normalized to midnight UTC so it
// maps cleanly onto a SQL DATE column.
func DayOf(t time.Time) time.Time {
	y, m, d := t.In(Zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ErrNotFound is returned when no session matches a code or id.
var ErrNotFound = errors.New("session not found")

// Session is one attendance window.
type Session struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Subject   string     `json:"subject"`
	TeacherID string     `json:"teacher_id"`
	YearLevel int        `json:"year_level"`
	AnchorLat float64    `json:"anchor_lat"`
	AnchorLng float64    `json:"anchor_lng"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Active    bool       `json:"active"`
}

// Anchor returns the session's anchor point.
func (s Session) Anchor() geo.Point {
	return geo.Point{Lat: s.AnchorLat, Lng: s.AnchorLng}
}

// codeAlphabet spans uppercase alphanumerics; four characters give ~1.7M
// combinations per day, enough to avoid collisions without a counter.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCode builds a DDMMYY-XXXX session code for the given instant, with the
// date part taken in Zone and a random four-character suffix.
func NewCode(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session code: %w", err)
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return now.In(Zone).Format("020106") + "-" + string(suffix), nil
}

// NormalizeCode upper-cases and trims a submitted code. Codes are
// case-insensitive on the wire.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CodeDate extracts the DDMMYY date prefix of a normalized code as a day in
// Zone. Malformed codes return an error rather than a zero time.
func CodeDate(code string) (time.Time, error) {
	i := strings.IndexByte(code, '-')
	if i != 6 {
		return time.Time{}, fmt.Errorf("malformed session code %q", code)
	}
	t, err := time.ParseInLocation("020106", code[:i], Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed session code %q", code)
	}
	return DayOf(t), nil
}
