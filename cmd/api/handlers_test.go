package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/config"
	"edutrack/internal/geo"
	"edutrack/internal/performance"
	"edutrack/internal/queue"
	"edutrack/internal/roster"
	"edutrack/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCfg = config.App{
	JWTIssuer:     "edutrack-test",
	JWTSigningKey: "test-signing-key",
	AccessTTL:     time.Hour,
	RefreshTTL:    24 * time.Hour,
}

// --- in-memory fakes -------------------------------------------------------

type fakeRosterRepo struct {
	students map[string]roster.Student
	teachers map[string]roster.Teacher
}

func (f *fakeRosterRepo) GetStudent(_ context.Context, id string) (roster.Student, error) {
	for _, s := range f.students {
		if s.ID == id {
			return s, nil
		}
	}
	return roster.Student{}, roster.ErrNotFound
}

func (f *fakeRosterRepo) GetStudentByRegNo(_ context.Context, regNo string) (roster.Student, error) {
	s, ok := f.students[regNo]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	return s, nil
}

func (f *fakeRosterRepo) GetTeacher(_ context.Context, id string) (roster.Teacher, error) {
	for _, t := range f.teachers {
		if t.ID == id {
			return t, nil
		}
	}
	return roster.Teacher{}, roster.ErrNotFound
}

func (f *fakeRosterRepo) GetTeacherByStaffNo(_ context.Context, staffNo string) (roster.Teacher, error) {
	t, ok := f.teachers[staffNo]
	if !ok {
		return roster.Teacher{}, roster.ErrNotFound
	}
	return t, nil
}

type fakeAttendanceRepo struct {
	records map[string]attendance.Record
}

func attKey(studentID string, day time.Time) string {
	return studentID + "|" + day.Format("2006-01-02")
}

func (f *fakeAttendanceRepo) Insert(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	k := attKey(rec.StudentID, rec.AttendedOn)
	if _, ok := f.records[k]; ok {
		return attendance.Record{}, attendance.ErrAlreadyMarked
	}
	rec.ID = k
	rec.CreatedAt = time.Now()
	f.records[k] = rec
	return rec, nil
}

func (f *fakeAttendanceRepo) SetStatus(_ context.Context, studentID string, day time.Time, status attendance.Status, markedBy string) (attendance.Record, error) {
	k := attKey(studentID, day)
	rec := f.records[k]
	rec.ID, rec.StudentID, rec.AttendedOn, rec.Status, rec.MarkedBy = k, studentID, day, status, &markedBy
	f.records[k] = rec
	return rec, nil
}

func (f *fakeAttendanceRepo) ListByStudent(_ context.Context, studentID string, _, _ int) ([]attendance.Record, error) {
	var res []attendance.Record
	for _, rec := range f.records {
		if rec.StudentID == studentID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (f *fakeAttendanceRepo) CountAttended(_ context.Context, studentID string) (int, error) {
	n := 0
	for _, rec := range f.records {
		if rec.StudentID == studentID && (rec.Status == attendance.Present || rec.Status == attendance.Late) {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttendanceRepo) StudentsWithoutRecord(_ context.Context, _ int, _ time.Time) ([]string, error) {
	return nil, nil
}

type fakeSessionRepo struct {
	byID map[string]session.Session
	days int
}

func (f *fakeSessionRepo) Insert(_ context.Context, s session.Session) (session.Session, error) {
	if s.ID == "" {
		s.ID = s.Code
	}
	f.byID[s.ID] = s
	return s, nil
}

func (f *fakeSessionRepo) GetByCode(_ context.Context, code string) (session.Session, error) {
	for _, s := range f.byID {
		if s.Code == code {
			return s, nil
		}
	}
	return session.Session{}, session.ErrNotFound
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (session.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionRepo) Close(_ context.Context, id string, endedAt time.Time) (bool, error) {
	s, ok := f.byID[id]
	if !ok {
		return false, session.ErrNotFound
	}
	if !s.Active {
		return false, nil
	}
	s.Active = false
	s.EndedAt = &endedAt
	f.byID[id] = s
	return true, nil
}

func (f *fakeSessionRepo) ListByTeacher(_ context.Context, teacherID string, _, _ int) ([]session.Session, error) {
	var res []session.Session
	for _, s := range f.byID {
		if s.TeacherID == teacherID {
			res = append(res, s)
		}
	}
	return res, nil
}

func (f *fakeSessionRepo) CountDays(_ context.Context, _ int) (int, error) { return f.days, nil }

type fakePerfRepo struct {
	published map[string]float64 // studentID|subject|component
}

func (f *fakePerfRepo) Publish(_ context.Context, studentID, subject string, c performance.Component, value float64) error {
	k := studentID + "|" + subject + "|" + string(c)
	if _, ok := f.published[k]; ok {
		return performance.ErrAlreadyPublished
	}
	f.published[k] = value
	return nil
}

func (f *fakePerfRepo) SetEngagement(_ context.Context, _, _ string, _ float64) error { return nil }

func (f *fakePerfRepo) ListByStudent(_ context.Context, _ string) ([]performance.Record, error) {
	return nil, nil
}

// --- fixture ---------------------------------------------------------------

type fixture struct {
	router   *gin.Engine
	sessions *fakeSessionRepo
	att      *fakeAttendanceRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stuHash, err := roster.HashPassword("stu-pass")
	require.NoError(t, err)
	tchHash, err := roster.HashPassword("tch-pass")
	require.NoError(t, err)

	sessions := &fakeSessionRepo{byID: make(map[string]session.Session), days: 1}
	att := &fakeAttendanceRepo{records: make(map[string]attendance.Record)}

	srv := &server{
		cfg: testCfg,
		roster: roster.NewService(&fakeRosterRepo{
			students: map[string]roster.Student{
				"CS21B001": {ID: "stu1", RegNo: "CS21B001", Name: "Asha", Department: "CSE", YearLevel: 2, PasswordHash: stuHash},
				"CS21B002": {ID: "stu2", RegNo: "CS21B002", Name: "Bilal", Department: "CSE", YearLevel: 2, PasswordHash: stuHash},
				"EC20B003": {ID: "stu3", RegNo: "EC20B003", Name: "Charu", Department: "ECE", YearLevel: 3, PasswordHash: stuHash},
			},
			teachers: map[string]roster.Teacher{
				"T100": {ID: "t1", StaffNo: "T100", Name: "Prof. Rao", Subject: "Mathematics", Years: []int{1, 2}, PasswordHash: tchHash},
				"T200": {ID: "t2", StaffNo: "T200", Name: "Prof. Iyer", Subject: "Physics", Years: []int{2, 3}, PasswordHash: tchHash},
			},
		}),
		registry: session.NewRegistry(sessions),
		recorder: attendance.NewRecorder(att, sessions, geo.DefaultRadiusMeters),
		perf:     performance.NewService(&fakePerfRepo{published: make(map[string]float64)}),
		q:        queue.NewInMemory(8),
	}

	r := gin.New()
	r.POST("/v1/auth/login", srv.login)

	student := r.Group("/v1", auth.Require(testCfg.JWTSigningKey, testCfg.JWTIssuer, roster.RoleStudent))
	student.POST("/checkins", srv.checkIn)
	student.GET("/me/attendance", srv.myAttendance)

	teacher := r.Group("/v1", auth.Require(testCfg.JWTSigningKey, testCfg.JWTIssuer, roster.RoleTeacher, roster.RoleAdmin))
	teacher.POST("/sessions", srv.createSession)
	teacher.POST("/sessions/:id/close", srv.closeSession)
	teacher.POST("/performance/publish", srv.publishPerformance)

	return &fixture{router: r, sessions: sessions, att: att}
}

func (f *fixture) liveSession(t *testing.T, lat, lng float64) session.Session {
	t.Helper()
	code, err := session.NewCode(time.Now())
	require.NoError(t, err)
	s, err := f.sessions.Insert(context.Background(), session.Session{
		Code: code, Subject: "Mathematics", TeacherID: "t1", YearLevel: 2,
		AnchorLat: lat, AnchorLng: lng, StartedAt: time.Now(), Active: true,
	})
	require.NoError(t, err)
	return s
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	tokens, err := auth.Issue(subject, role, testCfg.JWTIssuer, testCfg.JWTSigningKey, testCfg.AccessTTL, testCfg.RefreshTTL)
	require.NoError(t, err)
	return tokens.AccessToken
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// --- tests -----------------------------------------------------------------

func TestLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"identifier": "CS21B001", "password": "stu-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "student", resp["role"])
	assert.NotEmpty(t, resp["access_token"])

	rec = f.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"identifier": "CS21B001", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckinFlow(t *testing.T) {
	f := newFixture(t)
	sess := f.liveSession(t, 12.9716, 77.5946)
	stu := token(t, "stu1", roster.RoleStudent)

	at := func(lat, lng float64) gin.H {
		return gin.H{"session_code": sess.Code, "latitude": lat, "longitude": lng}
	}

	// At the anchor: accepted as present.
	rec := f.do(t, http.MethodPost, "/v1/checkins", stu, at(12.9716, 77.5946))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "attendance marked")

	// Same day again: conflict, first record preserved.
	rec = f.do(t, http.MethodPost, "/v1/checkins", stu, at(12.9716, 77.5946))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already marked today")

	// ~650 m away: rejected with a distance hint.
	other := token(t, "stu2", roster.RoleStudent)
	rec = f.do(t, http.MethodPost, "/v1/checkins", other, at(12.9720, 77.6000))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "m from the session location")

	// Unknown code: 404.
	rec = f.do(t, http.MethodPost, "/v1/checkins", other, gin.H{"session_code": "010101-ZZZZ", "latitude": 12.9716, "longitude": 77.5946})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckinWrongYear(t *testing.T) {
	f := newFixture(t)
	sess := f.liveSession(t, 12.9716, 77.5946) // year 2

	// A third-year student at the anchor is still turned away.
	rec := f.do(t, http.MethodPost, "/v1/checkins", token(t, "stu3", roster.RoleStudent),
		gin.H{"session_code": sess.Code, "latitude": 12.9716, "longitude": 77.5946})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not for your year")
	assert.Empty(t, f.att.records)
}

func TestCheckinAuth(t *testing.T) {
	f := newFixture(t)
	sess := f.liveSession(t, 12.9716, 77.5946)
	body := gin.H{"session_code": sess.Code, "latitude": 12.9716, "longitude": 77.5946}

	rec := f.do(t, http.MethodPost, "/v1/checkins", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/checkins", token(t, "t1", roster.RoleTeacher), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAndCloseSession(t *testing.T) {
	f := newFixture(t)
	tch := token(t, "t1", roster.RoleTeacher)

	rec := f.do(t, http.MethodPost, "/v1/sessions", tch, gin.H{"year_level": 2, "latitude": 12.9716, "longitude": 77.5946})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		SessionCode string          `json:"session_code"`
		Session     session.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Regexp(t, `^\d{6}-[A-Z0-9]{4}$`, resp.SessionCode)

	// Year not taught: forbidden.
	rec = f.do(t, http.MethodPost, "/v1/sessions", tch, gin.H{"year_level": 4, "latitude": 12.9716, "longitude": 77.5946})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Close twice: both 200, only the first sweeps.
	path := fmt.Sprintf("/v1/sessions/%s/close", resp.Session.ID)
	rec = f.do(t, http.MethodPost, path, tch, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"swept":true`)

	rec = f.do(t, http.MethodPost, path, tch, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"swept":false`)
}

func TestCloseSessionOwnership(t *testing.T) {
	f := newFixture(t)
	sess := f.liveSession(t, 12.9716, 77.5946) // owned by t1
	path := fmt.Sprintf("/v1/sessions/%s/close", sess.ID)

	// Another teacher cannot close it.
	rec := f.do(t, http.MethodPost, path, token(t, "t2", roster.RoleTeacher), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not your session")
	got, err := f.sessions.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	// An admin can.
	rec = f.do(t, http.MethodPost, path, token(t, "admin1", roster.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"swept":true`)
}

func TestPublishPerformance(t *testing.T) {
	f := newFixture(t)
	tch := token(t, "t1", roster.RoleTeacher)

	body := gin.H{
		"component": "midterm1",
		"entries":   []gin.H{{"student_id": "stu1", "value": 8}},
	}
	rec := f.do(t, http.MethodPost, "/v1/performance/publish", tch, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"published"`)

	rec = f.do(t, http.MethodPost, "/v1/performance/publish", tch, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"already_published"`)

	// Out-of-range value reports a per-entry error.
	rec = f.do(t, http.MethodPost, "/v1/performance/publish", tch, gin.H{
		"component": "midterm2",
		"entries":   []gin.H{{"student_id": "stu1", "value": 11}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}
