package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/config"
	"edutrack/internal/geo"
	"edutrack/internal/metrics"
	"edutrack/internal/performance"
	"edutrack/internal/queue"
	"edutrack/internal/report"
	"edutrack/internal/risk"
	"edutrack/internal/roster"
	"edutrack/internal/session"
)

type server struct {
	cfg      config.App
	roster   *roster.Service
	registry *session.Registry
	recorder *attendance.Recorder
	perf     *performance.Service
	q        queue.Queue
}

// writeError maps the domain error taxonomy onto HTTP statuses. Everything
// unrecognized becomes a generic 500; each write is a single-document
// insert/update so there is no partial state to clean up.
func writeError(c *gin.Context, err error) {
	var rej *geo.RejectedError
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound), errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid session code"})
	case errors.As(err, &rej):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "location rejected",
			"message": fmt.Sprintf("you are %.0f m from the session location (allowed %.0f m)", rej.DistanceMeters, rej.RadiusMeters),
		})
	case errors.Is(err, attendance.ErrNotEligible):
		c.JSON(http.StatusForbidden, gin.H{"error": "session is not for your year"})
	case errors.Is(err, attendance.ErrAlreadyMarked):
		c.JSON(http.StatusConflict, gin.H{"error": "already marked today"})
	case errors.Is(err, geo.ErrInvalidCoordinates):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "location unavailable"})
	case errors.Is(err, performance.ErrAlreadyPublished):
		c.JSON(http.StatusConflict, gin.H{"error": "component already published"})
	case errors.Is(err, roster.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, roster.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown student"})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *server) login(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := s.roster.Authenticate(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	tokens, err := auth.Issue(p.ID, p.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          p.Role,
		"name":          p.Name,
	})
}

// checkIn is the student's live attendance mark.
func (s *server) checkIn(c *gin.Context) {
	var req struct {
		SessionCode string   `json:"session_code" binding:"required"`
		Latitude    *float64 `json:"latitude" binding:"required"`
		Longitude   *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stu, err := s.roster.Student(c.Request.Context(), auth.ClaimsFrom(c).Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := s.recorder.Mark(c.Request.Context(), stu.ID, stu.YearLevel, req.SessionCode, geo.Point{Lat: *req.Latitude, Lng: *req.Longitude})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "attendance marked",
		"attended_on": rec.AttendedOn.Format("2006-01-02"),
		"status":      rec.Status,
	})
}

func (s *server) myAttendance(c *gin.Context) {
	studentID := auth.ClaimsFrom(c).Subject
	limit, offset := pageParams(c)
	records, err := s.recorder.History(c.Request.Context(), studentID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// standing aggregates a student's attendance percentage, average score, weak
// subjects, and risk level. Computed fresh on every call.
func (s *server) standing(c *gin.Context, studentID string) (roster.Student, float64, float64, []string, risk.Level, error) {
	ctx := c.Request.Context()
	stu, err := s.roster.Student(ctx, studentID)
	if err != nil {
		return roster.Student{}, 0, 0, nil, "", err
	}
	pct, err := s.recorder.Percent(ctx, stu.ID, stu.YearLevel)
	if err != nil {
		return roster.Student{}, 0, 0, nil, "", err
	}
	avg, weak, err := s.perf.Summary(ctx, stu.ID)
	if err != nil {
		return roster.Student{}, 0, 0, nil, "", err
	}
	return stu, pct, avg, weak, risk.Classify(pct, avg), nil
}

func (s *server) myReport(c *gin.Context) {
	stu, pct, avg, weak, level, err := s.standing(c, auth.ClaimsFrom(c).Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	rep := report.Compose(report.Input{
		StudentName:       stu.Name,
		AttendancePercent: pct,
		AverageScore:      avg,
		WeakSkills:        weak,
		Risk:              level,
	})
	c.JSON(http.StatusOK, gin.H{
		"attendance_percent": pct,
		"average_score":      avg,
		"risk":               level,
		"report":             rep,
	})
}

func (s *server) createSession(c *gin.Context) {
	var req struct {
		YearLevel int      `json:"year_level" binding:"required,min=1,max=4"`
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	teacherID := auth.ClaimsFrom(c).Subject
	tch, err := s.roster.Teacher(c.Request.Context(), teacherID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !tch.Teaches(req.YearLevel) {
		c.JSON(http.StatusForbidden, gin.H{"error": "year level not taught by you"})
		return
	}

	sess, err := s.registry.Create(c.Request.Context(), tch.ID, tch.Subject, req.YearLevel, geo.Point{Lat: *req.Latitude, Lng: *req.Longitude})
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.SessionOpened()

	c.JSON(http.StatusCreated, gin.H{
		"session_code": sess.Code,
		"session":      sess,
	})
}

// closeSession ends a session and, on the first close only, enqueues the
// absentee sweep. Repeat closes are 200s that enqueue nothing. Only the
// owning teacher (or an admin) may close a session.
func (s *server) closeSession(c *gin.Context) {
	id := c.Param("id")
	claims := auth.ClaimsFrom(c)
	sess, err := s.registry.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if claims.Role != roster.RoleAdmin && sess.TeacherID != claims.Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your session"})
		return
	}
	closed, err := s.registry.Close(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if closed {
		metrics.SessionClosed()
		if err := s.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeSessionClosed, Body: []byte(id)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "session closed", "swept": closed})
}

func (s *server) listSessions(c *gin.Context) {
	limit, offset := pageParams(c)
	sessions, err := s.registry.History(c.Request.Context(), auth.ClaimsFrom(c).Subject, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// correctAttendance is the teacher's manual path; no geo check.
func (s *server) correctAttendance(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Date      string `json:"date" binding:"required"` // YYYY-MM-DD
		Status    string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, session.Zone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	rec, err := s.recorder.Correct(c.Request.Context(), auth.ClaimsFrom(c).Subject, req.StudentID, day, attendance.Status(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// publishPerformance finalizes one component for a batch of students. Each
// entry succeeds or fails on its own; an already published field reports
// "already_published" without touching the stored value.
func (s *server) publishPerformance(c *gin.Context) {
	var req struct {
		Component string `json:"component" binding:"required"`
		Entries   []struct {
			StudentID string  `json:"student_id" binding:"required"`
			Value     float64 `json:"value"`
		} `json:"entries" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tch, err := s.roster.Teacher(c.Request.Context(), auth.ClaimsFrom(c).Subject)
	if err != nil {
		writeError(c, err)
		return
	}

	comp := performance.Component(req.Component)
	results := make([]gin.H, 0, len(req.Entries))
	for _, e := range req.Entries {
		err := s.perf.Publish(c.Request.Context(), e.StudentID, tch.Subject, comp, e.Value)
		switch {
		case errors.Is(err, performance.ErrAlreadyPublished):
			results = append(results, gin.H{"student_id": e.StudentID, "result": "already_published"})
		case err != nil:
			results = append(results, gin.H{"student_id": e.StudentID, "result": "error", "message": err.Error()})
		default:
			results = append(results, gin.H{"student_id": e.StudentID, "result": "published"})
		}
	}
	c.JSON(http.StatusOK, gin.H{"component": comp, "subject": tch.Subject, "results": results})
}

func (s *server) studentRisk(c *gin.Context) {
	_, pct, avg, _, level, err := s.standing(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student_id":         c.Param("id"),
		"attendance_percent": pct,
		"average_score":      avg,
		"risk":               level,
	})
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, offset = 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}
