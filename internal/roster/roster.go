// Package roster holds student and teacher identity. A student belongs to
// exactly one department and one year level; a teacher owns one subject and
// a set of taught years.
package roster

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Roles carried in JWT claims.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// ErrNotFound is returned for unknown ids or registration numbers.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials covers both unknown identifiers and bad passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Student is one enrolled student.
type Student struct {
	ID           string `json:"id"`
	RegNo        string `json:"reg_no"`
	Name         string `json:"name"`
	Department   string `json:"department"`
	YearLevel    int    `json:"year_level"` // 1-4
	PasswordHash string `json:"-"`
}

// Teacher owns one subject and teaches a set of year levels.
type Teacher struct {
	ID           string `json:"id"`
	StaffNo      string `json:"staff_no"`
	Name         string `json:"name"`
	Subject      string `json:"subject"`
	Years        []int  `json:"years"`
	IsAdmin      bool   `json:"is_admin"`
	PasswordHash string `json:"-"`
}

// Teaches reports whether the teacher covers a year level.
func (t Teacher) Teaches(year int) bool {
	for _, y := range t.Years {
		if y == year {
			return true
		}
	}
	return false
}

// Principal is an authenticated identity.
type Principal struct {
	ID   string
	Name string
	Role string
}

// Repository looks identities up.
type Repository interface {
	GetStudent(ctx context.Context, id string) (Student, error)
	GetStudentByRegNo(ctx context.Context, regNo string) (Student, error)
	GetTeacher(ctx context.Context, id string) (Teacher, error)
	GetTeacherByStaffNo(ctx context.Context, staffNo string) (Teacher, error)
}

// Service authenticates against the roster.
type Service struct {
	repo Repository
}

// NewService creates the roster service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate resolves an identifier as a student registration number
// first, then a teacher staff number, and checks the password. The same
// error covers unknown identifiers and wrong passwords.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (Principal, error) {
	if stu, err := s.repo.GetStudentByRegNo(ctx, identifier); err == nil {
		if checkPassword(stu.PasswordHash, password) {
			return Principal{ID: stu.ID, Name: stu.Name, Role: RoleStudent}, nil
		}
		return Principal{}, ErrInvalidCredentials
	} else if !errors.Is(err, ErrNotFound) {
		return Principal{}, err
	}

	tch, err := s.repo.GetTeacherByStaffNo(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}
	if !checkPassword(tch.PasswordHash, password) {
		return Principal{}, ErrInvalidCredentials
	}
	role := RoleTeacher
	if tch.IsAdmin {
		role = RoleAdmin
	}
	return Principal{ID: tch.ID, Name: tch.Name, Role: role}, nil
}

// Student fetches a student by id.
func (s *Service) Student(ctx context.Context, id string) (Student, error) {
	return s.repo.GetStudent(ctx, id)
}

// Teacher fetches a teacher by id.
func (s *Service) Teacher(ctx context.Context, id string) (Teacher, error) {
	return s.repo.GetTeacher(ctx, id)
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
