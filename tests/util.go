package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/fundisha/backend/core/assignment"
	"github.com/fundisha/backend/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role, specialty string,
	isApproved bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:         uuid.New().String(),
		Name:       name,
		Email:      email,
		Role:       role,
		Specialty:  specialty,
		IsApproved: isApproved,
		IsVerified: true,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateAdmin(t *testing.T, repo user.Repository, name, email, pwd string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, email, pwd, user.RoleAdmin, "", true)
}

func CreateStudent(t *testing.T, repo user.Repository, name, email, pwd string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, email, pwd, user.RoleStudent, "", false)
}

func CreateTutor(t *testing.T, repo user.Repository, name, email, pwd, specialty string, isApproved bool) user.User {
	t.Helper()
	return CreateUser(t, repo, name, email, pwd, user.RoleTutor, specialty, isApproved)
}

func CreateAssignment(
	t *testing.T,
	repo assignment.Repository,
	studentID, title, specialty string,
	status assignment.Status,
	mutate ...func(*assignment.Assignment),
) assignment.Assignment {
	t.Helper()

	now := time.Now().UTC()
	ass := assignment.Assignment{
		ID:          uuid.New().String(),
		StudentID:   studentID,
		Title:       title,
		Description: "as discussed",
		Specialty:   specialty,
		Status:      status,
		FileURL:     "https://files.test/submissions/" + title + ".pdf",
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	for _, fn := range mutate {
		fn(&ass)
	}
	ass, err := repo.CreateAssignment(context.Background(), ass)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return ass
}

// ClaimedBy pre-populates tutor ownership on a factory assignment.
func ClaimedBy(tutorID string) func(*assignment.Assignment) {
	return func(ass *assignment.Assignment) {
		ass.TutorID = null.StringFrom(tutorID)
	}
}

// Priced pre-populates the tutor charge on a factory assignment.
func Priced(charge float64) func(*assignment.Assignment) {
	return func(ass *assignment.Assignment) {
		ass.TutorCharge = null.Float64From(charge)
	}
}

// CompletedWith pre-populates the completed artifact on a factory assignment.
func CompletedWith(fileURL string) func(*assignment.Assignment) {
	return func(ass *assignment.Assignment) {
		ass.CompletedFileURL = null.StringFrom(fileURL)
		ass.CompletedAt = null.TimeFrom(time.Now().UTC())
	}
}
