package assignment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/user"
)

// Status is the assignment lifecycle state.
//
//	Pending ──(open)──→ Open ──(claim)──→ Claimed
//	Pending ─────────(assign)───────────→ Claimed
//	Claimed ──(review & price)──→ In Progress ──(complete)──→ Completed
//	Claimed ──(reject)──→ Rejected ──(open)──→ Open
//
// Completed is terminal. IsPaid may only flip once the assignment is
// Completed.
type Status string

const (
	StatusPending    Status = "Pending"     // submitted, not yet routed
	StatusOpen       Status = "Open"        // published for matching tutors to claim
	StatusClaimed    Status = "Claimed"     // a specific tutor owns it, price not yet set
	StatusInProgress Status = "In Progress" // tutor accepted and priced
	StatusCompleted  Status = "Completed"   // solution uploaded
	StatusRejected   Status = "Rejected"    // tutor declined; admin may re-open
)

var AllStatuses = []Status{StatusPending, StatusOpen, StatusClaimed, StatusInProgress, StatusCompleted, StatusRejected}

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// HasTutor reports whether an assignment in this state must carry a tutor.
func (s Status) HasTutor() bool {
	switch s {
	case StatusClaimed, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

type Assignment struct {
	ID          string       `json:"id"`
	StudentID   string       `json:"student_id"`
	TutorID     null.String  `json:"tutor_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Specialty   string       `json:"specialty"`
	Status      Status       `json:"status"`
	TutorCharge null.Float64 `json:"tutor_charge"`
	IsPaid      bool         `json:"is_paid"`
	PaymentRef  null.String  `json:"-"`
	FileURL     string       `json:"-"` // disclosed via the download endpoint only
	// CompletedFileURL is never serialized; disclosure goes through the
	// payment-gated download endpoint.
	CompletedFileURL null.String `json:"-"`
	SubmittedAt      time.Time   `json:"submitted_at"` // UTC
	CompletedAt      null.Time   `json:"completed_at"`
	PaidAt           null.Time   `json:"paid_at"`
	UpdatedAt        time.Time   `json:"updated_at"` // UTC
}

// IsAssignedTo reports whether the given tutor owns this assignment.
func (a Assignment) IsAssignedTo(tutorID string) bool {
	return a.TutorID.Valid && a.TutorID.String == tutorID
}

// Actor identifies the authenticated caller of a transition. Handlers build
// it from the request's verified claims; the engine re-checks ownership
// against it on every ownership-scoped transition.
type Actor struct {
	ID   string
	Role string
}

func (act Actor) IsAdmin() bool   { return act.Role == user.RoleAdmin }
func (act Actor) IsTutor() bool   { return act.Role == user.RoleTutor }
func (act Actor) IsStudent() bool { return act.Role == user.RoleStudent }

// NewAssignment contains information needed to submit an assignment.
// StudentID and FileURL are filled by the caller, not bound from the
// request body.
type NewAssignment struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Specialty   string `json:"specialty" validate:"required,alphanum_"`
	FileURL     string `json:"-" validate:"required,url"`
}

func (na *NewAssignment) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Specialty = core.CleanString(na.Specialty)
	return core.Validate.Struct(na)
}

type QueryFilter struct {
	StudentID string   `query:"-"`
	TutorID   string   `query:"-"`
	Statuses  []Status `query:"status"`
	Specialty string   `query:"specialty"`
	IsPaid    *bool    `query:"is_paid"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.TutorID == "" && qf.Statuses == nil && qf.Specialty == "" && qf.IsPaid == nil
}

func (qf *QueryFilter) Clean() {
	qf.Specialty = core.CleanString(qf.Specialty)
}
