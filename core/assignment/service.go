package assignment

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("assignment not found")
	ErrForbidden        = errors.New("permission denied")
	ErrInvalidStatus    = errors.New("assignment status does not allow this transition")
	ErrAlreadyPaid      = errors.New("assignment has already been paid for")
	ErrPaymentRequired  = errors.New("payment is required to download the completed work")
	ErrTutorNotEligible = errors.New("tutor is not approved for assignments")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, ass Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		GetAssignmentByPaymentRef(ctx context.Context, ref string) (Assignment, error)
		// FilterAssignments applies AND operation on available QueryFilter fields.
		FilterAssignments(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Assignment, error)
		// UpdateAssignment persists `ass` only if the stored row still has
		// status `expect`; a row that has since moved on yields
		// ErrInvalidStatus and no mutation. This is the sole write path for
		// transitions, so two concurrent attempts on the same source state
		// cannot both win.
		UpdateAssignment(ctx context.Context, ass Assignment, expect Status) (Assignment, error)
		// MarkAssignmentPaid flips is_paid exactly once; a second call yields
		// ErrAlreadyPaid. Only a Completed assignment can be paid.
		MarkAssignmentPaid(ctx context.Context, id string, paidAt time.Time) (Assignment, error)
	}

	Service interface {
		Submit(ctx context.Context, actor Actor, na NewAssignment) (Assignment, error)
		Get(ctx context.Context, actor Actor, id string) (Assignment, error)
		Query(ctx context.Context, actor Actor, filter *QueryFilter, ordering ...core.DBOrdering) ([]Assignment, error)
		OpenQueue(ctx context.Context, actor Actor) ([]Assignment, error)
		OpenForClaim(ctx context.Context, actor Actor, id string) (Assignment, error)
		Assign(ctx context.Context, actor Actor, id, tutorID string) (Assignment, error)
		Claim(ctx context.Context, actor Actor, id string) (Assignment, error)
		ReviewAndPrice(ctx context.Context, actor Actor, id string, price float64) (Assignment, error)
		Reject(ctx context.Context, actor Actor, id string) (Assignment, error)
		Complete(ctx context.Context, actor Actor, id, fileURL string) (Assignment, error)
		MarkPaid(ctx context.Context, actor Actor, id string) (Assignment, error)

		// payment plumbing
		StartPayment(ctx context.Context, actor Actor, id string) (Assignment, user.User, error)
		AttachPaymentRef(ctx context.Context, id, ref string) (Assignment, error)
		MarkPaidByRef(ctx context.Context, ref string) (Assignment, bool, error)

		// artifact disclosure
		SubmissionURL(ctx context.Context, actor Actor, id string) (string, error)
		CompletedURL(ctx context.Context, actor Actor, id string) (string, error)
	}

	service struct {
		repo    Repository
		users   user.Repository
		mailSvc core.EmailService
		conf    *core.Config
		log     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users user.Repository, mailSvc core.EmailService, conf *core.Config, log core.Logger) Service {
	return &service{
		repo:    repo,
		users:   users,
		mailSvc: mailSvc,
		conf:    conf,
		log:     log,
	}
}

func (svc *service) Submit(ctx context.Context, actor Actor, na NewAssignment) (Assignment, error) {
	if !actor.IsStudent() {
		return Assignment{}, ErrForbidden
	}
	if err := na.Validate(); err != nil {
		return Assignment{}, err
	}

	now := time.Now().UTC()
	ass := Assignment{
		ID:          uuid.New().String(),
		StudentID:   actor.ID,
		Title:       na.Title,
		Description: na.Description,
		Specialty:   na.Specialty,
		Status:      StatusPending,
		FileURL:     na.FileURL,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	ass, err := svc.repo.CreateAssignment(ctx, ass)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating assignment")
	}
	svc.notifySubmitted(ctx, ass)
	return ass, nil
}

// Get returns the assignment if the actor is a party to it: the owning
// student, the assigned tutor, or an admin. Anyone else sees ErrNotFound
// rather than ErrForbidden, so unrelated callers cannot probe for IDs.
func (svc *service) Get(ctx context.Context, actor Actor, id string) (Assignment, error) {
	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if !svc.isParty(actor, ass) {
		return Assignment{}, ErrNotFound
	}
	return ass, nil
}

func (svc *service) isParty(actor Actor, ass Assignment) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.IsStudent() && ass.StudentID == actor.ID:
		return true
	case actor.IsTutor() && ass.IsAssignedTo(actor.ID):
		return true
	}
	return false
}

// Query returns the actor's role-scoped work queue: admins see everything,
// students their submissions, tutors the assignments routed to them.
func (svc *service) Query(ctx context.Context, actor Actor, filter *QueryFilter, ordering ...core.DBOrdering) ([]Assignment, error) {
	filter.Clean()
	switch {
	case actor.IsAdmin():
		// unscoped
	case actor.IsStudent():
		filter.StudentID = actor.ID
	case actor.IsTutor():
		filter.TutorID = actor.ID
	default:
		return nil, ErrForbidden
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "submitted_at", Ascending: false}}
	}
	return svc.repo.FilterAssignments(ctx, *filter, ordering...)
}

// OpenQueue lists Open assignments matching the calling tutor's specialty.
func (svc *service) OpenQueue(ctx context.Context, actor Actor) ([]Assignment, error) {
	if !actor.IsTutor() {
		return nil, ErrForbidden
	}
	tutor, err := svc.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "finding tutor")
	}
	if !tutor.IsApproved {
		return nil, ErrTutorNotEligible
	}
	filter := QueryFilter{Statuses: []Status{StatusOpen}, Specialty: tutor.Specialty}
	return svc.repo.FilterAssignments(ctx, filter, core.DBOrdering{Field: "submitted_at", Ascending: true})
}

// OpenForClaim publishes a Pending assignment for any matching tutor to
// claim, without designating one. A Rejected assignment can be re-opened
// the same way; its previous tutor and charge are cleared.
func (svc *service) OpenForClaim(ctx context.Context, actor Actor, id string) (Assignment, error) {
	if !actor.IsAdmin() {
		return Assignment{}, ErrForbidden
	}
	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if ass.Status != StatusPending && ass.Status != StatusRejected {
		return Assignment{}, ErrInvalidStatus
	}

	expect := ass.Status
	ass.TutorID = null.String{}
	ass.TutorCharge = null.Float64{}
	ass.Status = StatusOpen
	ass.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, ass, expect)
}

// Assign routes a Pending or Open assignment to a specific approved tutor.
func (svc *service) Assign(ctx context.Context, actor Actor, id, tutorID string) (Assignment, error) {
	if !actor.IsAdmin() {
		return Assignment{}, ErrForbidden
	}
	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if ass.Status != StatusPending && ass.Status != StatusOpen {
		return Assignment{}, ErrInvalidStatus
	}

	tutor, err := svc.users.GetUserByID(ctx, tutorID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Assignment{}, core.NewValidationError(err, core.FieldError{Field: "tutor_id", Error: "tutor not found"})
		}
		return Assignment{}, errors.Wrap(err, "finding tutor")
	}
	if !tutor.IsTutor() {
		// don't disclose the target's actual role
		return Assignment{}, core.NewValidationError(user.ErrNotFound, core.FieldError{Field: "tutor_id", Error: "tutor not found"})
	}
	if !tutor.IsApproved {
		return Assignment{}, core.NewValidationError(ErrTutorNotEligible, core.FieldError{Field: "tutor_id", Error: ErrTutorNotEligible.Error()})
	}

	expect := ass.Status
	ass.TutorID = null.StringFrom(tutor.ID)
	ass.Status = StatusClaimed
	ass.UpdatedAt = time.Now().UTC()
	ass, err = svc.repo.UpdateAssignment(ctx, ass, expect)
	if err != nil {
		return Assignment{}, err
	}
	svc.notifyClaimed(ctx, ass, tutor)
	return ass, nil
}

// Claim lets an approved tutor take an Open assignment matching their
// specialty.
func (svc *service) Claim(ctx context.Context, actor Actor, id string) (Assignment, error) {
	if !actor.IsTutor() {
		return Assignment{}, ErrForbidden
	}
	tutor, err := svc.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "finding tutor")
	}
	if !tutor.IsApproved {
		return Assignment{}, ErrTutorNotEligible
	}

	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if ass.Status != StatusOpen {
		return Assignment{}, ErrInvalidStatus
	}
	if ass.Specialty != tutor.Specialty {
		return Assignment{}, ErrForbidden
	}

	ass.TutorID = null.StringFrom(tutor.ID)
	ass.Status = StatusClaimed
	ass.UpdatedAt = time.Now().UTC()
	ass, err = svc.repo.UpdateAssignment(ctx, ass, StatusOpen)
	if err != nil {
		return Assignment{}, err
	}
	svc.notifyClaimed(ctx, ass, tutor)
	return ass, nil
}

// ReviewAndPrice records the assigned tutor's charge and moves the
// assignment in progress.
func (svc *service) ReviewAndPrice(ctx context.Context, actor Actor, id string, price float64) (Assignment, error) {
	if !actor.IsTutor() {
		return Assignment{}, ErrForbidden
	}
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return Assignment{}, core.NewValidationError(
			errors.New("invalid price"),
			core.FieldError{Field: "price", Error: "price must be a positive number"},
		)
	}

	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if !ass.IsAssignedTo(actor.ID) {
		return Assignment{}, ErrForbidden
	}
	if ass.Status != StatusClaimed {
		return Assignment{}, ErrInvalidStatus
	}

	ass.TutorCharge = null.Float64From(price)
	ass.Status = StatusInProgress
	ass.UpdatedAt = time.Now().UTC()
	ass, err = svc.repo.UpdateAssignment(ctx, ass, StatusClaimed)
	if err != nil {
		return Assignment{}, err
	}
	svc.notifyPriced(ctx, ass)
	return ass, nil
}

// Reject lets the assigned tutor decline claimed work. The tutor id is
// retained on the terminal record; re-routing is a manual admin action.
func (svc *service) Reject(ctx context.Context, actor Actor, id string) (Assignment, error) {
	if !actor.IsTutor() {
		return Assignment{}, ErrForbidden
	}
	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if !ass.IsAssignedTo(actor.ID) {
		return Assignment{}, ErrForbidden
	}
	if ass.Status != StatusClaimed {
		return Assignment{}, ErrInvalidStatus
	}

	ass.Status = StatusRejected
	ass.UpdatedAt = time.Now().UTC()
	ass, err = svc.repo.UpdateAssignment(ctx, ass, StatusClaimed)
	if err != nil {
		return Assignment{}, err
	}
	svc.notifyRejected(ctx, ass)
	return ass, nil
}

// Complete records the completed artifact. The artifact stays undisclosed
// to the student until payment.
func (svc *service) Complete(ctx context.Context, actor Actor, id, fileURL string) (Assignment, error) {
	if !actor.IsTutor() {
		return Assignment{}, ErrForbidden
	}
	if fileURL == "" {
		return Assignment{}, core.NewValidationError(
			errors.New("missing file"),
			core.FieldError{Field: "file_url", Error: "completed file is required"},
		)
	}

	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if !ass.IsAssignedTo(actor.ID) {
		return Assignment{}, ErrForbidden
	}
	if ass.Status != StatusInProgress {
		return Assignment{}, ErrInvalidStatus
	}

	now := time.Now().UTC()
	ass.CompletedFileURL = null.StringFrom(fileURL)
	ass.CompletedAt = null.TimeFrom(now)
	ass.Status = StatusCompleted
	ass.UpdatedAt = now
	ass, err = svc.repo.UpdateAssignment(ctx, ass, StatusInProgress)
	if err != nil {
		return Assignment{}, err
	}
	svc.notifyCompleted(ctx, ass)
	return ass, nil
}

// MarkPaid flips the paid flag exactly once for a Completed assignment.
// Admins may apply it on behalf of offline payments; a student may only
// apply it to their own assignment.
func (svc *service) MarkPaid(ctx context.Context, actor Actor, id string) (Assignment, error) {
	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	switch {
	case actor.IsAdmin():
	case actor.IsStudent() && ass.StudentID == actor.ID:
	default:
		return Assignment{}, ErrForbidden
	}
	if ass.Status != StatusCompleted {
		return Assignment{}, ErrInvalidStatus
	}
	if ass.IsPaid {
		return Assignment{}, ErrAlreadyPaid
	}

	ass, err = svc.repo.MarkAssignmentPaid(ctx, id, time.Now().UTC())
	if err != nil {
		return Assignment{}, err
	}
	svc.notifyPaid(ctx, ass)
	return ass, nil
}

// StartPayment validates that the actor may pay for the assignment and
// returns it with the paying student, for gateway initialization.
func (svc *service) StartPayment(ctx context.Context, actor Actor, id string) (Assignment, user.User, error) {
	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, user.User{}, err
	}
	if !actor.IsStudent() || ass.StudentID != actor.ID {
		return Assignment{}, user.User{}, ErrForbidden
	}
	if ass.Status != StatusCompleted {
		return Assignment{}, user.User{}, ErrInvalidStatus
	}
	if ass.IsPaid {
		return Assignment{}, user.User{}, ErrAlreadyPaid
	}

	student, err := svc.users.GetUserByID(ctx, ass.StudentID)
	if err != nil {
		return Assignment{}, user.User{}, errors.Wrap(err, "finding student")
	}
	return ass, student, nil
}

// AttachPaymentRef records the gateway reference issued for this
// assignment so that the later verify callback can be tied back to it.
func (svc *service) AttachPaymentRef(ctx context.Context, id, ref string) (Assignment, error) {
	ass, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	ass.PaymentRef = null.StringFrom(ref)
	ass.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, ass, ass.Status)
}

// MarkPaidByRef applies a successful gateway verification. It is
// idempotent: a reference that has already been applied returns the
// assignment unchanged with applied=false and triggers no second email.
func (svc *service) MarkPaidByRef(ctx context.Context, ref string) (Assignment, bool, error) {
	ass, err := svc.repo.GetAssignmentByPaymentRef(ctx, ref)
	if err != nil {
		return Assignment{}, false, err
	}
	if ass.IsPaid {
		return ass, false, nil
	}

	ass, err = svc.repo.MarkAssignmentPaid(ctx, ass.ID, time.Now().UTC())
	if err != nil {
		if errors.Cause(err) == ErrAlreadyPaid {
			// lost the race with a concurrent verify; treat as applied earlier
			ass, err = svc.repo.GetAssignmentByPaymentRef(ctx, ref)
			return ass, false, err
		}
		return Assignment{}, false, err
	}
	svc.notifyPaid(ctx, ass)
	return ass, true, nil
}

// SubmissionURL discloses the student's submitted artifact to any party to
// the assignment.
func (svc *service) SubmissionURL(ctx context.Context, actor Actor, id string) (string, error) {
	ass, err := svc.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return ass.FileURL, nil
}

// CompletedURL discloses the completed artifact: freely to the admin and
// the assigned tutor, to the owning student only once paid.
func (svc *service) CompletedURL(ctx context.Context, actor Actor, id string) (string, error) {
	ass, err := svc.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	if !ass.CompletedFileURL.Valid {
		return "", ErrInvalidStatus
	}
	if actor.IsStudent() && !ass.IsPaid {
		return "", ErrPaymentRequired
	}
	return ass.CompletedFileURL.String, nil
}
