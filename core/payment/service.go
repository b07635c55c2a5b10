package payment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/assignment"
)

// ErrUpstream hides gateway failures behind a single sentinel; the raw
// cause is only ever logged.
var ErrUpstream = errors.New("payment provider unavailable")

type (
	InitResult struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}

	VerifyResult struct {
		Reference string
		Success   bool
		Amount    float64
	}

	// Gateway abstracts the payment provider. Amounts are in the major
	// currency unit; providers working in minor units convert internally.
	Gateway interface {
		Initialize(ctx context.Context, email string, amount float64, metadata map[string]string) (InitResult, error)
		Verify(ctx context.Context, ref string) (VerifyResult, error)
	}

	Service interface {
		// Start initializes a provider checkout for the assignment's charge
		// and records the provider reference on the assignment.
		Start(ctx context.Context, actor assignment.Actor, assignmentID string) (InitResult, error)
		// Confirm verifies the reference with the provider and, on success,
		// marks the matching assignment paid. Re-confirming an applied
		// reference is a successful no-op.
		Confirm(ctx context.Context, ref string) (assignment.Assignment, error)
	}

	service struct {
		gw          Gateway
		assignments assignment.Service
		log         core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(gw Gateway, assignments assignment.Service, log core.Logger) Service {
	return &service{
		gw:          gw,
		assignments: assignments,
		log:         log,
	}
}

func (svc *service) Start(ctx context.Context, actor assignment.Actor, assignmentID string) (InitResult, error) {
	ass, student, err := svc.assignments.StartPayment(ctx, actor, assignmentID)
	if err != nil {
		return InitResult{}, err
	}

	res, err := svc.gw.Initialize(ctx, student.Email, ass.TutorCharge.Float64, map[string]string{
		"assignment_id": ass.ID,
		"student_id":    student.ID,
	})
	if err != nil {
		svc.log.Error("initializing payment", "assignment_id", ass.ID, "err", err)
		return InitResult{}, ErrUpstream
	}

	if _, err = svc.assignments.AttachPaymentRef(ctx, ass.ID, res.Reference); err != nil {
		return InitResult{}, errors.Wrap(err, "recording payment reference")
	}
	return res, nil
}

func (svc *service) Confirm(ctx context.Context, ref string) (assignment.Assignment, error) {
	res, err := svc.gw.Verify(ctx, ref)
	if err != nil {
		svc.log.Error("verifying payment", "reference", ref, "err", err)
		return assignment.Assignment{}, ErrUpstream
	}
	if !res.Success {
		return assignment.Assignment{}, core.NewValidationError(
			errors.New("payment not successful"),
			core.FieldError{Field: "reference", Error: "payment was not successful"},
		)
	}

	ass, _, err := svc.assignments.MarkPaidByRef(ctx, ref)
	return ass, err
}
