package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/assignment"
)

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

// columns clients may order by
var assignmentOrderColumns = map[string]bool{
	"title":        true,
	"specialty":    true,
	"status":       true,
	"tutor_charge": true,
	"submitted_at": true,
	"completed_at": true,
	"updated_at":   true,
}

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

type assignmentRow struct {
	ID               string       `db:"id"`
	StudentID        string       `db:"student_id"`
	TutorID          null.String  `db:"tutor_id"`
	Title            string       `db:"title"`
	Description      string       `db:"description"`
	Specialty        string       `db:"specialty"`
	Status           string       `db:"status"`
	TutorCharge      null.Float64 `db:"tutor_charge"`
	IsPaid           bool         `db:"is_paid"`
	PaymentRef       null.String  `db:"payment_ref"`
	FileURL          string       `db:"file_url"`
	CompletedFileURL null.String  `db:"completed_file_url"`
	SubmittedAt      time.Time    `db:"submitted_at"`
	CompletedAt      null.Time    `db:"completed_at"`
	PaidAt           null.Time    `db:"paid_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (repo assignmentRepository) toRow(ass assignment.Assignment) assignmentRow {
	return assignmentRow{
		ID:               ass.ID,
		StudentID:        ass.StudentID,
		TutorID:          ass.TutorID,
		Title:            ass.Title,
		Description:      ass.Description,
		Specialty:        ass.Specialty,
		Status:           string(ass.Status),
		TutorCharge:      ass.TutorCharge,
		IsPaid:           ass.IsPaid,
		PaymentRef:       ass.PaymentRef,
		FileURL:          ass.FileURL,
		CompletedFileURL: ass.CompletedFileURL,
		SubmittedAt:      ass.SubmittedAt.UTC(),
		CompletedAt:      ass.CompletedAt,
		PaidAt:           ass.PaidAt,
		UpdatedAt:        ass.UpdatedAt.UTC(),
	}
}

func (repo assignmentRepository) fromRow(row assignmentRow) assignment.Assignment {
	return assignment.Assignment{
		ID:               row.ID,
		StudentID:        row.StudentID,
		TutorID:          row.TutorID,
		Title:            row.Title,
		Description:      row.Description,
		Specialty:        row.Specialty,
		Status:           assignment.Status(row.Status),
		TutorCharge:      row.TutorCharge,
		IsPaid:           row.IsPaid,
		PaymentRef:       row.PaymentRef,
		FileURL:          row.FileURL,
		CompletedFileURL: row.CompletedFileURL,
		SubmittedAt:      row.SubmittedAt,
		CompletedAt:      row.CompletedAt,
		PaidAt:           row.PaidAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func (repo assignmentRepository) fromRows(rows []assignmentRow) []assignment.Assignment {
	asses := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		asses = append(asses, repo.fromRow(row))
	}
	return asses
}

// trapNoRowsErr maps psql "no rows" err to assignment.ErrNotFound
func (repo assignmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return assignment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, ass assignment.Assignment) (assignment.Assignment, error) {
	const query = `
		INSERT INTO assignment (id, student_id, tutor_id, title, description, specialty, status, tutor_charge,
			is_paid, payment_ref, file_url, completed_file_url, submitted_at, completed_at, paid_at, updated_at)
		VALUES (:id, :student_id, :tutor_id, :title, :description, :specialty, :status, :tutor_charge,
			:is_paid, :payment_ref, :file_url, :completed_file_url, :submitted_at, :completed_at, :paid_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, repo.toRow(ass)); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return ass, nil
}

func (repo assignmentRepository) GetAssignmentByID(ctx context.Context, id string) (assignment.Assignment, error) {
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignment WHERE id = $1`, id); err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, "finding assignment by ID")
	}
	return repo.fromRow(row), nil
}

func (repo assignmentRepository) GetAssignmentByPaymentRef(ctx context.Context, ref string) (assignment.Assignment, error) {
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignment WHERE payment_ref = $1`, ref); err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, "finding assignment by payment ref")
	}
	return repo.fromRow(row), nil
}

func (repo assignmentRepository) FilterAssignments(ctx context.Context, filter assignment.QueryFilter, ordering ...core.DBOrdering) ([]assignment.Assignment, error) {
	query := `SELECT * FROM assignment`
	var conds []string
	var args []interface{}

	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.StudentID != "" {
		conds = append(conds, "student_id = "+arg(filter.StudentID))
	}
	if filter.TutorID != "" {
		conds = append(conds, "tutor_id = "+arg(filter.TutorID))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			placeholders = append(placeholders, arg(string(status)))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.Specialty != "" {
		conds = append(conds, "specialty = "+arg(filter.Specialty))
	}
	if filter.IsPaid != nil {
		conds = append(conds, "is_paid = "+arg(*filter.IsPaid))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += orderBy(ordering, assignmentOrderColumns, "submitted_at DESC")

	var rows []assignmentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return repo.fromRows(rows), nil
}

// UpdateAssignment persists `ass` only if the stored row still has status
// `expect`. The status predicate makes the update a compare-and-swap: of
// two concurrent transitions from the same source state, exactly one
// matches zero rows and gets assignment.ErrInvalidStatus.
func (repo assignmentRepository) UpdateAssignment(ctx context.Context, ass assignment.Assignment, expect assignment.Status) (assignment.Assignment, error) {
	const query = `
		UPDATE assignment
		SET tutor_id = :tutor_id, title = :title, description = :description, specialty = :specialty,
			status = :status, tutor_charge = :tutor_charge, payment_ref = :payment_ref,
			completed_file_url = :completed_file_url, completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id AND status = :expected_status`

	row := struct {
		assignmentRow
		ExpectedStatus string `db:"expected_status"`
	}{repo.toRow(ass), string(expect)}

	res, err := repo.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if cnt == 0 {
		// either gone or already transitioned; look it up to tell them apart
		if _, err = repo.GetAssignmentByID(ctx, ass.ID); err != nil {
			return assignment.Assignment{}, err
		}
		return assignment.Assignment{}, assignment.ErrInvalidStatus
	}
	return ass, nil
}

func (repo assignmentRepository) MarkAssignmentPaid(ctx context.Context, id string, paidAt time.Time) (assignment.Assignment, error) {
	const query = `
		UPDATE assignment
		SET is_paid = TRUE, paid_at = $2, updated_at = $2
		WHERE id = $1 AND status = $3 AND is_paid = FALSE`

	res, err := repo.db.ExecContext(ctx, query, id, paidAt.UTC(), string(assignment.StatusCompleted))
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "marking assignment paid")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "marking assignment paid")
	}
	if cnt == 0 {
		ass, err := repo.GetAssignmentByID(ctx, id)
		if err != nil {
			return assignment.Assignment{}, err
		}
		if ass.IsPaid {
			return assignment.Assignment{}, assignment.ErrAlreadyPaid
		}
		return assignment.Assignment{}, assignment.ErrInvalidStatus
	}
	return repo.GetAssignmentByID(ctx, id)
}
