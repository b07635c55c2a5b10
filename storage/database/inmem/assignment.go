package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/assignment"
)

type assignmentRepository struct {
	db *assignmentTable
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db.assignment}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, ass assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[ass.ID] = &ass
	return ass, nil
}

func (repo *assignmentRepository) GetAssignmentByID(ctx context.Context, id string) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ass, ok := repo.db.table[id]; ok {
		return *ass, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) GetAssignmentByPaymentRef(ctx context.Context, ref string) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if id, ok := repo.db.byRef[ref]; ok {
		if ass, ok := repo.db.table[id]; ok {
			return *ass, nil
		}
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) FilterAssignments(ctx context.Context, filter assignment.QueryFilter, ordering ...core.DBOrdering) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	matches := make([]assignment.Assignment, 0)
	for _, ass := range repo.db.table {
		if filter.StudentID != "" && ass.StudentID != filter.StudentID {
			continue
		}
		if filter.TutorID != "" && !ass.IsAssignedTo(filter.TutorID) {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(ass.Status, filter.Statuses) {
			continue
		}
		if filter.Specialty != "" && ass.Specialty != filter.Specialty {
			continue
		}
		if filter.IsPaid != nil && ass.IsPaid != *filter.IsPaid {
			continue
		}
		matches = append(matches, *ass)
	}
	sortAssignments(matches, ordering)
	return matches, nil
}

func statusIn(s assignment.Status, statuses []assignment.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func sortAssignments(asses []assignment.Assignment, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "submitted_at", Ascending: true}}
	}
	ord := ordering[0]
	sort.SliceStable(asses, func(i, j int) bool {
		var less bool
		switch ord.Field {
		case "title":
			less = asses[i].Title < asses[j].Title
		case "updated_at":
			less = asses[i].UpdatedAt.Before(asses[j].UpdatedAt)
		default:
			less = asses[i].SubmittedAt.Before(asses[j].SubmittedAt)
		}
		if !ord.Ascending {
			return !less
		}
		return less
	})
}

// UpdateAssignment only persists `ass` if the stored row still has status
// `expect`; otherwise the row has already transitioned and the caller gets
// assignment.ErrInvalidStatus.
func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, ass assignment.Assignment, expect assignment.Status) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[ass.ID]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	if orig.Status != expect {
		return assignment.Assignment{}, assignment.ErrInvalidStatus
	}

	if orig.PaymentRef.Valid {
		delete(repo.db.byRef, orig.PaymentRef.String)
	}
	if ass.PaymentRef.Valid {
		repo.db.byRef[ass.PaymentRef.String] = ass.ID
	}
	repo.db.table[ass.ID] = &ass
	return ass, nil
}

func (repo *assignmentRepository) MarkAssignmentPaid(ctx context.Context, id string, paidAt time.Time) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[id]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	if orig.Status != assignment.StatusCompleted {
		return assignment.Assignment{}, assignment.ErrInvalidStatus
	}
	if orig.IsPaid {
		return assignment.Assignment{}, assignment.ErrAlreadyPaid
	}

	ass := *orig
	ass.IsPaid = true
	ass.PaidAt = null.TimeFrom(paidAt)
	ass.UpdatedAt = paidAt
	repo.db.table[id] = &ass
	return ass, nil
}
