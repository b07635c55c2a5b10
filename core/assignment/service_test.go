package assignment_test

import (
	"context"
	"net/mail"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/assignment"
	"github.com/fundisha/backend/core/user"
	inmemdb "github.com/fundisha/backend/storage/database/inmem"
	testutil "github.com/fundisha/backend/tests"
)

type mailRecorder struct {
	mutex    sync.Mutex
	messages []*core.EmailMessage
}

func (rec *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	rec.messages = append(rec.messages, messages...)
}

func (rec *mailRecorder) count() int {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	return len(rec.messages)
}

type testLogger struct{}

func (testLogger) Debug(msg string, args ...interface{}) {}
func (testLogger) Info(msg string, args ...interface{})  {}
func (testLogger) Warn(msg string, args ...interface{})  {}
func (testLogger) Error(msg string, args ...interface{}) {}
func (testLogger) Fatal(msg string, args ...interface{}) {}

type fixture struct {
	svc      assignment.Service
	repo     assignment.Repository
	userRepo user.Repository
	mail     *mailRecorder

	admin   user.User
	student user.User
	tutor   user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if core.Validate == nil {
		core.InitValidators()
	}

	db := inmemdb.Open()
	fix := &fixture{
		repo:     inmemdb.NewAssignmentRepository(db),
		userRepo: inmemdb.NewUserRepository(db),
		mail:     &mailRecorder{},
	}
	conf := &core.Config{
		AppName:    "Fundisha",
		AdminEmail: mail.Address{Name: "Fundisha Admin", Address: "admin@fundisha.test"},
	}
	fix.svc = assignment.NewService(fix.repo, fix.userRepo, fix.mail, conf, testLogger{})

	fix.admin = testutil.CreateAdmin(t, fix.userRepo, "Admin", "admin@fundisha.test", "")
	fix.student = testutil.CreateStudent(t, fix.userRepo, "Jane Doe", "jane@test.test", "")
	fix.tutor = testutil.CreateTutor(t, fix.userRepo, "John Tutor", "john@test.test", "", "Mathematics", true)
	return fix
}

func actorFor(usr user.User) assignment.Actor {
	return assignment.Actor{ID: usr.ID, Role: usr.Role}
}

func TestServiceSubmit(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	na := assignment.NewAssignment{
		Title:     "Linear algebra problem set",
		Specialty: "Mathematics",
		FileURL:   "https://files.test/submissions/pset.pdf",
	}

	t.Run("only students submit", func(t *testing.T) {
		_, err := fix.svc.Submit(ctx, actorFor(fix.tutor), na)
		assert.Equal(t, assignment.ErrForbidden, err)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		_, err := fix.svc.Submit(ctx, actorFor(fix.student), assignment.NewAssignment{Title: "no specialty"})
		var vErrs validator.ValidationErrors
		assert.ErrorAs(t, err, &vErrs)
	})

	t.Run("ok", func(t *testing.T) {
		ass, err := fix.svc.Submit(ctx, actorFor(fix.student), na)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusPending, ass.Status)
		assert.Equal(t, fix.student.ID, ass.StudentID)
		assert.False(t, ass.TutorID.Valid)
		assert.Equal(t, 1, fix.mail.count()) // admin notified
	})
}

func TestServiceAssign(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	unapproved := testutil.CreateTutor(t, fix.userRepo, "Newbie", "newbie@test.test", "", "Mathematics", false)
	ass := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset1", "Mathematics", assignment.StatusPending)

	t.Run("admin only", func(t *testing.T) {
		_, err := fix.svc.Assign(ctx, actorFor(fix.student), ass.ID, fix.tutor.ID)
		assert.Equal(t, assignment.ErrForbidden, err)
	})

	t.Run("unapproved tutor rejected", func(t *testing.T) {
		_, err := fix.svc.Assign(ctx, actorFor(fix.admin), ass.ID, unapproved.ID)
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("student is not assignable", func(t *testing.T) {
		_, err := fix.svc.Assign(ctx, actorFor(fix.admin), ass.ID, fix.student.ID)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		// a non-tutor target reads the same as an unknown one
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "tutor not found", vErr.Fields[0].Error)
	})

	t.Run("ok", func(t *testing.T) {
		got, err := fix.svc.Assign(ctx, actorFor(fix.admin), ass.ID, fix.tutor.ID)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusClaimed, got.Status)
		assert.Equal(t, fix.tutor.ID, got.TutorID.String)
	})

	t.Run("cannot assign twice", func(t *testing.T) {
		_, err := fix.svc.Assign(ctx, actorFor(fix.admin), ass.ID, fix.tutor.ID)
		assert.Equal(t, assignment.ErrInvalidStatus, err)
	})
}

func TestServiceClaim(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	physTutor := testutil.CreateTutor(t, fix.userRepo, "Phys", "phys@test.test", "", "Physics", true)
	unapproved := testutil.CreateTutor(t, fix.userRepo, "Newbie", "newbie@test.test", "", "Mathematics", false)

	pending := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset1", "Mathematics", assignment.StatusPending)
	open := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset2", "Mathematics", assignment.StatusOpen)

	t.Run("pending is not claimable", func(t *testing.T) {
		_, err := fix.svc.Claim(ctx, actorFor(fix.tutor), pending.ID)
		assert.Equal(t, assignment.ErrInvalidStatus, err)
	})

	t.Run("specialty must match", func(t *testing.T) {
		_, err := fix.svc.Claim(ctx, actorFor(physTutor), open.ID)
		assert.Equal(t, assignment.ErrForbidden, err)
	})

	t.Run("unapproved tutor cannot claim", func(t *testing.T) {
		_, err := fix.svc.Claim(ctx, actorFor(unapproved), open.ID)
		assert.Equal(t, assignment.ErrTutorNotEligible, err)
	})

	t.Run("ok", func(t *testing.T) {
		got, err := fix.svc.Claim(ctx, actorFor(fix.tutor), open.ID)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusClaimed, got.Status)
		assert.True(t, got.IsAssignedTo(fix.tutor.ID))
	})
}

func TestServiceClaimRace(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	open := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset", "Mathematics", assignment.StatusOpen)
	rival := testutil.CreateTutor(t, fix.userRepo, "Rival", "rival@test.test", "", "Mathematics", true)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, tut := range []user.User{fix.tutor, rival} {
		wg.Add(1)
		go func(tut user.User) {
			defer wg.Done()
			_, err := fix.svc.Claim(ctx, actorFor(tut), open.ID)
			errs <- err
		}(tut)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch err {
		case nil:
			won++
		case assignment.ErrInvalidStatus:
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestServiceReviewAndPrice(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	claimed := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset", "Mathematics",
		assignment.StatusClaimed, testutil.ClaimedBy(fix.tutor.ID))

	t.Run("assigned tutor only", func(t *testing.T) {
		other := testutil.CreateTutor(t, fix.userRepo, "Other", "other@test.test", "", "Mathematics", true)
		_, err := fix.svc.ReviewAndPrice(ctx, actorFor(other), claimed.ID, 50)
		assert.Equal(t, assignment.ErrForbidden, err)
	})

	t.Run("price must be positive", func(t *testing.T) {
		_, err := fix.svc.ReviewAndPrice(ctx, actorFor(fix.tutor), claimed.ID, -5)
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("ok", func(t *testing.T) {
		got, err := fix.svc.ReviewAndPrice(ctx, actorFor(fix.tutor), claimed.ID, 75.5)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusInProgress, got.Status)
		assert.Equal(t, 75.5, got.TutorCharge.Float64)
	})

	t.Run("cannot price twice", func(t *testing.T) {
		_, err := fix.svc.ReviewAndPrice(ctx, actorFor(fix.tutor), claimed.ID, 80)
		assert.Equal(t, assignment.ErrInvalidStatus, err)
	})
}

func TestServiceReject(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	claimed := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset", "Mathematics",
		assignment.StatusClaimed, testutil.ClaimedBy(fix.tutor.ID))

	got, err := fix.svc.Reject(ctx, actorFor(fix.tutor), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusRejected, got.Status)

	// terminal: cannot price nor reject again
	_, err = fix.svc.ReviewAndPrice(ctx, actorFor(fix.tutor), claimed.ID, 50)
	assert.Equal(t, assignment.ErrInvalidStatus, err)
	_, err = fix.svc.Reject(ctx, actorFor(fix.tutor), claimed.ID)
	assert.Equal(t, assignment.ErrInvalidStatus, err)

	// the admin returns it to the pool, shedding the previous tutor
	got, err = fix.svc.OpenForClaim(ctx, actorFor(fix.admin), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusOpen, got.Status)
	assert.False(t, got.TutorID.Valid)
	assert.False(t, got.TutorCharge.Valid)
}

func TestServiceComplete(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	inProgress := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset", "Mathematics",
		assignment.StatusInProgress, testutil.ClaimedBy(fix.tutor.ID), testutil.Priced(75))

	t.Run("file required", func(t *testing.T) {
		_, err := fix.svc.Complete(ctx, actorFor(fix.tutor), inProgress.ID, "")
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("ok", func(t *testing.T) {
		got, err := fix.svc.Complete(ctx, actorFor(fix.tutor), inProgress.ID, "https://files.test/solutions/pset.pdf")
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusCompleted, got.Status)
		assert.True(t, got.CompletedAt.Valid)
		assert.False(t, got.IsPaid)
	})
}

func TestServicePaymentGate(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	const solutionURL = "https://files.test/solutions/pset.pdf"
	completed := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset", "Mathematics",
		assignment.StatusCompleted, testutil.ClaimedBy(fix.tutor.ID), testutil.Priced(75), testutil.CompletedWith(solutionURL))

	t.Run("student blocked before payment", func(t *testing.T) {
		_, err := fix.svc.CompletedURL(ctx, actorFor(fix.student), completed.ID)
		assert.Equal(t, assignment.ErrPaymentRequired, err)
	})

	t.Run("tutor and admin see it regardless", func(t *testing.T) {
		url, err := fix.svc.CompletedURL(ctx, actorFor(fix.tutor), completed.ID)
		require.NoError(t, err)
		assert.Equal(t, solutionURL, url)

		url, err = fix.svc.CompletedURL(ctx, actorFor(fix.admin), completed.ID)
		require.NoError(t, err)
		assert.Equal(t, solutionURL, url)
	})

	t.Run("mark paid opens the gate", func(t *testing.T) {
		got, err := fix.svc.MarkPaid(ctx, actorFor(fix.admin), completed.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPaid)
		assert.True(t, got.PaidAt.Valid)

		url, err := fix.svc.CompletedURL(ctx, actorFor(fix.student), completed.ID)
		require.NoError(t, err)
		assert.Equal(t, solutionURL, url)
	})

	t.Run("cannot pay twice", func(t *testing.T) {
		_, err := fix.svc.MarkPaid(ctx, actorFor(fix.admin), completed.ID)
		assert.Equal(t, assignment.ErrAlreadyPaid, err)
	})
}

func TestServiceMarkPaidByRef(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	completed := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "pset", "Mathematics",
		assignment.StatusCompleted, testutil.ClaimedBy(fix.tutor.ID), testutil.Priced(75),
		testutil.CompletedWith("https://files.test/solutions/pset.pdf"))

	_, err := fix.svc.AttachPaymentRef(ctx, completed.ID, "ref-123")
	require.NoError(t, err)

	t.Run("unknown ref", func(t *testing.T) {
		_, _, err := fix.svc.MarkPaidByRef(ctx, "nope")
		assert.Equal(t, assignment.ErrNotFound, err)
	})

	t.Run("first verify applies", func(t *testing.T) {
		got, applied, err := fix.svc.MarkPaidByRef(ctx, "ref-123")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.True(t, got.IsPaid)
	})

	mailsAfterFirst := fix.mail.count()

	t.Run("second verify is a no-op", func(t *testing.T) {
		got, applied, err := fix.svc.MarkPaidByRef(ctx, "ref-123")
		require.NoError(t, err)
		assert.False(t, applied)
		assert.True(t, got.IsPaid)
		assert.Equal(t, mailsAfterFirst, fix.mail.count())
	})
}

func TestServiceQueryScoping(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	otherStudent := testutil.CreateStudent(t, fix.userRepo, "Ali", "ali@test.test", "")
	mine := testutil.CreateAssignment(t, fix.repo, fix.student.ID, "mine", "Mathematics", assignment.StatusPending)
	testutil.CreateAssignment(t, fix.repo, otherStudent.ID, "theirs", "Mathematics",
		assignment.StatusClaimed, testutil.ClaimedBy(fix.tutor.ID))

	t.Run("student sees only their own", func(t *testing.T) {
		asses, err := fix.svc.Query(ctx, actorFor(fix.student), &assignment.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, asses, 1)
		assert.Equal(t, mine.ID, asses[0].ID)
	})

	t.Run("tutor sees only assignments routed to them", func(t *testing.T) {
		asses, err := fix.svc.Query(ctx, actorFor(fix.tutor), &assignment.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, asses, 1)
		assert.Equal(t, "theirs", asses[0].Title)
	})

	t.Run("admin sees all", func(t *testing.T) {
		asses, err := fix.svc.Query(ctx, actorFor(fix.admin), &assignment.QueryFilter{})
		require.NoError(t, err)
		assert.Len(t, asses, 2)
	})

	t.Run("stranger cannot fetch by id", func(t *testing.T) {
		_, err := fix.svc.Get(ctx, actorFor(otherStudent), mine.ID)
		assert.Equal(t, assignment.ErrNotFound, err)
	})
}

func TestServiceOpenQueue(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()

	_, err := fix.svc.OpenForClaim(ctx, actorFor(fix.admin),
		testutil.CreateAssignment(t, fix.repo, fix.student.ID, "math pset", "Mathematics", assignment.StatusPending).ID)
	require.NoError(t, err)
	testutil.CreateAssignment(t, fix.repo, fix.student.ID, "physics lab", "Physics", assignment.StatusOpen)

	asses, err := fix.svc.OpenQueue(ctx, actorFor(fix.tutor))
	require.NoError(t, err)
	require.Len(t, asses, 1)
	assert.Equal(t, "math pset", asses[0].Title)
}
