package assignment

import (
	"context"
	"net/mail"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/user"
)

// Lifecycle notifications. Delivery is best-effort; a failed lookup or send
// never fails the transition that triggered it.

type assignmentEmailData struct {
	ID          string
	Title       string
	Specialty   string
	StudentName string
	TutorName   string
	Charge      float64
}

func (svc *service) notifySubmitted(ctx context.Context, ass Assignment) {
	student, err := svc.users.GetUserByID(ctx, ass.StudentID)
	if err != nil {
		svc.log.Error("assignment submitted: student lookup failed", "id", ass.ID, "err", err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{svc.conf.AdminEmail},
		Subject:      "New assignment submitted",
		TemplateName: "assignment-submitted",
		TemplateData: assignmentEmailData{
			ID:          ass.ID,
			Title:       ass.Title,
			Specialty:   ass.Specialty,
			StudentName: student.Name,
		},
	})
}

func (svc *service) notifyClaimed(ctx context.Context, ass Assignment, tutor user.User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: tutor.Name, Address: tutor.Email}},
		Subject:      "A new assignment needs your review",
		TemplateName: "assignment-assigned",
		TemplateData: assignmentEmailData{
			ID:        ass.ID,
			Title:     ass.Title,
			Specialty: ass.Specialty,
			TutorName: tutor.Name,
		},
	})
}

func (svc *service) notifyPriced(ctx context.Context, ass Assignment) {
	student, err := svc.users.GetUserByID(ctx, ass.StudentID)
	if err != nil {
		svc.log.Error("assignment priced: student lookup failed", "id", ass.ID, "err", err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Your assignment is in progress",
		TemplateName: "assignment-priced",
		TemplateData: assignmentEmailData{
			ID:          ass.ID,
			Title:       ass.Title,
			StudentName: student.Name,
			Charge:      ass.TutorCharge.Float64,
		},
	})
}

func (svc *service) notifyRejected(ctx context.Context, ass Assignment) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{svc.conf.AdminEmail},
		Subject:      "Assignment declined by tutor",
		TemplateName: "assignment-rejected",
		TemplateData: assignmentEmailData{
			ID:        ass.ID,
			Title:     ass.Title,
			Specialty: ass.Specialty,
		},
	})
}

func (svc *service) notifyCompleted(ctx context.Context, ass Assignment) {
	student, err := svc.users.GetUserByID(ctx, ass.StudentID)
	if err != nil {
		svc.log.Error("assignment completed: student lookup failed", "id", ass.ID, "err", err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Your assignment is complete",
		TemplateName: "assignment-completed",
		TemplateData: assignmentEmailData{
			ID:          ass.ID,
			Title:       ass.Title,
			StudentName: student.Name,
			Charge:      ass.TutorCharge.Float64,
		},
	})
}

func (svc *service) notifyPaid(ctx context.Context, ass Assignment) {
	student, err := svc.users.GetUserByID(ctx, ass.StudentID)
	if err != nil {
		svc.log.Error("assignment paid: student lookup failed", "id", ass.ID, "err", err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Payment received",
		TemplateName: "assignment-paid",
		TemplateData: assignmentEmailData{
			ID:          ass.ID,
			Title:       ass.Title,
			StudentName: student.Name,
		},
	})
}
