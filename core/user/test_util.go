package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// serviceMock behaves like the real service but skips outbound email,
// keeping tests independent of template assets.
type serviceMock struct {
	service
}

func NewServiceMock(repo Repository) Service {
	return &serviceMock{
		service: service{repo: repo},
	}
}

func (svc *serviceMock) RegisterStudent(ctx context.Context, ns NewStudent) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Name:      ns.Name,
		Email:     ns.Email,
		Role:      RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(ns.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *serviceMock) RegisterTutor(ctx context.Context, nt NewTutor) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:            uuid.New().String(),
		Name:          nt.Name,
		Email:         nt.Email,
		Role:          RoleTutor,
		Specialty:     nt.Specialty,
		CredentialURL: nt.CredentialURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nt.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := svc.GetByEmail(ctx, email)
	return err
}

func (svc *serviceMock) ApproveTutor(ctx context.Context, id string) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.IsTutor() {
		return User{}, ErrNotFound
	}
	usr.IsApproved = true
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}
