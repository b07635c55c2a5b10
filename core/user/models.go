package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fundisha/backend/core"
)

// Roles. A user holds exactly one; it is immutable after creation.
const (
	RoleAdmin   = "admin"
	RoleTutor   = "tutor"
	RoleStudent = "student"
)

var AllRoles = []string{RoleAdmin, RoleTutor, RoleStudent}

type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	Specialty     string    `json:"specialty,omitempty"`      // tutors only; drives assignment matching
	IsApproved    bool      `json:"is_approved"`              // tutors only; gates login and assignability
	IsVerified    bool      `json:"is_verified"`
	CredentialURL string    `json:"credential_url,omitempty"` // tutors only
	PasswordHash  []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
	LastLogin     time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTutor() bool   { return u.Role == RoleTutor }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// CanLogin reports whether the account is allowed to authenticate:
// tutors must verify their email and be admin-approved first.
func (u User) CanLogin() bool {
	return !u.IsTutor() || (u.IsApproved && u.IsVerified)
}

// NewStudent contains information needed to register a student account.
type NewStudent struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (ns *NewStudent) Validate(svc Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ns.Email)
}

// NewTutor contains information needed to register a tutor account.
// CredentialURL is filled by the HTTP layer after uploading the tutor's
// credential document to blob storage.
type NewTutor struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Specialty       string `json:"specialty" validate:"required,alphanum_"`
	CredentialURL   string `json:"credential_url" validate:"omitempty,url"`
}

func (nt *NewTutor) Validate(svc Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Specialty = core.CleanString(nt.Specialty)

	if err := core.Validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(nt.Email)
}

// VerifyEmail confirms ownership of the account's email address.
type VerifyEmail struct {
	UID   string `json:"uid,omitempty" validate:"required"`
	Token string `json:"token,omitempty" validate:"required"`
}

func (ve VerifyEmail) Validate() error { return core.Validate.Struct(ve) }

type ResetUserPassword struct {
	UID             string `json:"uid,omitempty" validate:"required"`
	Token           string `json:"token,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

type QueryFilter struct {
	Search     string `query:"search"`
	Role       string `query:"role"`
	Specialty  string `query:"specialty"`
	IsApproved *bool  `query:"is_approved"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.Specialty == "" && qf.IsApproved == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.Specialty = core.CleanString(qf.Specialty)
}
