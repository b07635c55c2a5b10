package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	echoapi "github.com/fundisha/backend/apps/api/echo"
	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/user"
	testutil "github.com/fundisha/backend/tests"
)

func Test_userApi_login(t *testing.T) {
	resetDB(t)

	student := testutil.CreateStudent(t, usrRepo, "Hero", "hero@test.ke", "LolC@t123")
	testutil.CreateTutor(t, usrRepo, "Prof", "prof@test.ke", "LolC@t123", "Mathematics", true)
	pending := testutil.CreateTutor(t, usrRepo, "Newbie", "newbie@test.ke", "LolC@t123", "Physics", false)

	// approved but never verified their email
	unverified := user.User{
		ID:         uuid.New().String(),
		Name:       "Rush",
		Email:      "rush@test.ke",
		Role:       user.RoleTutor,
		Specialty:  "Chemistry",
		IsApproved: true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := unverified.SetPassword("LolC@t123"); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	unverified, err := usrRepo.CreateUser(context.Background(), unverified)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Email: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown email", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Email: "ghost@test.ke", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Email: student.Email, Password: "nope"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unapproved tutor", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Email: pending.Email, Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account pending approval"}),
		},
		{
			name: "unverified tutor", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Email: unverified.Email, Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account pending approval"}),
		},
		{
			name: "student ok", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Email: student.Email, Password: "LolC@t123"}),
		},
		{
			name: "approved tutor ok", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Email: "prof@test.ke", Password: "LolC@t123"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}

				// token must also land in an HTTP-only cookie
				res := rec.Result()
				var found bool
				for _, c := range res.Cookies() {
					if c.Name == "token" && c.Value == respData.Token && c.HttpOnly {
						found = true
					}
				}
				if !found {
					t.Error("failed! token cookie not set")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_registerStudent(t *testing.T) {
	resetDB(t)

	student := testutil.CreateStudent(t, usrRepo, "Hero", "hero@test.ke", "LolC@t123")

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, user.NewStudent{Name: reqMsg, Email: reqMsg, Password: "password must contain at least 8 characters", PasswordConfirm: reqMsg}),
		},
		{
			name: "invalid email", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewStudent{Name: "Neo", Email: "lol", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "email taken", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewStudent{Name: "Imposter", Email: student.Email, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
		{
			name: "password mismatch", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewStudent{Name: "Neo", Email: "neo@test.ke", Password: "LolC@t123", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name: "registered", wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewStudent{Name: "Neo", Email: "neo@test.ke", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register/student"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if usr.ID == "" || usr.Role != user.RoleStudent || usr.Email != "neo@test.ke" {
					t.Errorf("failed! unexpected user %+v", usr)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_registerTutor(t *testing.T) {
	resetDB(t)

	tests := []httpTest{
		{
			name: "specialty required", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewTutor{Name: "Prof", Email: "prof@test.ke", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, map[string]string{"specialty": "this field is required"}),
		},
		{
			name: "specialty charset", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewTutor{Name: "Prof", Email: "prof@test.ke", Password: "LolC@t123", PasswordConfirm: "LolC@t123", Specialty: "Math & Stats"}),
			wantData: marchallObj(t, map[string]string{"specialty": "only alphanumeric characters and underscores are allowed"}),
		},
		{
			name: "registered unapproved", wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewTutor{Name: "Prof", Email: "prof@test.ke", Password: "LolC@t123", PasswordConfirm: "LolC@t123", Specialty: "Mathematics"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register/tutor"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if usr.Role != user.RoleTutor || usr.Specialty != "Mathematics" {
					t.Errorf("failed! unexpected user %+v", usr)
				}
				if usr.IsApproved {
					t.Error("failed! tutor must start unapproved")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_query(t *testing.T) {
	resetDB(t)

	path := func(search, role, specialty, ordering string, isApproved *bool) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if role != "" {
			v.Add("role", role)
		}
		if specialty != "" {
			v.Add("specialty", specialty)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isApproved != nil {
			v.Add("is_approved", strconv.FormatBool(*isApproved))
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	t1 := now.Add(1 * time.Hour)
	t2 := now.Add(2 * time.Hour)
	t3 := now.Add(3 * time.Hour)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.ke", "LolC@t123", user.RoleAdmin, "", true, now)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.ke", "LolC@t123", user.RoleStudent, "", false, t1)
	prof := testutil.CreateUser(t, usrRepo, "Prof", "prof@test.ke", "LolC@t123", user.RoleTutor, "Mathematics", true, t2)
	newbie := testutil.CreateUser(t, usrRepo, "Newbie", "newbie@test.ke", "LolC@t123", user.RoleTutor, "Physics", false, t3)

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, hero), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Get all", path: "/v1/users", token: adminToken, wantData: marchallList(t, admin, hero, prof, newbie)},
		// filtering
		{name: "search (unknown)", path: path("lol", "", "", "", nil), token: adminToken, wantData: empty},
		{name: "search=PRO", path: path("PRO", "", "", "", nil), token: adminToken, wantData: marchallList(t, prof)},
		{name: "role=tutor", path: path("", user.RoleTutor, "", "", nil), token: adminToken, wantData: marchallList(t, prof, newbie)},
		{name: "specialty=Physics", path: path("", "", "Physics", "", nil), token: adminToken, wantData: marchallList(t, newbie)},
		{
			name: "is_approved=true", path: path("", "", "", "", bPtr(true)),
			token: adminToken, wantData: marchallList(t, admin, prof),
		},
		{
			name: "role=tutor & is_approved=false", path: path("", user.RoleTutor, "", "", bPtr(false)),
			token: adminToken, wantData: marchallList(t, newbie),
		},
		// ordering
		{
			name: "order by -created_at", path: path("", "", "", "-created_at", nil),
			token: adminToken, wantData: marchallList(t, newbie, prof, hero, admin),
		},
		{
			name: "order by name", path: path("", "", "", "name", nil),
			token: adminToken, wantData: marchallList(t, admin, hero, newbie, prof),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateAdmin(t, usrRepo, "Admin", "admin@test.ke", "LolC@t123")
	hero := testutil.CreateStudent(t, usrRepo, "Hero", "hero@test.ke", "LolC@t123")
	other := testutil.CreateStudent(t, usrRepo, "Other", "other@test.ke", "LolC@t123")

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + hero.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "hidden from non-admin strangers", path: "/v1/users/" + hero.ID, token: getToken(t, other),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "own account", path: "/v1/users/" + hero.ID, token: getToken(t, hero), wantCode: http.StatusOK, wantData: marchallObj(t, hero)},
		{name: "admin can read anyone", path: "/v1/users/" + hero.ID, token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, hero)},
		{
			name: "unknown ID", path: "/v1/users/b06f40b1-e745-4add-b24a-811e93b66ea0", token: getToken(t, admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	resetDB(t)

	hero := testutil.CreateStudent(t, usrRepo, "Hero", "hero@test.ke", "LolC@t123")

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "own profile", token: getToken(t, hero), wantCode: http.StatusOK, wantData: marchallObj(t, hero)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/users/me"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_approveTutor(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateAdmin(t, usrRepo, "Admin", "admin@test.ke", "LolC@t123")
	hero := testutil.CreateStudent(t, usrRepo, "Hero", "hero@test.ke", "LolC@t123")
	newbie := testutil.CreateTutor(t, usrRepo, "Newbie", "newbie@test.ke", "LolC@t123", "Physics", false)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + newbie.ID + "/approve", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users/" + newbie.ID + "/approve", token: getToken(t, hero),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "only tutors", path: "/v1/users/" + hero.ID + "/approve", token: getToken(t, admin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"id": "only tutors need approval"}),
		},
		{name: "approved", path: "/v1/users/" + newbie.ID + "/approve", token: getToken(t, admin), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if !usr.IsApproved {
					t.Error("failed! tutor not approved")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	resetDB(t)

	hero := testutil.CreateStudent(t, usrRepo, "Hero", "hero@test.ke", "LolC@t123")
	pending := testutil.CreateTutor(t, usrRepo, "Newbie", "newbie@test.ke", "LolC@t123", "Physics", false)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    core.Conf.AppName,
			Subject:   hero.ID,
			Audience:  "Fundisha",
			ExpiresAt: now.Add(core.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * core.Conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Name:         hero.Name,
		Email:        hero.Email,
		IsStudent:    true,
	}
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Unapproved tutor not allowed", token: getToken(t, pending), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account pending approval"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, hero), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
