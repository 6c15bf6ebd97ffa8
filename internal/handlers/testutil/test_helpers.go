package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/api"
	iauth "github.com/hireloop/hireloop/internal/auth"
	sharedtestutil "github.com/hireloop/hireloop/internal/database/testutil"
	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/internal/services"
	"github.com/hireloop/hireloop/pkg/crypto"
	"github.com/hireloop/hireloop/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory
// database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Subscriptions *services.SubscriptionService
	Invitations   *services.InvitationService
}

// NewEnv provisions a fresh handler test environment with migrations and
// seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	vault, err := services.NewTokenVault(db)
	require.NoError(t, err)
	accounts, err := services.NewAccountService(db, vault, nil)
	require.NoError(t, err)
	subscriptions, err := services.NewSubscriptionService(db)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, nil)
	require.NoError(t, err)
	onboarding, err := services.NewOnboardingService(db, invitations, subscriptions)
	require.NoError(t, err)
	guard, err := services.NewEntitlementGuard(subscriptions)
	require.NoError(t, err)
	jobs, err := services.NewJobService(db, guard, subscriptions)
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, api.Services{
		Accounts:      accounts,
		Subscriptions: subscriptions,
		Invitations:   invitations,
		Onboarding:    onboarding,
		Jobs:          jobs,
	})
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		JWT:           jwtSvc,
		Subscriptions: subscriptions,
		Invitations:   invitations,
	}
}

// CreateUser inserts a user with the given role, optionally attached to a
// company, and returns a bearer token for it.
func (e *Env) CreateUser(email, password, role string, companyID *string) (*models.User, string) {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		CompanyID:    companyID,
	}
	require.NoError(e.T, e.DB.Create(user).Error)

	cid := ""
	if companyID != nil {
		cid = *companyID
	}
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    user.ID,
		CompanyID: cid,
		Role:      role,
	})
	require.NoError(e.T, err)

	return user, token
}

// CreateCompanyWithTrial provisions a company with a current trial
// subscription and a member user, returning the company and the member's
// bearer token.
func (e *Env) CreateCompanyWithTrial(name string) (*models.Company, string) {
	e.T.Helper()

	company := &models.Company{Name: name}
	require.NoError(e.T, e.DB.Create(company).Error)

	_, err := e.Subscriptions.StartTrial(context.Background(), company.ID, 14)
	require.NoError(e.T, err)

	_, token := e.CreateUser(name+"-member@example.com", "Member123!", models.RoleMember, &company.ID)
	return company, token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
