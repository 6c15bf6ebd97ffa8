package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/handlers/testutil"
	"github.com/hireloop/hireloop/internal/models"
)

func TestHealthEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestRegisterAndLoginFlow(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "new-user@example.com",
		"password": "Secret123!",
		"name":     "New User",
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	// Duplicate registration conflicts.
	resp = env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "new-user@example.com",
		"password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "new-user@example.com",
		"password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	decoded := testutil.DecodeResponse(t, resp)
	var result struct {
		AccessToken string `json:"access_token"`
	}
	testutil.DecodeInto(t, decoded.Data, &result)
	require.NotEmpty(t, result.AccessToken)

	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "new-user@example.com",
		"password": "wrong",
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code, resp.Body.String())
}

func TestPasswordResetNeverConfirmsAccounts(t *testing.T) {
	env := testutil.NewEnv(t)

	env.CreateUser("known@example.com", "Secret123!", models.RoleMember, nil)

	known := env.Request(http.MethodPost, "/api/auth/reset-password/request", map[string]string{
		"email": "known@example.com",
	}, "")
	unknown := env.Request(http.MethodPost, "/api/auth/reset-password/request", map[string]string{
		"email": "unknown@example.com",
	}, "")

	require.Equal(t, http.StatusOK, known.Code, known.Body.String())
	require.Equal(t, http.StatusOK, unknown.Code, unknown.Body.String())
	require.JSONEq(t, known.Body.String(), unknown.Body.String())

	// Invalid and expired tokens collapse to the same answer.
	resp := env.Request(http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token":    "no-such-token",
		"password": "NewSecret123!",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
}

func TestJobRoutesRequireAuthAndEntitlement(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/jobs", map[string]string{"title": "SRE"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code, resp.Body.String())

	_, token := env.CreateCompanyWithTrial("acme")

	resp = env.Request(http.MethodPost, "/api/jobs", map[string]string{"title": "SRE"}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/jobs", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// A company with no subscription is blocked with a payment status.
	company := &models.Company{Name: "no-sub-co"}
	require.NoError(t, env.DB.Create(company).Error)
	_, blockedToken := env.CreateUser("blocked@example.com", "Secret123!", models.RoleMember, &company.ID)

	resp = env.Request(http.MethodPost, "/api/jobs", map[string]string{"title": "QA"}, blockedToken)
	require.Equal(t, http.StatusPaymentRequired, resp.Code, resp.Body.String())
	decoded := testutil.DecodeResponse(t, resp)
	require.NotNil(t, decoded.Error)
	require.Equal(t, "SUBSCRIPTION_EXPIRED", decoded.Error.Code)
}

func TestQuotaExhaustionOverHTTP(t *testing.T) {
	env := testutil.NewEnv(t)

	company, token := env.CreateCompanyWithTrial("quota-co")

	var trialPlan models.Plan
	require.NoError(t, env.DB.Where("name = ?", "trial").First(&trialPlan).Error)
	require.NoError(t, env.DB.Model(&models.Subscription{}).
		Where("company_id = ?", company.ID).
		Update("jobs_created_this_month", trialPlan.JobLimit).Error)

	resp := env.Request(http.MethodPost, "/api/jobs", map[string]string{"title": "One Too Many"}, token)
	require.Equal(t, http.StatusPaymentRequired, resp.Code, resp.Body.String())
	decoded := testutil.DecodeResponse(t, resp)
	require.Equal(t, "QUOTA_EXCEEDED", decoded.Error.Code)
}

func TestReactivateRequiresAdminRole(t *testing.T) {
	env := testutil.NewEnv(t)

	company, memberToken := env.CreateCompanyWithTrial("suspended-co")

	sub, err := env.Subscriptions.Current(context.Background(), company.ID)
	require.NoError(t, err)
	_, err = env.Subscriptions.Activate(context.Background(), sub.ID)
	require.NoError(t, err)
	_, err = env.Subscriptions.MarkPastDue(context.Background(), sub.ID, 7)
	require.NoError(t, err)
	_, err = env.Subscriptions.Suspend(context.Background(), sub.ID, "payment failure")
	require.NoError(t, err)

	resp := env.Request(http.MethodPost, "/api/subscriptions/"+sub.ID+"/reactivate", nil, memberToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	_, adminToken := env.CreateUser("platform-admin@example.com", "Secret123!", models.RoleAdmin, nil)

	resp = env.Request(http.MethodPost, "/api/subscriptions/"+sub.ID+"/reactivate", nil, adminToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// Repeating the reactivation conflicts.
	resp = env.Request(http.MethodPost, "/api/subscriptions/"+sub.ID+"/reactivate", nil, adminToken)
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/subscriptions/missing-id/reactivate", nil, adminToken)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
}

func TestInvitationOnboardingOverHTTP(t *testing.T) {
	env := testutil.NewEnv(t)

	_, adminToken := env.CreateUser("ops@example.com", "Secret123!", models.RoleAdmin, nil)

	resp := env.Request(http.MethodPost, "/api/invitations", map[string]any{
		"email":        "founder@startup.example",
		"company_name": "Startup GmbH",
	}, adminToken)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	decoded := testutil.DecodeResponse(t, resp)
	var created struct {
		Token string `json:"token"`
	}
	testutil.DecodeInto(t, decoded.Data, &created)
	require.NotEmpty(t, created.Token)

	// Members cannot invite.
	_, memberToken := env.CreateUser("someone@example.com", "Secret123!", models.RoleMember, nil)
	resp = env.Request(http.MethodPost, "/api/invitations", map[string]any{
		"email":        "x@example.com",
		"company_name": "X",
	}, memberToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	// Public verification reports validity without details for bad tokens.
	resp = env.Request(http.MethodPost, "/api/company-setup/verify-token", map[string]string{"token": created.Token}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	decoded = testutil.DecodeResponse(t, resp)
	var verify struct {
		Valid bool `json:"valid"`
	}
	testutil.DecodeInto(t, decoded.Data, &verify)
	require.True(t, verify.Valid)

	resp = env.Request(http.MethodPost, "/api/company-setup/verify-token", map[string]string{"token": "bogus"}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	decoded = testutil.DecodeResponse(t, resp)
	testutil.DecodeInto(t, decoded.Data, &verify)
	require.False(t, verify.Valid)

	resp = env.Request(http.MethodPost, "/api/company-setup/complete", map[string]string{
		"token":    created.Token,
		"password": "Founder123!",
		"name":     "Founder",
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	// The new company landed on a trial and can log in.
	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "founder@startup.example",
		"password": "Founder123!",
	}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var sub models.Subscription
	require.NoError(t, env.DB.Where("status = ?", models.SubscriptionTrial).
		Joins("JOIN companies ON companies.id = subscriptions.company_id").
		Where("companies.name = ?", "Startup GmbH").
		First(&sub).Error)

	// Replaying the completed invitation conflicts.
	resp = env.Request(http.MethodPost, "/api/company-setup/complete", map[string]string{
		"token":    created.Token,
		"password": "Founder123!",
	}, "")
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
}
