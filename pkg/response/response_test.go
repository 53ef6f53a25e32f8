package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/charlesng35/authcore/pkg/errors"
	appValidator "github.com/charlesng35/authcore/pkg/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = prev })
	return fixed
}

func TestSuccess(t *testing.T) {
	fixed := fixedNow(t)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Success(ctx, http.StatusCreated, gin.H{"token": "abc"}, "Authentication successful")

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data      map[string]string `json:"data"`
		Message   string            `json:"message"`
		Timestamp time.Time         `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "abc", resp.Data["token"])
	require.Equal(t, "Authentication successful", resp.Message)
	require.True(t, fixed.Equal(resp.Timestamp))
}

func TestMessageKeepsNullData(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Message(ctx, http.StatusOK, "Logged out successfully")

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Equal(t, "null", string(raw["data"]))
	require.Contains(t, raw, "timestamp")
}

func TestErrorWithAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Error(ctx, appErrors.NewForbidden("Account not verified"))

	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Data)
	require.Equal(t, "Account not verified", resp.Message)
}

func TestErrorWithGenericErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Error(ctx, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "An unexpected error occurred", resp.Message)
}

func TestErrorWithValidationErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Error(ctx, appValidator.ValidationErrors{{Field: "email", Tag: "required"}})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, ValidationFailedMessage, resp.Message)
	require.Equal(t, []string{"Email is required"}, resp.Errors["email"])
}
