package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/auditctx"
	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{
		UserID:    "6f1c1a52-7d43-4a8f-8d1e-2f7b0d8c9a11",
		Email:     "auditor@example.com",
		IPAddress: "10.0.0.5",
		UserAgent: "unit-test",
	})

	require.NoError(t, svc.Log(ctx, AuditEntry{
		Action:   "auth.login",
		Result:   "success",
		Metadata: map[string]any{"device": "laptop"},
	}))
	require.NoError(t, svc.Log(context.Background(), AuditEntry{
		Action: "auth.register",
		Result: "failure",
	}))

	logs, total, err := svc.List(context.Background(), AuditListOptions{
		Filters: AuditFilters{Action: "auth.login"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	require.Equal(t, "auditor@example.com", logs[0].Actor)
	require.Equal(t, "10.0.0.5", logs[0].IPAddress)
	require.Equal(t, "unit-test", logs[0].UserAgent)
	require.NotNil(t, logs[0].UserID)
	require.Equal(t, "laptop", logs[0].Metadata["device"])

	logs, _, err = svc.List(context.Background(), AuditListOptions{
		Filters: AuditFilters{Result: "failure"},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "anonymous", logs[0].Actor)
}

func TestAuditServiceRequiresActionAndResult(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, svc.Log(context.Background(), AuditEntry{Result: "success"}))
	require.Error(t, svc.Log(context.Background(), AuditEntry{Action: "auth.login"}))
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	old := models.AuditLog{
		BaseModel: models.BaseModel{CreatedAt: time.Now().AddDate(0, 0, -10)},
		Actor:     "system",
		Action:    "old.action",
		Result:    "success",
	}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "new.action", Result: "success"}))

	rows, err := svc.CleanupOlderThan(context.Background(), time.Now().AddDate(0, 0, -5))
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	_, err = svc.CleanupOlderThan(context.Background(), time.Time{})
	require.Error(t, err)
}
