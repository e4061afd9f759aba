package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-reward-api/internal/models"
)

func TestRewardRepositoryListByEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "event_id", "type", "name", "description", "quantity", "created_at", "updated_at"}).
		AddRow("reward-1", "event-1", "POINTS", "100 points", "", 100, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rewards WHERE event_id = $1")).
		WithArgs("event-1").
		WillReturnRows(rows)

	rewards, err := repo.ListByEvent(context.Background(), "event-1")
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, models.RewardTypePoints, rewards[0].Type)
	assert.Equal(t, int64(100), rewards[0].Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rewards WHERE id = $1")).
		WithArgs("reward-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "reward-x")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{Action: models.AuditActionRequestSubmit, Resource: "reward_request"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.False(t, log.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
