package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-reward-api/internal/models"
)

var rewardRequestCols = []string{"id", "user_id", "event_id", "reward_id", "status", "request_date", "processed_by", "process_date", "notes", "distributed_at", "distribution_details", "updated_at"}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRewardRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reward_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.RewardRequest{UserID: "user-1", EventID: "event-1", RewardID: "reward-1"}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.RewardRequestPending, req.Status)
	assert.False(t, req.RequestDate.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reward_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "reward_requests_triple_uniq"})

	err := repo.Create(context.Background(), &models.RewardRequest{UserID: "u", EventID: "e", RewardID: "r"})
	require.ErrorIs(t, err, ErrDuplicateRequest)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reward_requests")).
		WillReturnError(errors.New("connection reset"))
	err = repo.Create(context.Background(), &models.RewardRequest{UserID: "u", EventID: "e", RewardID: "r"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateRequest))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryExistsForTriple(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM reward_requests")).
		WithArgs("user-1", "event-1", "reward-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	exists, err := repo.ExistsForTriple(context.Background(), "user-1", "event-1", "reward-1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM reward_requests")).
		WithArgs("user-2", "event-1", "reward-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	exists, err = repo.ExistsForTriple(context.Background(), "user-2", "event-1", "reward-1")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(rewardRequestCols).
		AddRow("req-1", "user-1", "event-1", "reward-1", "PENDING", now, nil, nil, nil, nil, nil, now)
	mock.ExpectQuery(`FROM reward_requests WHERE 1=1 AND event_id = \$1 AND status = ANY\(\$2\) ORDER BY request_date DESC LIMIT 10 OFFSET 10`).
		WithArgs("event-1", sqlmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reward_requests")).
		WithArgs("event-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	list, total, err := repo.List(context.Background(), models.RewardRequestFilter{
		EventID:  "event-1",
		Status:   []models.RewardRequestStatus{models.RewardRequestPending},
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, "req-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryDecide(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(rewardRequestCols).
		AddRow("req-1", "user-1", "event-1", "reward-1", "APPROVED", now, "op-1", now, "ok", nil, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE reward_requests SET status = $2, processed_by = $3")).
		WithArgs("req-1", "APPROVED", "op-1", sqlmock.AnyArg(), "ok").
		WillReturnRows(rows)

	stored, err := repo.Decide(context.Background(), DecisionParams{
		ID:          "req-1",
		Status:      models.RewardRequestApproved,
		ProcessedBy: "op-1",
		ProcessDate: now,
		Note:        "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RewardRequestApproved, stored.Status)
	require.NotNil(t, stored.ProcessedBy)
	assert.Equal(t, "op-1", *stored.ProcessedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryDecideLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE reward_requests SET status = $2")).
		WillReturnRows(sqlmock.NewRows(rewardRequestCols))

	_, err := repo.Decide(context.Background(), DecisionParams{ID: "req-1", Status: models.RewardRequestRejected, ProcessedBy: "op-2", ProcessDate: time.Now()})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryRecordDistribution(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(rewardRequestCols).
		AddRow("req-1", "user-1", "event-1", "reward-1", "COMPLETED", now, "op-1", now, nil, now, "credited 100 points", now)
	mock.ExpectQuery(`(?s)UPDATE reward_requests SET status = \$2, distributed_at = COALESCE\(\$3, distributed_at\).*WHERE id = \$1 AND status = 'APPROVED'`).
		WithArgs("req-1", "COMPLETED", sqlmock.AnyArg(), "credited 100 points", "", sqlmock.AnyArg()).
		WillReturnRows(rows)

	stored, err := repo.RecordDistribution(context.Background(), DistributionParams{
		ID:            "req-1",
		Status:        models.RewardRequestCompleted,
		DistributedAt: &now,
		Details:       "credited 100 points",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RewardRequestCompleted, stored.Status)
	require.NotNil(t, stored.DistributedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryAppendNotesStatusMoved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE reward_requests SET notes =")).
		WithArgs("req-1", "REJECTED", "typo fixed", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(rewardRequestCols))

	_, err := repo.AppendNotes(context.Background(), "req-1", models.RewardRequestRejected, "typo fixed")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardRequestRepositoryListFailedDistributions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRewardRequestRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(rewardRequestCols).
		AddRow("req-9", "user-1", "event-1", "reward-1", "APPROVED", now, "op-1", now, "distribution failed", nil, "points service unreachable", now)
	staleBefore := now.Add(-30 * time.Second)
	mock.ExpectQuery(`FROM reward_requests\s+WHERE status = 'APPROVED' AND \(distribution_details IS NOT NULL OR process_date < \$1\)\s+ORDER BY updated_at ASC LIMIT 25`).
		WithArgs(staleBefore).
		WillReturnRows(rows)

	list, err := repo.ListFailedDistributions(context.Background(), 25, staleBefore)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "req-9", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
