package property

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/casafolio/billhook/subscription"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return &Manager{
		ManagerOptions: ManagerOptions{
			DB:     gdb,
			Logger: zap.NewNop(),
		},
	}, mock
}

func testSummary() subscription.Summary {
	renewsAt := time.Now().Add(30 * 24 * time.Hour)
	return subscription.Summary{
		Tier:     subscription.TierPremium,
		Status:   subscription.StatusActive,
		RenewsAt: &renewsAt,
	}
}

func TestUpdateSummaryWritesDenormalizedColumns(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(`UPDATE "properties" SET .+ WHERE id = \$`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := manager.UpdateSummary(context.Background(), "prop-1", testSummary())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSummaryZeroRowsIsSuccess(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(`UPDATE "properties" SET .+ WHERE id = \$`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := manager.UpdateSummary(context.Background(), "prop-gone", testSummary())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSummaryEmptyPropertyIDIsNoop(t *testing.T) {
	manager, mock := newMockManager(t)

	// No SQL expectations: an empty property ID must not reach the database
	err := manager.UpdateSummary(context.Background(), "", testSummary())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSummaryPropagatesError(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(`UPDATE "properties" SET .+ WHERE id = \$`).
		WillReturnError(fmt.Errorf("connection reset"))

	err := manager.UpdateSummary(context.Background(), "prop-1", testSummary())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
