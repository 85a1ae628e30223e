package profile

import (
	"context"
	"fmt"
	"testing"

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

func TestLinkStripeCustomerGuardsOnUnsetColumn(t *testing.T) {
	manager, mock := newMockManager(t)

	// The update must only land on a profile that has no customer ID yet
	mock.ExpectExec(`UPDATE "profiles" SET .+ WHERE id = \$\d+ AND stripe_customer_id IS NULL`).
		WithArgs("cus_1", sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := manager.LinkStripeCustomer(context.Background(), "user-1", "cus_1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkStripeCustomerAlreadyLinkedIsSuccess(t *testing.T) {
	manager, mock := newMockManager(t)

	// First write wins: losing the conditional update is not an error
	mock.ExpectExec(`UPDATE "profiles" SET .+ WHERE id = \$\d+ AND stripe_customer_id IS NULL`).
		WithArgs("cus_2", sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := manager.LinkStripeCustomer(context.Background(), "user-1", "cus_2")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkStripeCustomerRejectsEmptyArgs(t *testing.T) {
	manager, mock := newMockManager(t)

	assert.Error(t, manager.LinkStripeCustomer(context.Background(), "", "cus_1"))
	assert.Error(t, manager.LinkStripeCustomer(context.Background(), "user-1", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkStripeCustomerPropagatesError(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(`UPDATE "profiles" SET .+ WHERE id = \$\d+ AND stripe_customer_id IS NULL`).
		WillReturnError(fmt.Errorf("connection reset"))

	err := manager.LinkStripeCustomer(context.Background(), "user-1", "cus_1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
