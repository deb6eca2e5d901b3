package service

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/missland/tryon-service/internal/config"
	"github.com/missland/tryon-service/internal/errs"
)

const testSessionToken = "11111111-2222-3333-4444-555555555555"

func newMockedSessionService(t *testing.T) (*SessionService, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cfg := &config.Config{SessionTTL: 30 * time.Minute, SessionExtendTTL: 15 * time.Minute}
	svc := NewSessionService(db, cfg)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, mock, now
}

// Extend writes now + the extension TTL without reading the prior expiry, so
// a session close to expiry gets lengthened and a long-lived window gets
// shortened to the same point. The mock fails the test if the prior row is
// consulted before the update.
func TestExtendResetsExpiryFromNow(t *testing.T) {
	svc, mock, now := newMockedSessionService(t)
	want := now.Add(15 * time.Minute)

	mock.ExpectExec(`UPDATE "try_on_sessions" SET`).
		WithArgs(want, sqlmock.AnyArg(), testSessionToken).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM "try_on_sessions"`).
		WithArgs(testSessionToken, 1).
		WillReturnRows(sqlmock.NewRows([]string{"token", "status", "expires_at"}).
			AddRow(testSessionToken, "active", want))

	sess, err := svc.Extend(testSessionToken)
	require.NoError(t, err)
	assert.Equal(t, want, sess.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendUnknownSession(t *testing.T) {
	svc, mock, _ := newMockedSessionService(t)

	mock.ExpectExec(`UPDATE "try_on_sessions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Extend(testSessionToken)
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequiresExactlyOneReference(t *testing.T) {
	svc, mock, _ := newMockedSessionService(t)
	post := "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	upload := "http://media.local/references/ref.webp"

	_, err := svc.Create(nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = svc.Create(nil, &post, &upload, nil)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "invalid requests never reach the database")
}
