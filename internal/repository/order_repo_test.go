package repository

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"restaurant_order_service/internal/domain"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepo(t *testing.T, at time.Time) *postgresOrderRepository {
	t.Helper()
	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return &postgresOrderRepository{
		loc: loc,
		now: func() time.Time { return at },
		log: logger,
	}
}

func TestDayBoundsUsesServiceTimezone(t *testing.T) {
	// 03:30 UTC is still the previous civil day in Bogota (UTC-5).
	at := time.Date(2025, 3, 11, 3, 30, 0, 0, time.UTC)
	repo := testRepo(t, at)

	start, end := repo.dayBounds()
	assert.Equal(t, 2025, start.Year())
	assert.Equal(t, time.March, start.Month())
	assert.Equal(t, 10, start.Day())
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestDayLockKeyEncodesCivilDate(t *testing.T) {
	repo := testRepo(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	start, _ := repo.dayBounds()
	assert.Equal(t, int32(20250310), repo.dayLockKey(start))
}

func TestClassifyTransientCodes(t *testing.T) {
	repo := testRepo(t, time.Now())

	transientCodes := []string{"40001", "40P01", "55P03", "08006"}
	for _, code := range transientCodes {
		err := repo.classify("op", &pq.Error{Code: pq.ErrorCode(code)})
		assert.True(t, domain.IsTransient(err), "code %s should be transient", code)
	}

	err := repo.classify("op", driver.ErrBadConn)
	assert.True(t, domain.IsTransient(err))
}

func TestClassifyNonTransientWraps(t *testing.T) {
	repo := testRepo(t, time.Now())

	cause := &pq.Error{Code: "23514"}
	err := repo.classify("insert", cause)
	assert.False(t, domain.IsTransient(err))
	assert.True(t, errors.Is(err, cause))

	plain := fmt.Errorf("boom")
	err = repo.classify("insert", plain)
	assert.False(t, domain.IsTransient(err))
	assert.True(t, errors.Is(err, plain))
}
