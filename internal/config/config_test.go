package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://u:p@db:5432/orchestrator")
	t.Setenv("BACKEND_URL", "http://backend:8000/")
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "30")
	t.Setenv("MAX_PER_DAY_PER_SESSION", "abc")

	cfg := Load()

	assert.Equal(t, "postgres://u:p@db:5432/orchestrator", cfg.PostgresDSN)
	assert.Equal(t, "http://backend:8000", cfg.BackendURL)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 50, cfg.MaxPerDayPerSession, "invalid int falls back to default")
}

func TestValidate(t *testing.T) {
	log := zap.NewNop()

	t.Run("missing store and backend are fatal", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "")
		t.Setenv("BACKEND_URL", "")

		err := Load().Validate(log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "POSTGRES_DSN")
		assert.Contains(t, err.Error(), "BACKEND_URL")
	})

	t.Run("inverted delay range", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "postgres://localhost/x")
		t.Setenv("BACKEND_URL", "http://localhost:8000")
		t.Setenv("SEND_DELAY_MIN_SECONDS", "10")
		t.Setenv("SEND_DELAY_MAX_SECONDS", "2")

		err := Load().Validate(log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SEND_DELAY_MIN_SECONDS")
	})

	t.Run("non-positive scheduler settings", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "postgres://localhost/x")
		t.Setenv("BACKEND_URL", "http://localhost:8000")

		for _, v := range []string{"0", "-5"} {
			t.Setenv("SCHEDULER_INTERVAL_SECONDS", v)
			t.Setenv("SCHEDULER_CONCURRENCY", v)

			err := Load().Validate(log)
			require.Error(t, err, v)
			assert.Contains(t, err.Error(), "SCHEDULER_INTERVAL_SECONDS")
			assert.Contains(t, err.Error(), "SCHEDULER_CONCURRENCY")
		}
	})

	t.Run("complete config", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "postgres://localhost/x")
		t.Setenv("BACKEND_URL", "http://localhost:8000")

		assert.NoError(t, Load().Validate(log))
	})
}
