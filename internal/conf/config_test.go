package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrink/metrink-go/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", s.Database.Driver)
	assert.Equal(t, time.Minute, s.Aggregation.Interval.Std())
	assert.Equal(t, 30*time.Second, s.Alerting.SyncInterval.Std())
	assert.Equal(t, 100, s.Alerting.BatchQuota)
	assert.Equal(t, 90, s.Retention.Days)
	assert.Equal(t, time.Hour, s.Retention.Interval.Std())
	assert.Equal(t, 10080, s.Forecast.Period)
	assert.Equal(t, time.UTC, s.Location())

	limit, err := s.HTTP.BodyLimitBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8<<20), limit)
}

func TestHTTPSettings_BodyLimitBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit string
		want  int64
		err   bool
	}{
		{"", 8 << 20, false},
		{"512K", 512 << 10, false},
		{"2MB", 2 << 20, false},
		{"lots", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		got, err := HTTPSettings{BodyLimit: tt.limit}.BodyLimitBytes()
		if tt.err {
			assert.Error(t, err, tt.limit)
			continue
		}
		require.NoError(t, err, tt.limit)
		assert.Equal(t, tt.want, got, tt.limit)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: mysql
  dsn: "user:pass@tcp(localhost:3306)/metrink?parseTime=true"
aggregation:
  interval: 30s
alerting:
  batchquota: 25
smtp:
  host: smtp.example.com
  from: alerts@example.com
`), 0o600))

	t.Setenv("METRINK_RETENTION_DAYS", "30")

	s, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", s.Database.Driver)
	assert.Equal(t, 30*time.Second, s.Aggregation.Interval.Std())
	assert.Equal(t, 25, s.Alerting.BatchQuota)
	assert.Equal(t, "smtp.example.com", s.SMTP.Host)
	assert.Equal(t, 587, s.SMTP.Port)
	assert.Equal(t, 30, s.Retention.Days)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestSettings_Validate(t *testing.T) {
	s, err := Load(NewViper(), "")
	require.NoError(t, err)

	s.Database.Driver = "postgres"
	s.Alerting.BatchQuota = 0
	s.MQTT.Enabled = true
	s.MQTT.Broker = ""
	s.HTTP.BodyLimit = "huge"

	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "alerting.batchquota")
	assert.Contains(t, err.Error(), "mqtt.broker")
	assert.Contains(t, err.Error(), "http.bodylimit")
}
