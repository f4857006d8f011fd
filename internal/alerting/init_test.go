package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/notification"
)

func TestInitialize_EndToEnd(t *testing.T) {
	t.Parallel()

	src := &mockSource{}
	src.set(row(1, 100, true, `m("web1", "cpu", "load") > 4 do "ops"`))
	mailer := &recordingMailer{}
	history := &mockHistoryRepo{}

	sys, err := Initialize(context.Background(), Dependencies{
		Settings: conf.AlertingSettings{
			DispatchBuffer: 10,
			ActionCacheTTL: conf.Duration(time.Minute),
		},
		UseHTML:     true,
		Definitions: src,
		Actions:     newMockActionRepo(entities.AlertAction{Name: "ops", Type: ActionTypeEmail, Value: "ops@example.com"}),
		History:     history,
		Mailer:      mailer,
		Log:         testLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sys.Registry.Len(), "definitions load during initialization")

	assert.Equal(t, 1, sys.Engine.ProcessSamples([]metric.Sample{sampleAt(webLoad, t0, 9)}))
	require.NoError(t, sys.Stop(context.Background()))

	mails := mailer.Mails()
	require.Len(t, mails, 1)
	assert.Equal(t, "[METRINK] Alert for web1:cpu:load", mails[0].Subject)
	assert.Len(t, history.Records(), 1)
}

func TestInitialize_RequiresStores(t *testing.T) {
	t.Parallel()

	_, err := Initialize(context.Background(), Dependencies{Log: testLogger()})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestServiceMailer_WithoutService(t *testing.T) {
	t.Parallel()

	err := serviceMailer{}.Send(context.Background(), notification.Mail{To: []string{"ops@example.com"}})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
