package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgm-alerts/internal/config"
	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/rules"
	"cgm-alerts/internal/storage"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Timezone: "UTC"},
		Nightscout: config.NightscoutConfig{
			BaseURL:        baseURL,
			RequestTimeout: time.Second,
			FetchCount:     16,
		},
		Glucose:  config.GlucoseConfig{LimitHigh: 240, LimitLow: 70},
		Alerting: config.AlertingConfig{Enabled: true, Cooldown: 30 * time.Minute, RuleOverrideMute: true},
		Auth:     config.AuthConfig{Whitelist: []string{"alice"}},
	}
}

func newTestApp(t *testing.T, baseURL string) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a := NewApp(testConfig(baseURL), zerolog.Nop())
	a.Stdout = out
	return a, out
}

func nightscoutStub(t *testing.T, values ...int) *httptest.Server {
	t.Helper()
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/entries":
			var buf bytes.Buffer
			buf.WriteString("[")
			for i, v := range values {
				if i > 0 {
					buf.WriteString(",")
				}
				// newest first
				fmt.Fprintf(&buf, `{"date": %d, "sgv": %d, "direction": "Flat", "type": "sgv"}`, base-int64(i)*300000, v)
			}
			buf.WriteString("]")
			_, _ = w.Write(buf.Bytes())
		case "/api/v1/treatments":
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenBackendFallsBackToMemory(t *testing.T) {
	a, _ := newTestApp(t, "")
	be, err := a.openBackend(context.Background())
	require.NoError(t, err)
	defer be.close()

	assert.False(t, be.persistent)
	_, ok := be.alerts.(*storage.MemoryStore)
	assert.True(t, ok)
}

func TestLoadDirectoryInitialisesMutes(t *testing.T) {
	a, _ := newTestApp(t, "")
	be, err := a.openBackend(context.Background())
	require.NoError(t, err)
	require.NoError(t, be.subscribers.UpsertSubscriber(context.Background(), storage.Subscriber{Username: "alice", ChatID: 42}))
	require.NoError(t, be.subscribers.UpsertSubscriber(context.Background(), storage.Subscriber{Username: "mallory", ChatID: 7}))

	directory, mutes, err := a.loadDirectory(context.Background(), be)
	require.NoError(t, err)

	id, ok := directory.ChatID("alice")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	_, ok = directory.ChatID("mallory")
	assert.False(t, ok)
	assert.False(t, mutes.IsMuted("alice", time.Now()))
}

func TestCheckPrintsReadingAndPendingAlerts(t *testing.T) {
	srv := nightscoutStub(t, 250, 230, 210)
	a, out := newTestApp(t, srv.URL)

	at := time.Date(2024, 5, 10, 12, 1, 0, 0, time.UTC)
	require.NoError(t, a.Check(context.Background(), CheckOptions{At: at}))

	text := out.String()
	assert.Contains(t, text, "Hiperglicemia: 250 mg/dL")
	assert.Contains(t, text, "Rule")
	assert.Contains(t, text, "alerts that would be emitted:")
	assert.Contains(t, text, "[point] Hiperglicemia: 250 mg/dL")
}

func TestCheckRequiresNightscout(t *testing.T) {
	a, _ := newTestApp(t, "")
	err := a.Check(context.Background(), CheckOptions{})
	assert.ErrorContains(t, err, "nightscout.base_url")
}

func TestSnapshotWritesPNG(t *testing.T) {
	srv := nightscoutStub(t, 120, 130, 150, 170)
	a, out := newTestApp(t, srv.URL)

	path := filepath.Join(t.TempDir(), "out", "glucose.png")
	require.NoError(t, a.Snapshot(context.Background(), SnapshotOptions{PNGPath: path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
	assert.Contains(t, out.String(), "4 readings")
}

func TestAlertsRequiresDatabase(t *testing.T) {
	a, _ := newTestApp(t, "")
	err := a.Alerts(context.Background(), AlertsOptions{Limit: 5})
	assert.ErrorContains(t, err, "database not configured")
}

func TestSyntheticAlert(t *testing.T) {
	a, _ := newTestApp(t, "")
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	point, err := a.syntheticAlert(SimulateOptions{Channel: gate.ChannelPoint, Value: 55}, now)
	require.NoError(t, err)
	assert.Equal(t, gate.ChannelPoint, point.Channel)
	assert.Contains(t, point.Message, "Hipoglicemia: 55 mg/dL")

	rule, err := a.syntheticAlert(SimulateOptions{Channel: gate.ChannelRule, Rule: rules.NameStaleSignal}, now)
	require.NoError(t, err)
	assert.Equal(t, rules.MessageStaleSignal, rule.Message)

	_, err = a.syntheticAlert(SimulateOptions{Channel: gate.ChannelPoint}, now)
	assert.Error(t, err)

	_, err = a.syntheticAlert(SimulateOptions{Channel: gate.ChannelRule, Rule: "no-such-rule"}, now)
	assert.ErrorContains(t, err, "unknown rule")

	_, err = a.syntheticAlert(SimulateOptions{Channel: "sms"}, now)
	assert.ErrorContains(t, err, "unknown channel")
}

func TestSimulateAlertRequiresTelegram(t *testing.T) {
	a, _ := newTestApp(t, "")
	err := a.SimulateAlert(context.Background(), SimulateOptions{Channel: gate.ChannelPoint, Value: 300})
	assert.ErrorContains(t, err, "no alert channel configured")
}
