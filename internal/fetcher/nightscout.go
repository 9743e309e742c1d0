package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cgm-alerts/internal/glucose"
	"cgm-alerts/internal/logging"
)

const (
	entriesPath    = "/api/v1/entries"
	treatmentsPath = "/api/v1/treatments"
)

// ErrNoReadings indicates the source answered with an empty entry list.
var ErrNoReadings = errors.New("nightscout returned no readings")

// NightscoutOptions parameterise the Nightscout fetcher.
type NightscoutOptions struct {
	BaseURL   string
	APISecret string
	Timeout   time.Duration
	UserAgent string
}

// Nightscout fetches entries and treatments from a Nightscout server.
type Nightscout struct {
	opts    NightscoutOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewNightscout constructs a Nightscout fetcher.
func NewNightscout(opts NightscoutOptions, logger zerolog.Logger) *Nightscout {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Nightscout{
		opts:    opts,
		logger:  logging.Component(logger, "nightscout_fetcher"),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/\\"),
	}
}

// FetchReadings returns the most recent count sensor entries.
func (n *Nightscout) FetchReadings(ctx context.Context, count int) ([]glucose.Reading, error) {
	var entries []entry
	if err := n.get(ctx, entriesPath, count, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoReadings
	}

	readings := make([]glucose.Reading, 0, len(entries))
	for _, e := range entries {
		if e.Date == 0 || e.SGV == nil {
			n.logger.Debug().Str("type", e.Type).Int64("date", e.Date).Msg("skipping entry without sensor value")
			continue
		}
		readings = append(readings, glucose.Reading{
			Timestamp: e.Date,
			Value:     *e.SGV,
			Direction: glucose.ParseTrend(e.Direction),
		})
	}
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	return readings, nil
}

// FetchTreatments returns the most recent count treatments.
func (n *Nightscout) FetchTreatments(ctx context.Context, count int) ([]glucose.Treatment, error) {
	var records []treatment
	if err := n.get(ctx, treatmentsPath, count, &records); err != nil {
		return nil, err
	}

	treatments := make([]glucose.Treatment, 0, len(records))
	for _, r := range records {
		t, err := glucose.NewTreatment(r.Mills, r.Carbs, r.Insulin)
		if err != nil {
			n.logger.Warn().Err(err).Int64("mills", r.Mills).Msg("skipping invalid treatment")
			continue
		}
		treatments = append(treatments, t)
	}
	return treatments, nil
}

func (n *Nightscout) get(ctx context.Context, path string, count int, out any) error {
	if n.baseURL == "" {
		return errors.New("nightscout base url not configured")
	}

	query := url.Values{}
	query.Set("count", strconv.Itoa(count))
	endpoint := n.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if n.opts.APISecret != "" {
		req.Header.Set("api-secret", n.opts.APISecret)
	}
	if ua := strings.TrimSpace(n.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "cgmwatch/1.0")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("nightscout %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("nightscout %s: read body: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("nightscout %s: decode: %w", path, err)
	}
	return nil
}

type entry struct {
	Date      int64  `json:"date"`
	SGV       *int   `json:"sgv"`
	Direction string `json:"direction"`
	Type      string `json:"type"`
}

type treatment struct {
	Mills   int64               `json:"mills"`
	Carbs   decimal.NullDecimal `json:"carbs"`
	Insulin decimal.NullDecimal `json:"insulin"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("nightscout api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("nightscout api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("nightscout api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("nightscout api error (%d)", status)
}

var _ Source = (*Nightscout)(nil)
