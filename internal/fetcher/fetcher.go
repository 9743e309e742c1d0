package fetcher

import (
	"context"

	"cgm-alerts/internal/glucose"
)

// Source retrieves recent telemetry. Results may be returned in any order.
type Source interface {
	FetchReadings(ctx context.Context, count int) ([]glucose.Reading, error)
	FetchTreatments(ctx context.Context, count int) ([]glucose.Treatment, error)
}
