package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments recorded across the library.
type Metrics struct {
	// Token endpoint metrics
	TokensIssued  metric.Int64Counter
	GrantFailures metric.Int64Counter
	TokensRotated metric.Int64Counter

	// Interaction metrics
	PromptsRequired metric.Int64Counter

	// Storage metrics
	StorageOperationDuration metric.Float64Histogram
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	tokenMeter := inst.Meter("token")
	interactionMeter := inst.Meter("interaction")
	storageMeter := inst.Meter("storage")

	var err error
	m.TokensIssued, err = tokenMeter.Int64Counter(
		"oidcd.tokens.issued",
		metric.WithDescription("Number of tokens issued, by grant type"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.GrantFailures, err = tokenMeter.Int64Counter(
		"oidcd.grants.failed",
		metric.WithDescription("Number of rejected grant requests, by error code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants.failed counter: %w", err)
	}

	m.TokensRotated, err = tokenMeter.Int64Counter(
		"oidcd.tokens.rotated",
		metric.WithDescription("Number of refresh tokens rotated"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.rotated counter: %w", err)
	}

	m.PromptsRequired, err = interactionMeter.Int64Counter(
		"oidcd.prompts.required",
		metric.WithDescription("Number of policy evaluations requiring a prompt, by prompt name"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompts.required counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"oidcd.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

// RecordTokenIssued increments the issued-token counter for grantType.
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("grant_type", grantType)))
}

// RecordGrantFailure increments the failure counter for grantType and
// protocol error code.
func (m *Metrics) RecordGrantFailure(ctx context.Context, grantType, errorCode string) {
	m.GrantFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("error", errorCode),
	))
}

// RecordTokenRotated increments the refresh rotation counter.
func (m *Metrics) RecordTokenRotated(ctx context.Context) {
	m.TokensRotated.Add(ctx, 1)
}

// RecordPromptRequired increments the prompt counter for prompt.
func (m *Metrics) RecordPromptRequired(ctx context.Context, prompt string) {
	m.PromptsRequired.Add(ctx, 1, metric.WithAttributes(attribute.String("prompt", prompt)))
}

// RecordStorageOperation records the duration of one storage operation,
// attributed by record kind and operation name.
func (m *Metrics) RecordStorageOperation(ctx context.Context, kind, operation string, d time.Duration) {
	m.StorageOperationDuration.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("operation", operation),
	))
}
