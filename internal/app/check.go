package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"cgm-alerts/internal/alerting"
	"cgm-alerts/internal/rules"
	"cgm-alerts/internal/service"
)

// evaluateOnce fetches the current window and runs one cycle without delivery.
func (a *App) evaluateOnce(ctx context.Context, at time.Time) (service.Cycle, *rules.Evaluator, error) {
	source, err := a.newSource()
	if err != nil {
		return service.Cycle{}, nil, err
	}
	evaluator := rules.NewDefaultEvaluator()
	svc := service.New(service.Deps{
		Source:    source,
		Gate:      a.newGate(),
		Evaluator: evaluator,
	}, service.Options{FetchCount: a.Config.Nightscout.FetchCount}, a.Logger)

	if at.IsZero() {
		at = time.Now()
	}
	cycle, err := svc.Evaluate(ctx, at)
	return cycle, evaluator, err
}

// Check evaluates one cycle and prints every rule outcome.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	cycle, evaluator, err := a.evaluateOnce(ctx, opts.At)
	if err != nil {
		return err
	}

	newest, _ := cycle.Window.Newest()
	fmt.Fprintf(a.Stdout, "%s\n\n", alerting.ReadingMessage(newest, a.thresholds(), a.location()))

	writer := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Rule\tMatches\tMessage")
	for _, ev := range evaluator.Explain(cycle.Window, cycle.At) {
		fmt.Fprintf(writer, "%s\t%t\t%s\n", ev.Rule, ev.Matches, ev.Message)
	}
	writer.Flush()

	if len(cycle.Alerts) == 0 {
		fmt.Fprintln(a.Stdout, "\nno alerts would be emitted")
		return nil
	}
	fmt.Fprintln(a.Stdout, "\nalerts that would be emitted:")
	for _, alert := range cycle.Alerts {
		fmt.Fprintf(a.Stdout, "- [%s] %s\n", alert.Channel, sanitizeInline(alert.Message))
	}
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
