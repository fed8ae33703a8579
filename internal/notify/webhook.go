package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"graphsync/internal/config"
	"graphsync/internal/persistence"

	"resty.dev/v3"
)

// Webhook POSTs sweep findings to an operator-configured endpoint. With no
// URL configured it is a no-op.
type Webhook struct {
	Logger *slog.Logger
	Config *config.Config

	client *resty.Client
}

func (w *Webhook) Init(context.Context) error {
	w.Logger = w.Logger.With("component", "notify.Webhook")

	if w.Config.WebhookURL == "" {
		return nil
	}

	w.client = resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2)

	return nil
}

func (w *Webhook) Shutdown(context.Context) error {
	if w.client == nil {
		return nil
	}
	return w.client.Close()
}

type report struct {
	Kind   string `json:"kind"`
	PathA  string `json:"pathA"`
	PathB  string `json:"pathB"`
	Detail string `json:"detail"`
}

func (w *Webhook) Report(ctx context.Context, divs []persistence.DivergenceModel) error {
	if w.client == nil || len(divs) == 0 {
		return nil
	}

	payload := make([]report, 0, len(divs))
	for _, d := range divs {
		payload = append(payload, report{Kind: d.Kind, PathA: d.PathA, PathB: d.PathB, Detail: d.Detail})
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"divergences": payload}).
		Post(w.Config.WebhookURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s", resp.Status())
	}

	w.Logger.Info("reported divergences", "count", len(divs))
	return nil
}
