// Package alert emits rule matches to the configured sinks: a console line,
// an optional webhook, an optional Kafka topic. Delivery is fire-and-forget:
// sink failures are logged and never propagated, never retried.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/logwarden/internal/model"
)

// webhookTimeout bounds the outbound call so a slow sink cannot stall the
// pipeline for more than a few seconds per alert.
const webhookTimeout = 5 * time.Second

// Publisher is the subset of the Kafka producer the dispatcher uses.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

// Summary is the redacted alert payload sent to external sinks. It never
// carries the raw record or an unredacted request URI.
type Summary struct {
	Text  string       `json:"text"`
	Rule  string       `json:"rule"`
	Event SummaryEvent `json:"event"`
}

type SummaryEvent struct {
	Time          string `json:"time,omitempty"`
	Category      string `json:"category"`
	OperationName string `json:"operation_name,omitempty"`
	RequestURI    string `json:"request_uri,omitempty"`
	CallerIP      string `json:"caller_ip,omitempty"`
	StatusCode    string `json:"status_code,omitempty"`
	AuthType      string `json:"auth_type,omitempty"`
}

// Dispatcher fans one rule match out to the enabled sinks.
type Dispatcher struct {
	stdout     bool
	webhookURL string
	client     *http.Client
	producer   Publisher
	logger     *zap.Logger
	console    io.Writer
}

type Params struct {
	Stdout     bool
	WebhookURL string // empty disables the webhook sink
	Producer   Publisher // nil disables the Kafka sink
	Logger     *zap.Logger
	// Console overrides the destination of the stdout sink; tests use a
	// buffer here. Nil means io.Discard when Stdout is false, else os.Stdout
	// is wired by the caller.
	Console io.Writer
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(p Params) *Dispatcher {
	console := p.Console
	if console == nil {
		console = io.Discard
	}
	return &Dispatcher{
		stdout:     p.Stdout,
		webhookURL: p.WebhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
		producer:   p.Producer,
		logger:     p.Logger,
		console:    console,
	}
}

// Send emits one rule match. It never returns an error: each sink's failure
// is logged and swallowed so one bad sink cannot block the pipeline or the
// other sinks.
func (d *Dispatcher) Send(ctx context.Context, ruleName string, ev model.CanonicalEvent) {
	if d.stdout {
		fmt.Fprintf(d.console, "[ALERT] %s | %s | %s | %s | IP=%s\n",
			ruleName, ev.Time, ev.Category, ev.RequestURIRedacted, ev.CallerIP)
	}

	if d.webhookURL == "" && d.producer == nil {
		return
	}

	payload, err := json.Marshal(Summary{
		Text: "logwarden alert: " + ruleName,
		Rule: ruleName,
		Event: SummaryEvent{
			Time:          ev.Time,
			Category:      ev.Category,
			OperationName: ev.OperationName,
			RequestURI:    ev.RequestURIRedacted,
			CallerIP:      ev.CallerIP,
			StatusCode:    ev.StatusCode,
			AuthType:      ev.AuthType,
		},
	})
	if err != nil {
		d.logger.Warn("marshal alert summary", zap.String("rule", ruleName), zap.Error(err))
		return
	}

	if d.webhookURL != "" {
		d.postWebhook(ctx, ruleName, payload)
	}
	if d.producer != nil {
		d.publishKafka(ctx, ruleName, payload)
	}
}

func (d *Dispatcher) postWebhook(ctx context.Context, ruleName string, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		d.logger.Warn("build webhook request", zap.String("rule", ruleName), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed", zap.String("rule", ruleName), zap.Error(err))
		return
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Warn("webhook delivery rejected",
			zap.String("rule", ruleName),
			zap.Int("status", resp.StatusCode))
	}
}

func (d *Dispatcher) publishKafka(ctx context.Context, ruleName string, payload []byte) {
	headers := map[string]string{
		"alert_id":   uuid.NewString(),
		"event_type": "alert.triggered",
	}
	if err := d.producer.Publish(ctx, []byte(ruleName), payload, headers); err != nil {
		d.logger.Warn("kafka alert publish failed", zap.String("rule", ruleName), zap.Error(err))
	}
}
