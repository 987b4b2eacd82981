// Package pipeline orchestrates one poll cycle: select unseen recent blobs,
// download, extract records, normalize, persist, evaluate rules, dispatch
// alerts, and finally mark each blob processed. Processing is strictly
// sequential: one blob at a time, one record at a time.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/logwarden/internal/alert"
	"github.com/your-org/logwarden/internal/extract"
	"github.com/your-org/logwarden/internal/model"
	"github.com/your-org/logwarden/internal/normalize"
	"github.com/your-org/logwarden/internal/rules"
	"github.com/your-org/logwarden/internal/store"
)

// Connector is the object-store capability the pipeline consumes.
type Connector interface {
	List(ctx context.Context, container string) ([]model.BlobRef, error)
	Download(ctx context.Context, container, name string) ([]byte, error)
}

// WarningKind classifies a swallowed per-container or per-blob failure.
type WarningKind string

const (
	// WarnList: a container listing failed; its blobs are absent this cycle.
	WarnList WarningKind = "list"
	// WarnDownload: a blob download failed; the blob stays unmarked and is
	// retried next cycle.
	WarnDownload WarningKind = "download"
	// WarnStore: an event or alert append failed mid-blob; processing of the
	// blob stops and it stays unmarked so the next cycle retries it.
	WarnStore WarningKind = "store"
	// WarnMark: the processed marker could not be committed; the blob will
	// be reprocessed next cycle (duplicate events possible).
	WarnMark WarningKind = "mark"
)

// Warning carries one swallowed failure to the configured sink, so tests and
// operators can see exactly what was skipped.
type Warning struct {
	Kind      WarningKind
	Container string
	Blob      string
	Err       error
}

// Pipeline wires the connector, store, rule engine, and dispatcher together.
type Pipeline struct {
	connector  Connector
	store      *store.Store
	engine     *rules.Engine
	dispatcher *alert.Dispatcher
	containers []string
	window     time.Duration
	logger     *zap.Logger
	onWarning  func(Warning)
	now        func() time.Time
	tracer     trace.Tracer
}

type Params struct {
	Connector  Connector
	Store      *store.Store
	Engine     *rules.Engine
	Dispatcher *alert.Dispatcher
	Containers []string
	// Window is the recency window: blobs modified earlier than now-Window
	// are not candidates. Blobs without modification metadata always are.
	Window time.Duration
	Logger *zap.Logger
	// OnWarning receives every swallowed failure. Nil means log-only.
	OnWarning func(Warning)
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// New constructs a Pipeline.
func New(p Params) *Pipeline {
	pl := &Pipeline{
		connector:  p.Connector,
		store:      p.Store,
		engine:     p.Engine,
		dispatcher: p.Dispatcher,
		containers: p.Containers,
		window:     p.Window,
		logger:     p.Logger,
		onWarning:  p.OnWarning,
		now:        p.Now,
		tracer:     otel.Tracer("logwarden/pipeline"),
	}
	if pl.now == nil {
		pl.now = time.Now
	}
	return pl
}

// Cycle runs one complete pass over all configured containers. Listing,
// download, and per-blob failures are reported as warnings and never abort
// the cycle; only a broken ledger read does, because continuing without it
// risks reprocessing everything.
func (p *Pipeline) Cycle(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "poll.cycle")
	defer span.End()

	cutoff := p.now().UTC().Add(-p.window)

	for _, container := range p.containers {
		refs, err := p.connector.List(ctx, container)
		if err != nil {
			p.warn(Warning{Kind: WarnList, Container: container, Err: err})
			continue
		}

		for _, ref := range refs {
			// Blobs without modification metadata fail open: skipping them
			// silently would lose data.
			if !ref.LastModified.IsZero() && ref.LastModified.Before(cutoff) {
				continue
			}
			processed, err := p.store.IsProcessed(ctx, ref.Container, ref.Name)
			if err != nil {
				return err
			}
			if processed {
				continue
			}
			p.processBlob(ctx, ref)
		}
	}

	events, _ := p.store.EventCount(ctx)
	alerts, _ := p.store.AlertCount(ctx)
	p.logger.Info("cycle complete",
		zap.Int64("events_total", events),
		zap.Int64("alerts_total", alerts))
	return nil
}

// processBlob handles one candidate blob end to end. Every event and alert
// append is durable before the processed marker is committed; a crash before
// the marker simply reprocesses the whole blob next cycle.
func (p *Pipeline) processBlob(ctx context.Context, ref model.BlobRef) {
	ctx, span := p.tracer.Start(ctx, "poll.blob",
		trace.WithAttributes(
			attribute.String("container", ref.Container),
			attribute.String("blob", ref.Name),
		))
	defer span.End()

	data, err := p.connector.Download(ctx, ref.Container, ref.Name)
	if err != nil {
		p.warn(Warning{Kind: WarnDownload, Container: ref.Container, Blob: ref.Name, Err: err})
		return
	}

	for _, rec := range extract.Records(ref.Name, data) {
		ev := normalize.Event(ref.Container, ref.Name, rec)
		ev.InsertedAt = p.now().UTC()

		eventID, err := p.store.AppendEvent(ctx, ev)
		if err != nil {
			p.warn(Warning{Kind: WarnStore, Container: ref.Container, Blob: ref.Name, Err: err})
			return
		}
		ev.ID = eventID

		for _, rule := range p.engine.Evaluate(ev) {
			if err := p.store.AppendAlert(ctx, rule.Name, eventID, p.nowISO()); err != nil {
				p.warn(Warning{Kind: WarnStore, Container: ref.Container, Blob: ref.Name, Err: err})
				return
			}
			p.dispatcher.Send(ctx, rule.Name, ev)
		}
	}

	if err := p.store.MarkProcessed(ctx, ref.Container, ref.Name, ref.ETag, p.nowISO()); err != nil {
		p.warn(Warning{Kind: WarnMark, Container: ref.Container, Blob: ref.Name, Err: err})
	}
}

func (p *Pipeline) nowISO() string {
	return p.now().UTC().Format("2006-01-02T15:04:05Z")
}

func (p *Pipeline) warn(w Warning) {
	p.logger.Warn("pipeline "+string(w.Kind)+" failure",
		zap.String("container", w.Container),
		zap.String("blob", w.Blob),
		zap.Error(w.Err))
	if p.onWarning != nil {
		p.onWarning(w)
	}
}
