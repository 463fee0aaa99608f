// Package triggers implements the reactive mutation pipeline's dispatch
// core: an ordered set of side-effect handlers run on every create, update
// and delete performed against a registered record type.
package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/metrics"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// Wildcard scopes a registration to every record type.
const Wildcard = "*"

// Registration describes one handler. Test defaults to "always match" when
// nil. Handlers with lower Priority run first; ties break by registration
// order.
type Registration struct {
	Name     string
	Test     func(ctx context.Context, event Event) bool
	Effect   func(ctx context.Context, event Event) error
	Priority int
}

type handler struct {
	Registration
	scope string
	seq   int
}

// Engine holds the handler lists and runs them on every mutation. It is
// populated during start-up and read-only afterwards.
type Engine struct {
	mu       sync.RWMutex
	byType   map[string][]handler
	wildcard []handler
	seq      int

	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		byType:   make(map[string][]handler),
		registry: reg,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("linventaire/triggers"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the record-type catalog to handlers that need column
// projections or auditability flags.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Register adds a handler for the given scope: a record type name, or
// Wildcard to match every type. Registration order is preserved for
// priority ties. Fails only on malformed registrations.
func (e *Engine) Register(scope string, reg Registration) error {
	if reg.Effect == nil {
		return fmt.Errorf("trigger %q: effect is required", reg.Name)
	}
	if scope == "" {
		return fmt.Errorf("trigger %q: scope is required", reg.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	h := handler{Registration: reg, scope: scope, seq: e.seq}
	e.seq++
	if scope == Wildcard {
		e.wildcard = append(e.wildcard, h)
	} else {
		e.byType[scope] = append(e.byType[scope], h)
	}
	return nil
}

// Dispatch runs every matching handler for the event, sequentially, in
// ascending priority order. A handler may perform further store writes;
// those re-enter Dispatch synchronously with depth+1 before the outer
// handler's effect returns.
//
// If any effect fails, the remaining handlers do not run and the error
// propagates to the caller: the triggering write is treated as failed.
func (e *Engine) Dispatch(ctx context.Context, event Event) error {
	matched := e.handlersFor(event.RecordType)
	if len(matched) == 0 {
		return nil
	}

	op := string(event.Operation())
	ctx, span := e.tracer.Start(ctx, "triggers.Dispatch", trace.WithAttributes(
		attribute.String("record_type", event.RecordType),
		attribute.String("operation", op),
		attribute.Int("depth", event.Depth),
	))
	defer span.End()

	if e.metrics != nil {
		e.metrics.MutationsDispatched.WithLabelValues(event.RecordType, op).Inc()
		if event.Depth == 0 {
			start := requestcontext.Now(ctx)
			defer func() {
				e.metrics.DispatchDuration.Observe(requestcontext.Now(ctx).Sub(start).Seconds())
			}()
		}
	}

	// Nested writes issued by effects must carry depth+1.
	ctx = withDepth(ctx, event.Depth+1)

	for _, h := range matched {
		if h.Test != nil && !h.Test(ctx, event) {
			continue
		}
		if err := h.Effect(ctx, event); err != nil {
			if e.metrics != nil {
				e.metrics.HandlerFailures.WithLabelValues(h.Name).Inc()
			}
			span.SetStatus(codes.Error, err.Error())
			e.logger.Debug("trigger handler failed",
				"handler", h.Name,
				"record_type", event.RecordType,
				"operation", op,
				"depth", event.Depth,
			)
			return fmt.Errorf("trigger %q: %w", h.Name, err)
		}
	}
	return nil
}

// handlersFor merges the wildcard list with the record type's own list and
// orders it by (priority, registration order).
func (e *Engine) handlersFor(recordType string) []handler {
	e.mu.RLock()
	defer e.mu.RUnlock()

	typed := e.byType[recordType]
	if len(e.wildcard) == 0 && len(typed) == 0 {
		return nil
	}

	merged := make([]handler, 0, len(e.wildcard)+len(typed))
	merged = append(merged, e.wildcard...)
	merged = append(merged, typed...)
	slices.SortStableFunc(merged, func(a, b handler) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return a.seq - b.seq
	})
	return merged
}
