package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"
	"probewatch/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	eventTypeStatus   = "probestatus"
	eventTypeSnapshot = "snapshot"
)

type EngineConfig struct {
	ComparatorShards int
	QueueSize        int
	DispatchTimeout  time.Duration
	Tracker          TrackerConfig
	Comparator       ComparatorConfig
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ComparatorShards: 4,
		QueueSize:        1024,
		DispatchTimeout:  5 * time.Second,
		Tracker:          DefaultTrackerConfig(),
		Comparator:       DefaultComparatorConfig(),
	}
}

type trackerTask func(t *ConnectivityTracker)

type comparatorShard struct {
	comparator *PathQualityComparator
	queue      chan *domain.MeasurementSnapshot
}

// Engine routes probe status events to a single connectivity loop and measurement
// snapshots to per-probe comparator shards, then hands alerts to the sink.
// Events of one probe are handled in submission order.
type Engine struct {
	cfg     EngineConfig
	sink    ports.AlertSink
	metrics ports.EngineMetrics
	logger  *zap.SugaredLogger

	tracker      *ConnectivityTracker
	trackerQueue chan trackerTask
	shards       []*comparatorShard

	mu      sync.RWMutex
	started bool
	stopped bool
	ctx     context.Context
	wg      sync.WaitGroup

	seeded atomic.Bool
}

func NewEngine(cfg EngineConfig, clock Clock, sink ports.AlertSink, metrics ports.EngineMetrics, logger *zap.SugaredLogger) *Engine {
	if cfg.ComparatorShards <= 0 {
		cfg.ComparatorShards = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	shards := make([]*comparatorShard, cfg.ComparatorShards)
	for i := range shards {
		shards[i] = &comparatorShard{
			comparator: NewPathQualityComparator(cfg.Comparator, clock),
			queue:      make(chan *domain.MeasurementSnapshot, cfg.QueueSize),
		}
	}

	return &Engine{
		cfg:          cfg,
		sink:         sink,
		metrics:      metrics,
		logger:       logger,
		tracker:      NewConnectivityTracker(cfg.Tracker),
		trackerQueue: make(chan trackerTask, cfg.QueueSize),
		shards:       shards,
		ctx:          context.Background(),
	}
}

// Start launches the connectivity loop and the comparator shards.
// Cancelling ctx does not stop the loops; call Stop for that.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	e.ctx = context.WithoutCancel(ctx)

	e.wg.Add(1)
	go e.runTracker()
	for i, shard := range e.shards {
		e.wg.Add(1)
		go e.runShard(i, shard)
	}

	e.logger.Infow("engine started",
		"comparator_shards", len(e.shards),
		"queue_size", e.cfg.QueueSize,
	)
}

// Stop rejects new submissions, waits until every queued event is handled and
// returns. It is safe to call more than once.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.trackerQueue)
	for _, shard := range e.shards {
		close(shard.queue)
	}
	started := e.started
	e.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Infow("engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain engine queues: %w", ctx.Err())
	}
}

// SubmitStatus queues a probe status event, blocking until accepted or ctx is done.
func (e *Engine) SubmitStatus(ctx context.Context, ev domain.ProbeStatusEvent) error {
	return e.enqueueTracker(ctx, func(t *ConnectivityTracker) {
		e.handleStatus(ev)
	})
}

// SubmitSnapshot queues a measurement snapshot on the shard owning its probe.
func (e *Engine) SubmitSnapshot(ctx context.Context, snap *domain.MeasurementSnapshot) error {
	shard := e.shards[e.shardFor(snap)]

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return domain.ErrEngineStopped
	}
	select {
	case shard.queue <- snap:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Seed initializes the tracker from the inventory on the connectivity loop.
func (e *Engine) Seed(ctx context.Context, records []domain.InventoryRecord) error {
	var initErr error
	err := e.exec(ctx, func(t *ConnectivityTracker) {
		start := time.Now()
		var out domain.Outcome
		out, initErr = t.Initialize(records)
		for _, d := range out.Diagnostics {
			e.logDiagnostic(d, nil)
			e.metrics.RecordDiagnostic(d.Code)
		}
		if initErr != nil {
			return
		}
		stats := t.Stats()
		e.metrics.SetInventoryProbes(stats.Probes)
		for key, p := range t.Percentages() {
			e.metrics.SetNetworkPercentage(key, p)
		}
		e.logger.Infow("tracker seeded from inventory",
			"records", len(records),
			"skipped", len(out.Diagnostics),
			"probes", stats.Probes,
			"networks", stats.Networks,
			"duration", time.Since(start),
		)
	})
	if err != nil {
		return err
	}
	if initErr != nil {
		e.metrics.RecordDiagnostic(domain.DiagInventoryUnavailable)
		return fmt.Errorf("failed to seed tracker: %w", initErr)
	}
	e.seeded.Store(true)
	return nil
}

// Seeded reports whether an inventory has been applied.
func (e *Engine) Seeded() bool {
	return e.seeded.Load()
}

func (e *Engine) Probe(ctx context.Context, id domain.ProbeID) (domain.Probe, error) {
	var (
		probe  domain.Probe
		getErr error
	)
	if err := e.exec(ctx, func(t *ConnectivityTracker) {
		probe, getErr = t.Probe(id)
	}); err != nil {
		return domain.Probe{}, err
	}
	return probe, getErr
}

func (e *Engine) Network(ctx context.Context, key domain.NetworkKey) (domain.NetworkView, error) {
	var (
		view   domain.NetworkView
		getErr error
	)
	if err := e.exec(ctx, func(t *ConnectivityTracker) {
		view, getErr = t.Network(key)
	}); err != nil {
		return domain.NetworkView{}, err
	}
	return view, getErr
}

func (e *Engine) Networks(ctx context.Context, filter domain.NetworkFilter) ([]domain.NetworkView, error) {
	var views []domain.NetworkView
	if err := e.exec(ctx, func(t *ConnectivityTracker) {
		views = t.Networks(filter)
	}); err != nil {
		return nil, err
	}
	return views, nil
}

func (e *Engine) exec(ctx context.Context, fn trackerTask) error {
	done := make(chan struct{})
	if err := e.enqueueTracker(ctx, func(t *ConnectivityTracker) {
		defer close(done)
		fn(t)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) enqueueTracker(ctx context.Context, task trackerTask) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return domain.ErrEngineStopped
	}
	select {
	case e.trackerQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) shardFor(snap *domain.MeasurementSnapshot) int {
	if snap == nil || snap.ProbeID <= 0 {
		return 0
	}
	return int(snap.ProbeID) % len(e.shards)
}

func (e *Engine) runTracker() {
	defer e.wg.Done()
	for task := range e.trackerQueue {
		task(e.tracker)
	}
}

func (e *Engine) runShard(index int, shard *comparatorShard) {
	defer e.wg.Done()
	for snap := range shard.queue {
		e.handleSnapshot(index, shard.comparator, snap)
	}
}

// handleStatus runs on the connectivity loop.
func (e *Engine) handleStatus(ev domain.ProbeStatusEvent) {
	start := time.Now()
	ctx, span := tracing.TraceProbeEvent(e.ctx, int(ev.ProbeID), string(ev.Kind))
	defer span.End()

	out := e.tracker.HandleEvent(ev)

	if probe, err := e.tracker.Probe(ev.ProbeID); err == nil {
		for _, family := range domain.AddressFamilies {
			asn := probe.ASN(family)
			if asn == 0 {
				continue
			}
			key := domain.NetworkKey{Family: family, ASN: asn}
			if p, ok := e.tracker.Percentage(key); ok {
				e.metrics.SetNetworkPercentage(key, p)
			}
		}
	}

	e.finish(ctx, eventTypeStatus, out, start, "probe_id", int(ev.ProbeID))
}

func (e *Engine) handleSnapshot(shard int, c *PathQualityComparator, snap *domain.MeasurementSnapshot) {
	start := time.Now()
	var probeID, msmID int
	if snap != nil {
		probeID, msmID = int(snap.ProbeID), int(snap.MeasurementID)
	}
	ctx, span := tracing.TraceSnapshot(e.ctx, probeID, msmID)
	defer span.End()

	out := c.HandleSnapshot(snap)
	e.finish(ctx, eventTypeSnapshot, out, start, "probe_id", probeID, "shard", shard)
}

func (e *Engine) finish(ctx context.Context, eventType string, out domain.Outcome, start time.Time, keysAndValues ...interface{}) {
	for _, d := range out.Diagnostics {
		e.logDiagnostic(d, keysAndValues)
		e.metrics.RecordDiagnostic(d.Code)
	}
	tracing.AddSpanAttributes(ctx, attribute.Int("alerts.count", len(out.Alerts)))

	for _, alert := range out.Alerts {
		e.metrics.RecordAlert(alert.Kind)
		e.dispatch(ctx, alert)
	}
	e.metrics.RecordEvent(eventType, time.Since(start))
}

func (e *Engine) dispatch(ctx context.Context, alert domain.Alert) {
	if e.sink == nil {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
	defer cancel()

	if err := e.sink.Dispatch(dctx, alert); err != nil {
		tracing.RecordError(ctx, err)
		e.metrics.RecordDispatchFailure(e.sink.Name())
		e.logger.Warnw("failed to dispatch alert",
			"sink", e.sink.Name(),
			"kind", alert.Kind,
			"correlation_key", alert.CorrelationKey,
			"error", err,
		)
	}
}

func (e *Engine) logDiagnostic(d domain.Diagnostic, keysAndValues []interface{}) {
	fields := make([]interface{}, 0, len(keysAndValues)+2*len(d.Fields)+2)
	fields = append(fields, "code", string(d.Code))
	for k, v := range d.Fields {
		fields = append(fields, k, v)
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, _ := keysAndValues[i].(string)
		if _, dup := d.Fields[key]; !dup {
			fields = append(fields, key, keysAndValues[i+1])
		}
	}

	switch d.Level {
	case domain.LevelWarn:
		e.logger.Warnw(d.Message, fields...)
	case domain.LevelInfo:
		e.logger.Infow(d.Message, fields...)
	default:
		e.logger.Debugw(d.Message, fields...)
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordEvent(string, time.Duration) {}
func (noopMetrics) RecordAlert(domain.AlertKind) {}
func (noopMetrics) RecordDiagnostic(domain.DiagnosticCode) {}
func (noopMetrics) SetNetworkPercentage(domain.NetworkKey, float64) {}
func (noopMetrics) SetInventoryProbes(int) {}
func (noopMetrics) RecordDispatchFailure(string) {}
