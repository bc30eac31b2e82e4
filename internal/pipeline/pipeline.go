package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/internal/tickmanager"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrQueueFull is returned when a command cannot be queued in time
	ErrQueueFull = errors.New("pipeline queue is full")
	// ErrNotRunning is returned when submitting to a stopped pipeline
	ErrNotRunning = errors.New("pipeline is not running")
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_commands_total",
			Help: "Total number of commands applied by the pipeline",
		},
		[]string{"kind"},
	)

	commandsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_commands_dropped_total",
			Help: "Total number of commands rejected by the pipeline",
		},
		[]string{"kind", "reason"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Number of commands waiting in the pipeline queue",
		},
	)
)

type commandKind string

const (
	commandTick   commandKind = "tick"
	commandTicks  commandKind = "ticks"
	commandCancel commandKind = "cancel"
	commandResume commandKind = "resume"
	commandReset  commandKind = "reset"
	commandSync   commandKind = "sync"
)

type command struct {
	kind  commandKind
	tick  models.Tick
	ticks []models.Tick
	done  chan struct{}
}

// Config holds configuration for the pipeline
type Config struct {
	QueueSize      int           // Buffered commands (default: 1024)
	EnqueueTimeout time.Duration // How long Submit waits on a full queue; 0 fails immediately
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:      1024,
		EnqueueTimeout: 100 * time.Millisecond,
	}
}

// Stats holds statistics about the pipeline
type Stats struct {
	TicksProcessed    int64     `json:"ticks_processed"`
	ControlsProcessed int64     `json:"controls_processed"`
	TicksRejected     int64     `json:"ticks_rejected"`
	CommandsDropped   int64     `json:"commands_dropped"`
	LastTickTime      time.Time `json:"last_tick_time"`
}

// Pipeline serializes ticks and control operations from any number of
// goroutines onto a single goroutine that owns the target TickListener.
// Commands are applied in the order they were accepted.
type Pipeline struct {
	config  Config
	target  tickmanager.TickListener
	queue   chan command
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	statsMu sync.RWMutex
	stats   Stats
}

// New creates a pipeline feeding target
func New(target tickmanager.TickListener, config Config) *Pipeline {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		config: config,
		target: target,
		queue:  make(chan command, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the dispatch goroutine
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pipeline is already running")
	}
	if p.ctx.Err() != nil {
		return fmt.Errorf("pipeline cannot be restarted")
	}
	p.running = true

	logger.Info("Starting tick pipeline",
		logger.Int("queue_size", p.config.QueueSize),
		logger.Duration("enqueue_timeout", p.config.EnqueueTimeout),
	)

	p.wg.Add(1)
	go p.run()
	return nil
}

// Stop applies every queued command, then stops the dispatch goroutine
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	logger.Info("Stopping tick pipeline")
	p.cancel()
	p.wg.Wait()
	logger.Info("Tick pipeline stopped")
}

// IsRunning returns whether the pipeline is running
func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Submit queues a tick
func (p *Pipeline) Submit(tick models.Tick) error {
	return p.enqueue(command{kind: commandTick, tick: tick})
}

// SubmitBatch queues ticks to be processed in order as one command
func (p *Pipeline) SubmitBatch(ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	batch := make([]models.Tick, len(ticks))
	copy(batch, ticks)
	return p.enqueue(command{kind: commandTicks, ticks: batch})
}

// Cancel queues a cancel broadcast
func (p *Pipeline) Cancel() error {
	return p.enqueue(command{kind: commandCancel})
}

// Resume queues a resume broadcast
func (p *Pipeline) Resume() error {
	return p.enqueue(command{kind: commandResume})
}

// Reset queues a reset broadcast
func (p *Pipeline) Reset() error {
	return p.enqueue(command{kind: commandReset})
}

// Sync blocks until every command accepted before the call has been applied
func (p *Pipeline) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := p.enqueue(command{kind: commandSync, done: done}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume feeds ticks from a source channel until it closes or ctx is done.
// Invalid ticks are logged and skipped.
func (p *Pipeline) Consume(ctx context.Context, ticks <-chan *models.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				logger.Debug("Tick source channel closed")
				return
			}
			if tick == nil {
				continue
			}
			if err := tick.Validate(); err != nil {
				p.incrementRejected()
				logger.Warn("Skipping invalid tick",
					logger.ErrorField(err),
					logger.Decimal("price", tick.Price),
					logger.Time("timestamp", tick.Timestamp),
				)
				continue
			}
			if err := p.Submit(*tick); err != nil {
				logger.Warn("Failed to submit tick",
					logger.ErrorField(err),
				)
			}
		}
	}
}

// OnTick queues a tick, logging if it is dropped
func (p *Pipeline) OnTick(tick models.Tick) {
	p.logDrop(p.Submit(tick), commandTick)
}

// OnTicks queues ticks, logging if they are dropped
func (p *Pipeline) OnTicks(ticks []models.Tick) {
	p.logDrop(p.SubmitBatch(ticks), commandTicks)
}

// OnCancel queues a cancel broadcast
func (p *Pipeline) OnCancel() {
	p.logDrop(p.Cancel(), commandCancel)
}

// OnResume queues a resume broadcast
func (p *Pipeline) OnResume() {
	p.logDrop(p.Resume(), commandResume)
}

// OnReset queues a reset broadcast
func (p *Pipeline) OnReset() {
	p.logDrop(p.Reset(), commandReset)
}

// GetStats returns current pipeline statistics
func (p *Pipeline) GetStats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

// QueueLen returns the number of queued commands
func (p *Pipeline) QueueLen() int {
	return len(p.queue)
}

// enqueue holds the read lock until the command is queued, so Stop cannot
// mark the pipeline stopped while a send is in flight and drain never misses
// an accepted command.
func (p *Pipeline) enqueue(cmd command) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		p.recordDrop(cmd.kind, "not_running")
		return ErrNotRunning
	}

	select {
	case p.queue <- cmd:
		queueDepth.Set(float64(len(p.queue)))
		return nil
	default:
	}

	if p.config.EnqueueTimeout <= 0 {
		p.recordDrop(cmd.kind, "queue_full")
		return ErrQueueFull
	}

	timer := time.NewTimer(p.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case p.queue <- cmd:
		queueDepth.Set(float64(len(p.queue)))
		return nil
	case <-p.ctx.Done():
		p.recordDrop(cmd.kind, "not_running")
		return ErrNotRunning
	case <-timer.C:
		p.recordDrop(cmd.kind, "queue_full")
		return ErrQueueFull
	}
}

// run is the only goroutine that touches the target
func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case cmd := <-p.queue:
			p.apply(cmd)
		}
	}
}

// drain applies commands that were accepted before Stop
func (p *Pipeline) drain() {
	for {
		select {
		case cmd := <-p.queue:
			p.apply(cmd)
		default:
			return
		}
	}
}

func (p *Pipeline) apply(cmd command) {
	queueDepth.Set(float64(len(p.queue)))
	commandsTotal.WithLabelValues(string(cmd.kind)).Inc()

	switch cmd.kind {
	case commandTick:
		p.target.OnTick(cmd.tick)
		p.incrementTicks(1, cmd.tick.Timestamp)
	case commandTicks:
		p.target.OnTicks(cmd.ticks)
		p.incrementTicks(int64(len(cmd.ticks)), cmd.ticks[len(cmd.ticks)-1].Timestamp)
	case commandCancel:
		p.target.OnCancel()
		p.incrementControls()
	case commandResume:
		p.target.OnResume()
		p.incrementControls()
	case commandReset:
		p.target.OnReset()
		p.incrementControls()
	case commandSync:
		close(cmd.done)
	}
}

func (p *Pipeline) logDrop(err error, kind commandKind) {
	if err != nil {
		logger.Warn("Pipeline dropped command",
			logger.String("kind", string(kind)),
			logger.ErrorField(err),
		)
	}
}

func (p *Pipeline) recordDrop(kind commandKind, reason string) {
	commandsDropped.WithLabelValues(string(kind), reason).Inc()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.CommandsDropped++
}

func (p *Pipeline) incrementTicks(n int64, last time.Time) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.TicksProcessed += n
	p.stats.LastTickTime = last
}

func (p *Pipeline) incrementControls() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.ControlsProcessed++
}

func (p *Pipeline) incrementRejected() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.TicksRejected++
}
