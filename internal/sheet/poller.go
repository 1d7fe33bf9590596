package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rtpalgo/terminal/internal/engine"
	"github.com/rtpalgo/terminal/internal/feed"
	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/instruments"
	"github.com/rtpalgo/terminal/internal/metrics"
	"github.com/rtpalgo/terminal/internal/types"
)

// PollerConfig holds control loop settings.
type PollerConfig struct {
	PollInterval         time.Duration
	OrderRefreshInterval time.Duration

	// MaxTokens caps how many instruments the watch sheet may stream at
	// once.
	MaxTokens int
}

// DefaultPollerConfig returns default poller settings.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval:         100 * time.Millisecond,
		OrderRefreshInterval: 5 * time.Second,
		MaxTokens:            250,
	}
}

// Subscriber manages feed subscriptions for "EXCHANGE|token" keys.
type Subscriber interface {
	Subscribe(keys []string) error
	Unsubscribe(keys []string) error
}

// Poller is the control loop. It reads the watch sheet, keeps feed
// subscriptions in line with it, dispatches row actions to the engine
// and writes every result pane back out.
type Poller struct {
	cfg       PollerConfig
	sheet     Sheet
	eng       *engine.Engine
	contracts engine.Resolver
	stream    Subscriber
	ticks     *feed.Store
	gw        gateway.Gateway
	logger    *slog.Logger
	recorder  *metrics.Recorder

	// resolved caches contract lookups; the watch sheet is re-read on
	// every poll and most rows never change.
	resolved map[string]resolvedContract

	mu         sync.Mutex
	subscribed map[string]string

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type resolvedContract struct {
	contract instruments.Contract
	ok       bool
}

// NewPoller creates the control loop. stream may be nil when no live
// feed is attached.
func NewPoller(
	cfg PollerConfig,
	sht Sheet,
	eng *engine.Engine,
	contracts engine.Resolver,
	stream Subscriber,
	ticks *feed.Store,
	gw gateway.Gateway,
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollerConfig().PollInterval
	}
	if cfg.OrderRefreshInterval <= 0 {
		cfg.OrderRefreshInterval = DefaultPollerConfig().OrderRefreshInterval
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultPollerConfig().MaxTokens
	}

	return &Poller{
		cfg:        cfg,
		sheet:      sht,
		eng:        eng,
		contracts:  contracts,
		stream:     stream,
		ticks:      ticks,
		gw:         gw,
		logger:     logger,
		recorder:   metrics.NewRecorder(),
		resolved:   make(map[string]resolvedContract),
		subscribed: make(map[string]string),
		done:       make(chan struct{}),
	}
}

// Start launches the poll and refresh loops.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("starting sheet poller",
		"poll_interval", p.cfg.PollInterval,
		"order_refresh_interval", p.cfg.OrderRefreshInterval,
	)

	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.wg.Add(1)
	go p.refreshLoop(ctx)

	return nil
}

// Stop stops the loops and waits for them to drain.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("stopping sheet poller")
	close(p.done)
	p.wg.Wait()
	return nil
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

func (p *Poller) refreshLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.OrderRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

// Poll runs one control loop cycle: read rows, sync subscriptions,
// dispatch actions, write panes.
func (p *Poller) Poll(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveSheetPoll()

	rows, err := p.sheet.Rows(ctx)
	if err != nil {
		p.logger.Error("read watch sheet failed", "err", err)
		p.recorder.RecordError("sheet_read")
		return
	}

	p.syncSubscriptions(ctx, rows)

	for _, row := range rows {
		if row.Action == types.ActionNone {
			continue
		}

		err := p.eng.HandleRowAction(ctx, row)
		if errors.Is(err, types.ErrRowBusy) {
			// A monitor holds the row; the action stays on the sheet
			// and is retried next cycle.
			continue
		}
		if err != nil {
			p.logger.Warn("row action failed",
				"row", row.RowID,
				"action", row.Action.String(),
				"err", err,
			)
			p.recorder.RecordError("row_action")
		}

		if err := p.sheet.ClearAction(ctx, row.RowID); err != nil {
			p.logger.Error("clear action failed", "row", row.RowID, "err", err)
		}
	}

	p.writePanes(ctx)
}

// syncSubscriptions aligns feed subscriptions with the instruments on
// the sheet.
func (p *Poller) syncSubscriptions(ctx context.Context, rows []types.RowInput) {
	desired := make(map[string]string)
	for _, row := range rows {
		if row.Instrument == "" {
			continue
		}
		if len(desired) >= p.cfg.MaxTokens {
			p.logger.Warn("watch sheet exceeds token cap", "cap", p.cfg.MaxTokens)
			break
		}
		contract, ok := p.resolve(ctx, row.Instrument)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s|%d", contract.Exchange, contract.Token)
		desired[key] = fmt.Sprintf("%d", contract.Token)
	}

	p.mu.Lock()
	var add, remove []string
	for key := range desired {
		if _, ok := p.subscribed[key]; !ok {
			add = append(add, key)
		}
	}
	for key := range p.subscribed {
		if _, ok := desired[key]; !ok {
			remove = append(remove, key)
		}
	}
	p.subscribed = desired
	p.mu.Unlock()

	if p.stream == nil {
		return
	}
	sort.Strings(add)
	sort.Strings(remove)
	if len(add) > 0 {
		if err := p.stream.Subscribe(add); err != nil {
			p.logger.Error("subscribe failed", "keys", add, "err", err)
		}
	}
	if len(remove) > 0 {
		if err := p.stream.Unsubscribe(remove); err != nil {
			p.logger.Error("unsubscribe failed", "keys", remove, "err", err)
		}
	}
}

func (p *Poller) resolve(ctx context.Context, instrument string) (instruments.Contract, bool) {
	if r, ok := p.resolved[instrument]; ok {
		return r.contract, r.ok
	}

	contract, err := p.contracts.ByName(ctx, instrument)
	if err != nil {
		p.logger.Warn("unknown instrument on watch sheet", "instrument", instrument)
		p.resolved[instrument] = resolvedContract{}
		return instruments.Contract{}, false
	}
	p.resolved[instrument] = resolvedContract{contract: contract, ok: true}
	return contract, true
}

// writePanes writes the status, ticker and order book panes.
func (p *Poller) writePanes(ctx context.Context) {
	if err := p.sheet.WriteRowStates(ctx, p.eng.RowStates()); err != nil {
		p.logger.Error("write row states failed", "err", err)
	}

	p.mu.Lock()
	tokens := make([]string, 0, len(p.subscribed))
	for _, token := range p.subscribed {
		tokens = append(tokens, token)
	}
	p.mu.Unlock()
	sort.Strings(tokens)

	if p.ticks != nil {
		if err := p.sheet.WriteTicker(ctx, p.ticks.Snapshot(tokens)); err != nil {
			p.logger.Error("write ticker failed", "err", err)
		}
	}

	if err := p.sheet.WriteOrderLog(ctx, p.eng.Orders().Entries()); err != nil {
		p.logger.Error("write order book failed", "err", err)
	}
}

// refresh re-queries order statuses and the account margin on the slow
// interval.
func (p *Poller) refresh(ctx context.Context) {
	p.eng.Orders().Refresh(ctx, p.gw, p.logger)

	margin, err := p.gw.Margin(ctx)
	if err != nil {
		p.logger.Warn("margin query failed", "err", err)
		return
	}
	if err := p.sheet.WriteProfile(ctx, margin); err != nil {
		p.logger.Error("write profile failed", "err", err)
	}
}
