package sheet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/engine"
	"github.com/rtpalgo/terminal/internal/feed"
	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/instruments"
	"github.com/rtpalgo/terminal/internal/types"
)

// memSheet is an in-memory Sheet for poller tests.
type memSheet struct {
	mu      sync.Mutex
	rows    []types.RowInput
	cleared []int
	states  []types.RowState
	ticks   []types.Tick
	orders  []types.OrderLogEntry
}

func (m *memSheet) Rows(ctx context.Context) ([]types.RowInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.RowInput, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memSheet) ClearAction(ctx context.Context, rowID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, rowID)
	for i := range m.rows {
		if m.rows[i].RowID == rowID {
			m.rows[i].Action = types.ActionNone
		}
	}
	return nil
}

func (m *memSheet) WriteRowStates(ctx context.Context, states []types.RowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = states
	return nil
}

func (m *memSheet) WriteTicker(ctx context.Context, ticks []types.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = ticks
	return nil
}

func (m *memSheet) WriteOrderLog(ctx context.Context, entries []types.OrderLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = entries
	return nil
}

func (m *memSheet) WriteProfile(ctx context.Context, margin gateway.MarginSummary) error {
	return nil
}

// nopGateway accepts every order.
type nopGateway struct {
	mu     sync.Mutex
	placed int
}

func (g *nopGateway) Place(ctx context.Context, req gateway.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placed++
	return fmt.Sprintf("ord-%d", g.placed), nil
}

func (g *nopGateway) Modify(ctx context.Context, orderID string, req gateway.OrderRequest) error {
	return nil
}

func (g *nopGateway) Cancel(ctx context.Context, orderID string) error { return nil }

func (g *nopGateway) OrderStatus(ctx context.Context, orderID string) (gateway.OrderStatus, error) {
	return gateway.OrderStatus{State: gateway.OrderComplete}, nil
}

func (g *nopGateway) Margin(ctx context.Context) (gateway.MarginSummary, error) {
	return gateway.MarginSummary{AccountID: "TEST"}, nil
}

type mapResolver struct {
	contracts map[string]instruments.Contract
}

func (r *mapResolver) ByName(ctx context.Context, name string) (instruments.Contract, error) {
	c, ok := r.contracts[name]
	if !ok {
		return instruments.Contract{}, fmt.Errorf("%w: %s", types.ErrUnknownInstrument, name)
	}
	return c, nil
}

// recordingSubscriber captures subscription changes.
type recordingSubscriber struct {
	mu           sync.Mutex
	subscribed   [][]string
	unsubscribed [][]string
}

func (s *recordingSubscriber) Subscribe(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, keys)
	return nil
}

func (s *recordingSubscriber) Unsubscribe(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = append(s.unsubscribed, keys)
	return nil
}

func newTestPoller(t *testing.T, sht *memSheet) (*Poller, *engine.Engine, *recordingSubscriber) {
	t.Helper()

	resolver := &mapResolver{contracts: map[string]instruments.Contract{
		"SBIN": {Exchange: "NSE", Token: 3045, TradingSymbol: "SBIN-EQ", Name: "SBIN"},
		"INFY": {Exchange: "NSE", Token: 1594, TradingSymbol: "INFY-EQ", Name: "INFY"},
	}}
	gw := &nopGateway{}
	ticks := feed.NewStore()
	eng := engine.New(engine.DefaultConfig(), gw, ticks, resolver, nil, nil)
	sub := &recordingSubscriber{}

	p := NewPoller(DefaultPollerConfig(), sht, eng, resolver, sub, ticks, gw, nil)
	return p, eng, sub
}

func TestPollDispatchesActionsAndClears(t *testing.T) {
	sht := &memSheet{rows: []types.RowInput{
		{RowID: 0, Instrument: "SBIN", Side: types.SideBuy, Product: types.ProductIntraday, Quantity: 10, Action: types.ActionExecute},
		{RowID: 1, Instrument: "INFY", Side: types.SideSell, Product: types.ProductIntraday, Quantity: 5},
	}}
	p, eng, _ := newTestPoller(t, sht)

	p.Poll(context.Background())

	st, err := eng.RowState(0)
	if err != nil {
		t.Fatalf("RowState() error = %v", err)
	}
	if st.Status != types.StatusOpen {
		t.Errorf("status = %q, want %q", st.Status, types.StatusOpen)
	}

	sht.mu.Lock()
	cleared := append([]int(nil), sht.cleared...)
	states := len(sht.states)
	sht.mu.Unlock()
	if len(cleared) != 1 || cleared[0] != 0 {
		t.Errorf("cleared = %v, want [0]", cleared)
	}
	if states != 1 {
		t.Errorf("written states = %d, want 1", states)
	}

	// A second poll must not re-dispatch the cleared action.
	p.Poll(context.Background())
	st, _ = eng.RowState(0)
	if st.Status != types.StatusOpen {
		t.Errorf("status after second poll = %q, want %q", st.Status, types.StatusOpen)
	}
}

func TestPollSyncsSubscriptions(t *testing.T) {
	sht := &memSheet{rows: []types.RowInput{
		{RowID: 0, Instrument: "SBIN"},
		{RowID: 1, Instrument: "INFY"},
	}}
	p, _, sub := newTestPoller(t, sht)

	p.Poll(context.Background())

	sub.mu.Lock()
	subs := append([][]string(nil), sub.subscribed...)
	sub.mu.Unlock()
	if len(subs) != 1 {
		t.Fatalf("subscribe calls = %d, want 1", len(subs))
	}
	want := []string{"NSE|1594", "NSE|3045"}
	if len(subs[0]) != 2 || subs[0][0] != want[0] || subs[0][1] != want[1] {
		t.Errorf("subscribed keys = %v, want %v", subs[0], want)
	}

	// Dropping a row unsubscribes its token.
	sht.mu.Lock()
	sht.rows = sht.rows[:1]
	sht.mu.Unlock()

	p.Poll(context.Background())

	sub.mu.Lock()
	unsubs := append([][]string(nil), sub.unsubscribed...)
	sub.mu.Unlock()
	if len(unsubs) != 1 || len(unsubs[0]) != 1 || unsubs[0][0] != "NSE|1594" {
		t.Errorf("unsubscribed = %v, want [[NSE|1594]]", unsubs)
	}
}

func TestPollSkipsUnknownInstruments(t *testing.T) {
	sht := &memSheet{rows: []types.RowInput{
		{RowID: 0, Instrument: "BOGUS"},
	}}
	p, _, sub := newTestPoller(t, sht)

	p.Poll(context.Background())
	p.Poll(context.Background())

	sub.mu.Lock()
	subs := len(sub.subscribed)
	sub.mu.Unlock()
	if subs != 0 {
		t.Errorf("subscribe calls = %d, want 0 for unknown instrument", subs)
	}
}

func TestPollWritesTicker(t *testing.T) {
	sht := &memSheet{rows: []types.RowInput{
		{RowID: 0, Instrument: "SBIN"},
	}}
	p, _, _ := newTestPoller(t, sht)

	price := decimal.NewFromFloat(851.20)
	p.ticks.Apply(feed.Update{Token: "3045", LastPrice: &price})

	p.Poll(context.Background())

	sht.mu.Lock()
	ticks := append([]types.Tick(nil), sht.ticks...)
	sht.mu.Unlock()
	if len(ticks) != 1 {
		t.Fatalf("ticker rows = %d, want 1", len(ticks))
	}
	if !ticks[0].LastPrice.Equal(price) {
		t.Errorf("ticker last price = %s, want %s", ticks[0].LastPrice, price)
	}
}

func TestPollerStartStop(t *testing.T) {
	sht := &memSheet{}
	p, _, _ := newTestPoller(t, sht)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := p.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
