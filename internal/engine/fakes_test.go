package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/instrument"
	"bracketbot/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errExchangeDown = errors.New("connection reset by peer")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// placeResult scripts one PlaceOrder call; the zero value accepts the order.
type placeResult struct {
	err  error
	noID bool
}

var accept = placeResult{}

// fakeExchange is a scripted in-memory exchange. Orders it accepts rest as
// NEW until a test changes them.
type fakeExchange struct {
	mu sync.Mutex

	nextID       int64
	placed       []exchange.OrderRequest
	placeResults []placeResult
	orders       map[int64]exchange.Order
	queryErr     error
	cancelled    []int64
	cancelErr    error
	cancelAll    int
	cancelAllErr error
	position     *exchange.Position
	positionErr  error
	trades       []exchange.Trade
	tradesErr    error
	balances     []exchange.Balance
	balancesErr  error
	leverage     []int
	leverageErr  error
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		nextID: 1000,
		orders: make(map[int64]exchange.Order),
		balances: []exchange.Balance{
			{Asset: "USDT", Balance: d("1200"), AvailableBalance: d("1000")},
		},
	}
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req exchange.OrderRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if len(f.placeResults) > 0 {
		r := f.placeResults[0]
		f.placeResults = f.placeResults[1:]
		if r.err != nil || r.noID {
			return 0, r.err
		}
	}
	f.nextID++
	f.orders[f.nextID] = exchange.Order{
		Symbol:  req.Symbol,
		OrderID: f.nextID,
		Status:  exchange.StatusNew,
		Side:    req.Side,
		Type:    req.Type,
		OrigQty: req.Quantity,
	}
	return f.nextID, nil
}

func (f *fakeExchange) QueryOrder(_ context.Context, _ string, id int64) (exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return exchange.Order{}, f.queryErr
	}
	o, ok := f.orders[id]
	if !ok {
		return exchange.Order{}, &exchange.APIError{Code: -2013, Message: "Order does not exist."}
	}
	return o, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	o := f.orders[id]
	o.Status = exchange.StatusCanceled
	f.orders[id] = o
	return nil
}

func (f *fakeExchange) CancelAllOpenOrders(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelAll++
	return f.cancelAllErr
}

func (f *fakeExchange) GetOpenPosition(context.Context, string) (*exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionErr != nil {
		return nil, f.positionErr
	}
	if f.position == nil {
		return nil, nil
	}
	p := *f.position
	return &p, nil
}

func (f *fakeExchange) GetAccountTrades(context.Context, string) ([]exchange.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchange.Trade(nil), f.trades...), f.tradesErr
}

func (f *fakeExchange) GetBalances(context.Context) ([]exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchange.Balance(nil), f.balances...), f.balancesErr
}

func (f *fakeExchange) SetLeverage(_ context.Context, _ string, lev int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverage = append(f.leverage, lev)
	return f.leverageErr
}

func (f *fakeExchange) GetMarkPrice(context.Context, string) (decimal.Decimal, error) {
	return d("50000"), nil
}

func (f *fakeExchange) GetLastPrice(context.Context, string) (decimal.Decimal, error) {
	return d("50000"), nil
}

func (f *fakeExchange) setOrder(id int64, mutate func(o *exchange.Order)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	mutate(&o)
	f.orders[id] = o
}

func (f *fakeExchange) placedOfType(t exchange.OrderType) []exchange.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []exchange.OrderRequest
	for _, r := range f.placed {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendText(text string) error {
	return m.Called(text).Error(0)
}

func (m *mockNotifier) texts() []string {
	out := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		out = append(out, c.Arguments.String(0))
	}
	return out
}

func (m *mockNotifier) count(substr string) int {
	n := 0
	for _, t := range m.texts() {
		if strings.Contains(t, substr) {
			n++
		}
	}
	return n
}

type journalEntry struct {
	Kind    string
	Symbol  string
	OrderID int64
	Payload map[string]any
}

type memJournal struct {
	entries []journalEntry
}

func (j *memJournal) Record(_ context.Context, kind, symbol string, orderID int64, payload map[string]any) error {
	j.entries = append(j.entries, journalEntry{kind, symbol, orderID, payload})
	return nil
}

func (j *memJournal) kinds() []string {
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Kind)
	}
	return out
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	eng     *Engine
	ex      *fakeExchange
	sched   *scheduler.Manual
	notify  *mockNotifier
	journal *memJournal
	clock   *testClock
	metrics *Metrics
	sleeps  []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := instrument.NewRegistry("")
	require.NoError(t, err)
	h := &harness{
		ex:      newFakeExchange(),
		sched:   scheduler.NewManual(),
		notify:  new(mockNotifier),
		journal: &memJournal{},
		clock:   &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	h.notify.On("SendText", mock.Anything).Return(nil)
	h.eng = New(h.ex, reg, h.sched, h.notify, Config{
		EntryTimeout: 60 * time.Minute,
		RetryDelay:   time.Second,
	},
		WithClock(h.clock.Now),
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
		WithJournal(h.journal),
		WithMetrics(h.metrics),
	)
	return h
}

func buySignal() Signal {
	return Signal{
		Symbol:           "BTCUSDT",
		Side:             "BUY",
		Entry:            d("50000"),
		StopLossDistance: d("200"),
		TakeProfitFactor: d("2"),
		RiskPercent:      d("1"),
		LimitOffset:      d("80"),
	}
}

// placeEntry runs a BUY signal and returns the entry order id.
func (h *harness) placeEntry(t *testing.T) int64 {
	t.Helper()
	res := h.eng.HandleSignal(context.Background(), buySignal())
	require.Equal(t, StatusPlaced, res.Status, res.Message)
	return res.OrderID
}

// armBracket places an entry, fills it and runs the entry monitor once.
func (h *harness) armBracket(t *testing.T) PositionState {
	t.Helper()
	id := h.placeEntry(t)
	h.ex.setOrder(id, func(o *exchange.Order) {
		o.Status = exchange.StatusFilled
		o.AvgPrice = d("50000")
		o.ExecutedQty = d("0.05")
	})
	h.clock.advance(10 * time.Second)
	require.True(t, h.sched.Tick(context.Background(), JobEntryMonitor))
	st := h.eng.State()
	require.Equal(t, PhaseExitPending, st.Phase)
	return st
}
