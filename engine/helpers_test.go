package engine

import (
	"context"
	"fmt"
	"sync"

	"copytrader/model"
)

// fakeGateway scripts exchange behavior per account. Submit outcomes are
// consumed in order; once the script runs out, submissions succeed.
type fakeGateway struct {
	mu sync.Mutex

	balances   map[int64]float64
	balanceErr map[int64]error
	markPrices map[string]float64
	markErr    error
	assets     map[string]model.AssetInfo

	submitScript  map[int64][]error
	submitCalls   map[int64]int
	nextOrderID   int
	orderStatuses map[string]model.OrderStatusType
	statusDefault model.OrderStatusType
	statusErr     error
	leverageCalls []string

	events map[int64]chan model.MasterTradeEvent
	errs   map[int64]chan error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balances:   map[int64]float64{},
		balanceErr: map[int64]error{},
		markPrices: map[string]float64{},
		assets: map[string]model.AssetInfo{
			"BTCUSDT": {StepSize: 0.0001, BaseAssetPrecision: 4, MinQuantity: 0.0001, MaxQuantity: 1000, Tradable: true},
			"ETHUSDT": {StepSize: 0.001, BaseAssetPrecision: 3, MinQuantity: 0.001, MaxQuantity: 10000, Tradable: true},
		},
		submitScript:  map[int64][]error{},
		submitCalls:   map[int64]int{},
		orderStatuses: map[string]model.OrderStatusType{},
		events:        map[int64]chan model.MasterTradeEvent{},
		errs:          map[int64]chan error{},
	}
}

func (g *fakeGateway) AccountBalance(_ context.Context, accountID int64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.balanceErr[accountID]; err != nil {
		return 0, err
	}
	return g.balances[accountID], nil
}

func (g *fakeGateway) MarkPrice(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.markErr != nil {
		return 0, g.markErr
	}
	return g.markPrices[symbol], nil
}

func (g *fakeGateway) AssetsInfo(symbol string) (model.AssetInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	asset, ok := g.assets[symbol]
	if !ok {
		return model.AssetInfo{}, ErrNotReady
	}
	return asset, nil
}

func (g *fakeGateway) SetLeverage(_ context.Context, accountID int64, symbol string, leverage int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leverageCalls = append(g.leverageCalls, symbol)
	return nil
}

func (g *fakeGateway) SubmitOrder(_ context.Context, accountID int64, _ model.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls[accountID]++
	script := g.submitScript[accountID]
	if len(script) > 0 {
		next := script[0]
		g.submitScript[accountID] = script[1:]
		if next != nil {
			return "", next
		}
	}
	g.nextOrderID++
	return fmt.Sprintf("ex-%d", g.nextOrderID), nil
}

func (g *fakeGateway) OrderStatus(_ context.Context, _ int64, _ string, orderID string) (model.OrderStatusType, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return "", g.statusErr
	}
	if status, ok := g.orderStatuses[orderID]; ok {
		return status, nil
	}
	if g.statusDefault != "" {
		return g.statusDefault, nil
	}
	return model.OrderStatusTypeNew, nil
}

func (g *fakeGateway) MasterEventsSubscription(_ context.Context, masterAccountID int64) (chan model.MasterTradeEvent, chan error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	events := make(chan model.MasterTradeEvent, 16)
	errs := make(chan error, 1)
	g.events[masterAccountID] = events
	g.errs[masterAccountID] = errs
	return events, errs
}

func (g *fakeGateway) push(masterID int64, event model.MasterTradeEvent) {
	g.mu.Lock()
	ch := g.events[masterID]
	g.mu.Unlock()
	ch <- event
}

func (g *fakeGateway) setBalanceErr(accountID int64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balanceErr[accountID] = err
}

func (g *fakeGateway) submitCount(accountID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitCalls[accountID]
}

// stubConfigs is an in-memory ConfigSource.
type stubConfigs struct {
	accounts map[int64]model.Account
	configs  map[int64][]model.CopyTradingConfig
}

func (s *stubConfigs) Account(accountID int64) (model.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return account, ErrNotReady
	}
	return account, nil
}

func (s *stubConfigs) MasterAccounts() ([]model.Account, error) {
	masters := make([]model.Account, 0)
	for _, account := range s.accounts {
		if account.IsMaster() && account.Active {
			masters = append(masters, account)
		}
	}
	return masters, nil
}

func (s *stubConfigs) ActiveConfigs(masterAccountID int64) ([]model.CopyTradingConfig, error) {
	return s.configs[masterAccountID], nil
}

// recordingNotifier captures terminal callbacks.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	done     []model.CopyJob
	errors   []error
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) OnJobDone(job model.CopyJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = append(n.done, job)
}

func (n *recordingNotifier) OnError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, err)
}

func (n *recordingNotifier) doneJobs() []model.CopyJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.CopyJob(nil), n.done...)
}
