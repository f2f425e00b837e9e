package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"copytrader/model"
	"copytrader/utils"
)

const quoteAsset = "USDT"

type Credentials struct {
	APIKey     string
	APISecret  string
	APIKeyType string
}

type ProxyOption struct {
	Status bool
	Url    string
}

type balanceEntry struct {
	value     float64
	fetchedAt time.Time
}

// BinanceFuture serves every configured account, master and follower alike,
// through one client per credential set. Symbol metadata is fetched once at
// construction; balances go through a short TTL cache.
type BinanceFuture struct {
	ctx         context.Context
	clients     map[int64]*futures.Client
	credentials map[int64]Credentials
	assetsInfo  map[string]model.AssetInfo
	startedAt   time.Time

	Testnet     bool
	DebugMode   bool
	ProxyOption ProxyOption
	BalanceTTL  time.Duration

	balanceMu sync.Mutex
	balances  map[int64]balanceEntry
}

type BinanceFutureOption func(*BinanceFuture)

func WithBinanceFutureTestnet() BinanceFutureOption {
	return func(b *BinanceFuture) {
		b.Testnet = true
	}
}

func WithBinanceFutureDebugMode() BinanceFutureOption {
	return func(b *BinanceFuture) {
		b.DebugMode = true
	}
}

func WithBinanceFutureProxy(proxyUrl string) BinanceFutureOption {
	return func(b *BinanceFuture) {
		b.ProxyOption = ProxyOption{
			Status: true,
			Url:    proxyUrl,
		}
	}
}

// WithAccountCredentials registers the API keys for one account. Call it
// once per master and follower.
func WithAccountCredentials(accountID int64, key, secret, keyType string) BinanceFutureOption {
	return func(b *BinanceFuture) {
		b.credentials[accountID] = Credentials{APIKey: key, APISecret: secret, APIKeyType: keyType}
	}
}

func WithBalanceTTL(ttl time.Duration) BinanceFutureOption {
	return func(b *BinanceFuture) {
		b.BalanceTTL = ttl
	}
}

// NewBinanceFuture connects every registered account and loads the symbol
// metadata the sizer and guard rely on.
func NewBinanceFuture(ctx context.Context, options ...BinanceFutureOption) (*BinanceFuture, error) {
	binance.WebsocketKeepalive = true
	exchange := &BinanceFuture{
		ctx:         ctx,
		clients:     map[int64]*futures.Client{},
		credentials: map[int64]Credentials{},
		balances:    map[int64]balanceEntry{},
		BalanceTTL:  5 * time.Second,
	}
	for _, option := range options {
		option(exchange)
	}
	if len(exchange.credentials) == 0 {
		return nil, fmt.Errorf("no account credentials configured")
	}

	futures.UseTestnet = exchange.Testnet
	if exchange.ProxyOption.Status {
		futures.SetWsProxyUrl(exchange.ProxyOption.Url)
	}

	var probe *futures.Client
	for accountID, credentials := range exchange.credentials {
		var client *futures.Client
		if exchange.ProxyOption.Status {
			client = futures.NewProxiedClient(credentials.APIKey, credentials.APISecret, exchange.ProxyOption.Url)
		} else {
			client = futures.NewClient(credentials.APIKey, credentials.APISecret)
		}
		client.KeyType = credentials.APIKeyType
		client.Debug = exchange.DebugMode
		exchange.clients[accountID] = client
		probe = client
	}

	if err := probe.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance ping fail: %w", err)
	}

	results, err := probe.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}

	exchange.assetsInfo = make(map[string]model.AssetInfo)
	for _, info := range results.Symbols {
		tradeLimits := model.AssetInfo{
			BaseAsset:          info.BaseAsset,
			QuoteAsset:         info.QuoteAsset,
			BaseAssetPrecision: info.BaseAssetPrecision,
			QuotePrecision:     info.QuotePrecision,
			Tradable:           info.Status == "TRADING",
		}
		for _, filter := range info.Filters {
			if typ, ok := filter["filterType"]; ok {
				if typ == string(binance.SymbolFilterTypeLotSize) {
					tradeLimits.MinQuantity, _ = strconv.ParseFloat(filter["minQty"].(string), 64)
					tradeLimits.MaxQuantity, _ = strconv.ParseFloat(filter["maxQty"].(string), 64)
					tradeLimits.StepSize, _ = strconv.ParseFloat(filter["stepSize"].(string), 64)
				}
				if typ == string(binance.SymbolFilterTypePriceFilter) {
					tradeLimits.MinPrice, _ = strconv.ParseFloat(filter["minPrice"].(string), 64)
					tradeLimits.MaxPrice, _ = strconv.ParseFloat(filter["maxPrice"].(string), 64)
					tradeLimits.TickSize, _ = strconv.ParseFloat(filter["tickSize"].(string), 64)
				}
			}
		}
		exchange.assetsInfo[info.Symbol] = tradeLimits
	}
	exchange.startedAt = time.Now()

	utils.Log.Infof("[SETUP] Using Binance Futures exchange (%d account(s))", len(exchange.clients))
	return exchange, nil
}

func (b *BinanceFuture) clientFor(accountID int64) (*futures.Client, error) {
	client, ok := b.clients[accountID]
	if !ok {
		return nil, fmt.Errorf("no credentials for account %d", accountID)
	}
	return client, nil
}

func (b *BinanceFuture) AccountBalance(ctx context.Context, accountID int64) (float64, error) {
	b.balanceMu.Lock()
	if entry, ok := b.balances[accountID]; ok && time.Since(entry.fetchedAt) < b.BalanceTTL {
		b.balanceMu.Unlock()
		return entry.value, nil
	}
	b.balanceMu.Unlock()

	client, err := b.clientFor(accountID)
	if err != nil {
		return 0, err
	}
	balances, err := client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, Classify(err)
	}
	for _, balance := range balances {
		if balance.Asset != quoteAsset {
			continue
		}
		value, err := strconv.ParseFloat(balance.AvailableBalance, 64)
		if err != nil {
			return 0, err
		}
		b.balanceMu.Lock()
		b.balances[accountID] = balanceEntry{value: value, fetchedAt: time.Now()}
		b.balanceMu.Unlock()
		return value, nil
	}
	return 0, fmt.Errorf("no %s balance for account %d", quoteAsset, accountID)
}

func (b *BinanceFuture) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	client, err := b.clientFor(anyAccount(b.clients))
	if err != nil {
		return 0, err
	}
	indexes, err := client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, Classify(err)
	}
	if len(indexes) == 0 {
		return 0, fmt.Errorf("no mark price for %s", symbol)
	}
	return strconv.ParseFloat(indexes[0].MarkPrice, 64)
}

func anyAccount(clients map[int64]*futures.Client) int64 {
	for id := range clients {
		return id
	}
	return 0
}

func (b *BinanceFuture) AssetsInfo(symbol string) (model.AssetInfo, error) {
	info, ok := b.assetsInfo[symbol]
	if !ok {
		return model.AssetInfo{}, ErrInvalidAsset
	}
	return info, nil
}

func (b *BinanceFuture) SetLeverage(ctx context.Context, accountID int64, symbol string, leverage int) error {
	client, err := b.clientFor(accountID)
	if err != nil {
		return err
	}
	_, err = client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return Classify(err)
	}
	return nil
}

func (b *BinanceFuture) validate(symbol string, quantity float64) error {
	info, ok := b.assetsInfo[symbol]
	if !ok {
		return ErrInvalidAsset
	}
	if quantity > info.MaxQuantity || quantity < info.MinQuantity {
		return fmt.Errorf("%w: min: %f max: %f, current: %f",
			ErrInvalidQuantity, info.MinQuantity, info.MaxQuantity, quantity)
	}
	return nil
}

func (b *BinanceFuture) formatPrice(symbol string, value float64) string {
	if info, ok := b.assetsInfo[symbol]; ok {
		value = common.AmountToLotSize(info.TickSize, info.QuotePrecision, value)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func (b *BinanceFuture) formatQuantity(symbol string, value float64) string {
	if info, ok := b.assetsInfo[symbol]; ok {
		value = common.AmountToLotSize(info.StepSize, info.BaseAssetPrecision, value)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SubmitOrder places the sized order on the follower account and returns the
// exchange order id. Errors come back classified.
func (b *BinanceFuture) SubmitOrder(ctx context.Context, accountID int64, order model.OrderRequest) (string, error) {
	client, err := b.clientFor(accountID)
	if err != nil {
		return "", err
	}
	if err := b.validate(order.Symbol, order.Quantity); err != nil {
		return "", err
	}

	service := client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(futures.SideType(order.Side)).
		Quantity(b.formatQuantity(order.Symbol, order.Quantity))

	switch order.Type {
	case model.OrderTypeMarket:
		service = service.
			Type(futures.OrderTypeMarket).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	case model.OrderTypeStopMarket:
		service = service.
			Type(futures.OrderTypeStopMarket).
			WorkingType(futures.WorkingTypeMarkPrice).
			StopPrice(b.formatPrice(order.Symbol, order.Price))
	default:
		service = service.
			Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(b.formatPrice(order.Symbol, order.Price))
	}

	response, err := service.Do(ctx)
	if err != nil {
		return "", Classify(err)
	}
	return strconv.FormatInt(response.OrderID, 10), nil
}

func (b *BinanceFuture) OrderStatus(ctx context.Context, accountID int64, symbol, orderID string) (model.OrderStatusType, error) {
	client, err := b.clientFor(accountID)
	if err != nil {
		return "", err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	order, err := client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return "", Classify(err)
	}
	return model.OrderStatusType(order.Status), nil
}

// MasterEventsSubscription streams the master's new orders over the user
// data stream, reconnecting with backoff. Orders that predate the gateway's
// start are dropped so a restart never replays history.
func (b *BinanceFuture) MasterEventsSubscription(ctx context.Context, masterAccountID int64) (chan model.MasterTradeEvent, chan error) {
	events := make(chan model.MasterTradeEvent)
	errs := make(chan error)

	go func() {
		defer close(events)
		defer close(errs)

		client, err := b.clientFor(masterAccountID)
		if err != nil {
			errs <- err
			return
		}

		ba := &backoff.Backoff{
			Min: 100 * time.Millisecond,
			Max: 30 * time.Second,
		}
		for {
			if ctx.Err() != nil {
				return
			}

			listenKey, err := client.NewStartUserStreamService().Do(ctx)
			if err != nil {
				b.reportAndWait(ctx, errs, ba, masterAccountID, err)
				continue
			}
			keepaliveDone := make(chan struct{})
			go b.keepalive(ctx, client, listenKey, keepaliveDone)

			doneC, stopC, err := futures.WsUserDataServe(listenKey, func(event *futures.WsUserDataEvent) {
				ba.Reset()
				trade, ok := b.masterTradeFromUpdate(masterAccountID, event)
				if !ok {
					return
				}
				select {
				case events <- trade:
				case <-ctx.Done():
				}
			}, func(err error) {
				select {
				case errs <- Classify(err):
				default:
				}
			})
			if err != nil {
				close(keepaliveDone)
				b.reportAndWait(ctx, errs, ba, masterAccountID, err)
				continue
			}

			select {
			case <-ctx.Done():
				close(stopC)
				close(keepaliveDone)
				return
			case <-doneC:
				close(keepaliveDone)
				utils.Log.Warnf("[EXCHANGE] master %d stream closed, reconnecting", masterAccountID)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(ba.Duration()):
			}
		}
	}()

	return events, errs
}

// masterTradeFromUpdate filters the raw user-data event down to newly placed
// orders created after startup.
func (b *BinanceFuture) masterTradeFromUpdate(masterAccountID int64, event *futures.WsUserDataEvent) (model.MasterTradeEvent, bool) {
	if event.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return model.MasterTradeEvent{}, false
	}
	update := event.OrderTradeUpdate
	if update.Status != futures.OrderStatusTypeNew {
		return model.MasterTradeEvent{}, false
	}
	eventTime := time.Unix(0, event.Time*int64(time.Millisecond))
	if eventTime.Before(b.startedAt) {
		return model.MasterTradeEvent{}, false
	}

	quantity, err := strconv.ParseFloat(update.OriginalQty, 64)
	if err != nil {
		utils.Log.Warn(err)
	}
	price, err := strconv.ParseFloat(update.OriginalPrice, 64)
	if err != nil {
		utils.Log.Warn(err)
	}
	return model.MasterTradeEvent{
		MasterAccountID: masterAccountID,
		OrderID:         strconv.FormatInt(update.ID, 10),
		Symbol:          update.Symbol,
		Side:            model.SideType(update.Side),
		Type:            model.OrderType(update.Type),
		Quantity:        quantity,
		Price:           price,
		Time:            eventTime,
	}, true
}

func (b *BinanceFuture) reportAndWait(ctx context.Context, errs chan error, ba *backoff.Backoff, masterAccountID int64, err error) {
	utils.Log.Errorf("[EXCHANGE] master %d stream: %v", masterAccountID, err)
	select {
	case errs <- Classify(err):
	default:
	}
	select {
	case <-ctx.Done():
	case <-time.After(ba.Duration()):
	}
}

// listen keys expire after an hour without a keepalive
func (b *BinanceFuture) keepalive(ctx context.Context, client *futures.Client, listenKey string, done chan struct{}) {
	ticker := time.NewTicker(25 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				utils.Log.Warnf("[EXCHANGE] keepalive: %v", err)
			}
		}
	}
}
