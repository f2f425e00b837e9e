//go:generate go run github.com/vektra/mockery/v2 --all --with-expecter --output=../testdata/mocks

package reference

import (
	"context"

	"copytrader/model"
)

// Gateway is the engine's only view of the exchange. Every blocking call
// takes a context; AssetsInfo is served from metadata cached at startup and
// never touches the network.
type Gateway interface {
	AccountBalance(ctx context.Context, accountID int64) (float64, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	AssetsInfo(symbol string) (model.AssetInfo, error)
	SetLeverage(ctx context.Context, accountID int64, symbol string, leverage int) error
	SubmitOrder(ctx context.Context, accountID int64, order model.OrderRequest) (string, error)
	OrderStatus(ctx context.Context, accountID int64, symbol, orderID string) (model.OrderStatusType, error)
	MasterEventsSubscription(ctx context.Context, masterAccountID int64) (chan model.MasterTradeEvent, chan error)
}
