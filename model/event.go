package model

import (
	"fmt"
	"time"
)

type SideType string
type OrderType string
type OrderStatusType string

var (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"

	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"

	OrderStatusTypeNew             OrderStatusType = "NEW"
	OrderStatusTypePartiallyFilled OrderStatusType = "PARTIALLY_FILLED"
	OrderStatusTypeFilled          OrderStatusType = "FILLED"
	OrderStatusTypeCanceled        OrderStatusType = "CANCELED"
	OrderStatusTypeRejected        OrderStatusType = "REJECTED"
	OrderStatusTypeExpired         OrderStatusType = "EXPIRED"
)

// MasterTradeEvent is one observed order on a master account. Immutable once
// emitted; OrderID is unique per master, which is what duplicate delivery
// detection relies on.
type MasterTradeEvent struct {
	MasterAccountID int64
	OrderID         string
	Symbol          string
	Side            SideType
	Type            OrderType
	Quantity        float64
	Price           float64 // zero for market orders
	Leverage        int
	Time            time.Time
}

// Key identifies the event across all masters.
func (e MasterTradeEvent) Key() string {
	return fmt.Sprintf("%d:%s", e.MasterAccountID, e.OrderID)
}

func (e MasterTradeEvent) String() string {
	return fmt.Sprintf("[EVENT] master=%d %s %s %s %f x $%f (order %s)",
		e.MasterAccountID, e.Side, e.Type, e.Symbol, e.Quantity, e.Price, e.OrderID)
}

// OrderRequest is what the engine hands to the gateway for submission.
type OrderRequest struct {
	Symbol   string
	Side     SideType
	Type     OrderType
	Quantity float64
	Price    float64 // zero for market orders
	Leverage int
}

// AssetInfo carries per-symbol trading limits from exchange metadata.
type AssetInfo struct {
	BaseAsset          string
	QuoteAsset         string
	BaseAssetPrecision int
	QuotePrecision     int

	StepSize    float64
	TickSize    float64
	MinQuantity float64
	MaxQuantity float64
	MinPrice    float64
	MaxPrice    float64
	Tradable    bool
}
