package engine

import (
	"context"
	"fmt"

	"copytrader/model"
	"copytrader/reference"
	"copytrader/utils/calc"
)

// Sizing is the outcome of position sizing for one follower.
type Sizing struct {
	Quantity float64
	Leverage int
	Price    float64
	Notional float64
	Balance  float64
}

type Sizer struct {
	gateway     reference.Gateway
	maxLeverage int
}

func NewSizer(gateway reference.Gateway, maxLeverage int) *Sizer {
	return &Sizer{gateway: gateway, maxLeverage: maxLeverage}
}

// Size computes the follower quantity:
//
//	balance × riskPct/100 × riskMultiplier × copyPct/100 / (leverage × price)
//
// where leverage is the follower's configured leverage capped at the engine
// maximum. The capped value is the one used in the formula and the one the
// order carries. The result is snapped down to the symbol's lot step.
func (s *Sizer) Size(
	ctx context.Context,
	event model.MasterTradeEvent,
	follower model.Account,
	config model.CopyTradingConfig,
) (Sizing, error) {
	price := event.Price
	if event.Type == model.OrderTypeMarket {
		markPrice, err := s.gateway.MarkPrice(ctx, event.Symbol)
		if err != nil {
			return Sizing{}, &SizingError{Reason: "mark price unavailable", Err: err}
		}
		price = markPrice
	}
	if price <= 0 {
		return Sizing{}, &SizingError{Reason: fmt.Sprintf("no positive price for %s", event.Symbol)}
	}

	balance, err := s.gateway.AccountBalance(ctx, follower.ID)
	if err != nil {
		return Sizing{}, &SizingError{Reason: "balance unavailable", Err: err}
	}
	if balance <= 0 {
		return Sizing{}, &SizingError{Reason: fmt.Sprintf("account %d has no balance", follower.ID)}
	}

	leverage := calc.MinInt(follower.Leverage, s.maxLeverage)
	if leverage < 1 {
		leverage = 1
	}

	asset, err := s.gateway.AssetsInfo(event.Symbol)
	if err != nil {
		return Sizing{}, &SizingError{Reason: fmt.Sprintf("unknown symbol %s", event.Symbol), Err: err}
	}

	fraction := follower.RiskPercentage / 100 * config.RiskMultiplier * config.CopyPercentage / 100
	raw := balance * fraction / (float64(leverage) * price)
	quantity := calc.RoundToStep(raw, asset.StepSize, asset.BaseAssetPrecision)
	if quantity <= 0 {
		return Sizing{}, &SizingError{
			Reason: fmt.Sprintf("quantity %.10f rounds to zero (step %v)", raw, asset.StepSize),
		}
	}

	return Sizing{
		Quantity: quantity,
		Leverage: leverage,
		Price:    price,
		Notional: calc.Notional(quantity, price),
		Balance:  balance,
	}, nil
}
