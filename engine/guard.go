package engine

import (
	"fmt"

	"github.com/samber/lo"

	"copytrader/model"
	"copytrader/reference"
)

// Guard runs the pre-submission risk checks in a fixed order and reports the
// first failure. It only reads cached symbol metadata, never the network, so
// a rejection can never be caused by a transient outage.
type Guard struct {
	gateway             reference.Gateway
	maxLeverage         int
	maxNotionalFraction float64
	symbols             []string
}

func NewGuard(gateway reference.Gateway, maxLeverage int, maxNotionalFraction float64, symbols []string) *Guard {
	return &Guard{
		gateway:             gateway,
		maxLeverage:         maxLeverage,
		maxNotionalFraction: maxNotionalFraction,
		symbols:             symbols,
	}
}

func (g *Guard) Check(sizing Sizing, event model.MasterTradeEvent, config model.CopyTradingConfig) error {
	if sizing.Leverage > g.maxLeverage {
		return &RiskRejected{
			Reason: fmt.Sprintf("leverage %d exceeds maximum %d", sizing.Leverage, g.maxLeverage),
		}
	}

	asset, err := g.gateway.AssetsInfo(event.Symbol)
	if err != nil {
		return &RiskRejected{Reason: fmt.Sprintf("no metadata for symbol %s", event.Symbol)}
	}
	if asset.MinQuantity > 0 && sizing.Quantity < asset.MinQuantity {
		return &RiskRejected{
			Reason: fmt.Sprintf("quantity %v below symbol minimum %v", sizing.Quantity, asset.MinQuantity),
		}
	}
	if asset.MaxQuantity > 0 && sizing.Quantity > asset.MaxQuantity {
		return &RiskRejected{
			Reason: fmt.Sprintf("quantity %v above symbol maximum %v", sizing.Quantity, asset.MaxQuantity),
		}
	}

	if !asset.Tradable {
		return &RiskRejected{Reason: fmt.Sprintf("symbol %s not tradable", event.Symbol)}
	}
	if len(g.symbols) > 0 && !lo.Contains(g.symbols, event.Symbol) {
		return &RiskRejected{Reason: fmt.Sprintf("symbol %s not in allowlist", event.Symbol)}
	}

	maxFraction := g.maxNotionalFraction
	if config.MaxRiskPercentage > 0 {
		maxFraction = config.MaxRiskPercentage / 100
	}
	if limit := sizing.Balance * maxFraction; sizing.Notional > limit {
		return &RiskRejected{
			Reason: fmt.Sprintf("notional %.2f exceeds %.2f (%.0f%% of balance %.2f)",
				sizing.Notional, limit, maxFraction*100, sizing.Balance),
		}
	}
	return nil
}
