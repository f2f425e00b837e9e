package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrader/model"
)

func TestGuardPassesValidOrder(t *testing.T) {
	guard := NewGuard(newFakeGateway(), 20, 0.5, nil)
	sizing := Sizing{Quantity: 0.01, Leverage: 10, Price: 50000, Notional: 500, Balance: 10000}
	event := model.MasterTradeEvent{Symbol: "BTCUSDT"}

	assert.NoError(t, guard.Check(sizing, event, model.CopyTradingConfig{}))
}

func TestGuardChecksInOrder(t *testing.T) {
	gateway := newFakeGateway()
	guard := NewGuard(gateway, 20, 0.5, nil)
	event := model.MasterTradeEvent{Symbol: "BTCUSDT"}

	var rejected *RiskRejected

	// leverage first, even when quantity is also bad
	err := guard.Check(Sizing{Quantity: 0, Leverage: 25}, event, model.CopyTradingConfig{})
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "leverage")

	// then quantity bounds
	err = guard.Check(Sizing{Quantity: 0.00001, Leverage: 10, Balance: 1000}, event, model.CopyTradingConfig{})
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "below symbol minimum")

	err = guard.Check(Sizing{Quantity: 5000, Leverage: 10, Balance: 1000}, event, model.CopyTradingConfig{})
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "above symbol maximum")

	// then tradability
	gateway.assets["DEADUSDT"] = model.AssetInfo{StepSize: 0.001, MinQuantity: 0.001, MaxQuantity: 100, Tradable: false}
	err = guard.Check(Sizing{Quantity: 0.01, Leverage: 10, Balance: 1000},
		model.MasterTradeEvent{Symbol: "DEADUSDT"}, model.CopyTradingConfig{})
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "not tradable")

	// then notional cap
	err = guard.Check(Sizing{Quantity: 0.02, Leverage: 10, Price: 50000, Notional: 1000, Balance: 1000},
		event, model.CopyTradingConfig{})
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "notional")
}

func TestGuardSymbolAllowlist(t *testing.T) {
	guard := NewGuard(newFakeGateway(), 20, 0.5, []string{"ETHUSDT"})
	sizing := Sizing{Quantity: 0.01, Leverage: 10, Notional: 10, Balance: 1000}

	var rejected *RiskRejected
	err := guard.Check(sizing, model.MasterTradeEvent{Symbol: "BTCUSDT"}, model.CopyTradingConfig{})
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "allowlist")

	assert.NoError(t, guard.Check(Sizing{Quantity: 0.01, Leverage: 10, Notional: 10, Balance: 1000},
		model.MasterTradeEvent{Symbol: "ETHUSDT"}, model.CopyTradingConfig{}))
}

func TestGuardPerConfigMaxRisk(t *testing.T) {
	guard := NewGuard(newFakeGateway(), 20, 0.5, nil)
	event := model.MasterTradeEvent{Symbol: "BTCUSDT"}
	sizing := Sizing{Quantity: 0.01, Leverage: 10, Notional: 400, Balance: 1000}

	// engine default 50% allows 400 of 1000
	assert.NoError(t, guard.Check(sizing, event, model.CopyTradingConfig{}))

	// a tighter per-config cap wins
	var rejected *RiskRejected
	err := guard.Check(sizing, event, model.CopyTradingConfig{MaxRiskPercentage: 30})
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "notional")
}
