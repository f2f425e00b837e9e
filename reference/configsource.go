package reference

import "copytrader/model"

// ConfigSource supplies account rows and copy configs. Implementations must
// return copies; the engine snapshots them at dispatch time.
type ConfigSource interface {
	Account(accountID int64) (model.Account, error)
	MasterAccounts() ([]model.Account, error)
	ActiveConfigs(masterAccountID int64) ([]model.CopyTradingConfig, error)
}
