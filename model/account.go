package model

import (
	"time"
)

type AccountRole string

var (
	AccountRoleMaster   AccountRole = "master"
	AccountRoleFollower AccountRole = "follower"
)

// Account is the engine's read-only view of a brokerage account. Rows are
// owned by the config layer; the engine only refreshes the cached balance.
type Account struct {
	ID               int64       `db:"id" json:"id" gorm:"primary_key;autoIncrement"`
	Name             string      `db:"name" json:"name"`
	Role             AccountRole `db:"role" json:"role" validate:"required,oneof=master follower"`
	Leverage         int         `db:"leverage" json:"leverage" validate:"gte=1"`
	RiskPercentage   float64     `db:"risk_percentage" json:"risk_percentage" validate:"gt=0,lte=100"`
	Balance          float64     `db:"balance" json:"balance"`
	BalanceUpdatedAt time.Time   `db:"balance_updated_at" json:"balance_updated_at"`
	CredentialRef    string      `db:"credential_ref" json:"credential_ref"`
	Active           bool        `db:"active" json:"active"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

func (a Account) IsMaster() bool {
	return a.Role == AccountRoleMaster
}

// CopyTradingConfig links one master account to one follower account.
// At most one active row may exist per (master, follower) pair.
type CopyTradingConfig struct {
	ID                int64     `db:"id" json:"id" gorm:"primary_key;autoIncrement"`
	MasterAccountID   int64     `db:"master_account_id" json:"master_account_id" validate:"required,nefield=FollowerAccountID"`
	FollowerAccountID int64     `db:"follower_account_id" json:"follower_account_id" validate:"required"`
	CopyPercentage    float64   `db:"copy_percentage" json:"copy_percentage" validate:"gt=0,lte=100"`
	RiskMultiplier    float64   `db:"risk_multiplier" json:"risk_multiplier" validate:"gte=0"`
	MaxRiskPercentage float64   `db:"max_risk_percentage" json:"max_risk_percentage" validate:"gte=0,lte=100"`
	Enabled           bool      `db:"enabled" json:"enabled"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
