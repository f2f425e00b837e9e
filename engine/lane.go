package engine

import (
	"copytrader/model"
)

// task carries everything a lane worker needs so it never re-reads config
// mid-flight.
type task struct {
	job      *model.CopyJob
	event    model.MasterTradeEvent
	follower model.Account
	config   model.CopyTradingConfig
}

// lane is the per-follower dispatch queue. Workers are bounded per lane, so
// one slow follower never starves the others.
type lane struct {
	followerID int64
	tasks      chan task
}

func newLane(followerID int64, buffer int) *lane {
	return &lane{
		followerID: followerID,
		tasks:      make(chan task, buffer),
	}
}
