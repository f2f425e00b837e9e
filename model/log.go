package model

import "time"

// SystemLog is a bounded audit trail of notable engine events, mainly
// terminal job transitions. The storage layer prunes old rows.
type SystemLog struct {
	ID        int64     `db:"id" json:"id" gorm:"primary_key;autoIncrement"`
	Level     string    `db:"level" json:"level"`
	AccountID int64     `db:"account_id" json:"account_id"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
