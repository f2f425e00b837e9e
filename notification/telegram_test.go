package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tb "gopkg.in/tucnak/telebot.v2"
)

func TestAllowedUserMatchesConfiguredIDs(t *testing.T) {
	users := []int{10, 9000000000}

	assert.True(t, allowedUser(users, 10))
	assert.True(t, allowedUser(users, 9000000000))
	assert.False(t, allowedUser(users, 11))
	assert.False(t, allowedUser(nil, 10))
}

func TestNotifyRecipientCarriesTelegramID(t *testing.T) {
	recipient := &tb.User{ID: int64(9000000000)}
	assert.Equal(t, "9000000000", recipient.Recipient())
}
