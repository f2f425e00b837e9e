package model

type TelegramSettings struct {
	Enabled bool
	Token   string
	Users   []int
}

// Settings groups the static process configuration handed to the bot.
type Settings struct {
	Telegram TelegramSettings
}
