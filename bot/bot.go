package bot

import (
	"context"

	"github.com/jonboulle/clockwork"

	"copytrader/engine"
	"copytrader/model"
	"copytrader/notification"
	"copytrader/reference"
	"copytrader/storage"
	"copytrader/utils"
)

// CopyTrader assembles gateway, config source, storage, dispatcher and the
// optional Telegram notifier into one runnable unit.
type CopyTrader struct {
	settings model.Settings
	gateway  reference.Gateway
	configs  reference.ConfigSource
	storage  storage.Storage
	notifier reference.Notifier
	telegram reference.Telegram
	clock    clockwork.Clock

	dispatcher *engine.Dispatcher
}

type Option func(*CopyTrader)

// WithStorage sets the job store, by default an in-memory one.
func WithStorage(storage storage.Storage) Option {
	return func(bot *CopyTrader) {
		bot.storage = storage
	}
}

// WithNotifier registers a notifier for terminal job events.
func WithNotifier(notifier reference.Notifier) Option {
	return func(bot *CopyTrader) {
		bot.notifier = notifier
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(bot *CopyTrader) {
		bot.clock = clock
	}
}

func NewCopyTrader(
	settings model.Settings,
	engineSettings engine.Settings,
	gateway reference.Gateway,
	configs reference.ConfigSource,
	options ...Option,
) (*CopyTrader, error) {
	bot := &CopyTrader{
		settings: settings,
		gateway:  gateway,
		configs:  configs,
		clock:    clockwork.NewRealClock(),
	}
	for _, option := range options {
		option(bot)
	}

	if bot.storage == nil {
		memory, err := storage.FromMemory()
		if err != nil {
			return nil, err
		}
		bot.storage = memory
	}

	dispatcherOptions := []engine.DispatcherOption{engine.WithClock(bot.clock)}
	if bot.notifier != nil {
		dispatcherOptions = append(dispatcherOptions, engine.WithNotifier(bot.notifier))
	}
	bot.dispatcher = engine.NewDispatcher(gateway, configs, bot.storage, engineSettings, dispatcherOptions...)

	if settings.Telegram.Enabled {
		telegram, err := notification.NewTelegram(bot.dispatcher, settings)
		if err != nil {
			return nil, err
		}
		bot.telegram = telegram
		if bot.notifier == nil {
			bot.notifier = telegram
			bot.dispatcher.SetNotifier(telegram)
		}
	}

	return bot, nil
}

// Run starts the engine and blocks until the context is cancelled, then
// drains and prints the final summary.
func (c *CopyTrader) Run(ctx context.Context) error {
	if c.telegram != nil {
		c.telegram.Start()
	}
	if err := c.dispatcher.Start(ctx); err != nil {
		return err
	}
	utils.Log.Info("[SETUP] copy trader running")

	<-ctx.Done()
	err := c.dispatcher.Stop(context.Background())
	utils.Log.Info("\n" + c.dispatcher.Summary())
	return err
}

func (c *CopyTrader) Status() model.SystemStatus {
	return c.dispatcher.Status()
}

func (c *CopyTrader) ListCopyJobs(filters ...storage.JobFilter) ([]*model.CopyJob, error) {
	return c.dispatcher.ListCopyJobs(filters...)
}
