package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gorm.io/gorm"

	"copytrader/bot"
	"copytrader/engine"
	"copytrader/exchange"
	"copytrader/model"
	"copytrader/storage"
	"copytrader/utils"
	utilslog "copytrader/utils/log"
)

type accountConfig struct {
	ID             int64
	Name           string
	Role           string
	Leverage       int
	RiskPercentage float64 `mapstructure:"riskPercentage"`
	APIKey         string  `mapstructure:"apiKey"`
	APISecret      string  `mapstructure:"apiSecret"`
	APIKeyType     string  `mapstructure:"apiKeyType"`
	Active         bool
}

type copyConfig struct {
	Master            int64
	Follower          int64
	CopyPercentage    float64 `mapstructure:"copyPercentage"`
	RiskMultiplier    float64 `mapstructure:"riskMultiplier"`
	MaxRiskPercentage float64 `mapstructure:"maxRiskPercentage"`
	Enabled           bool
}

func main() {
	app := &cli.App{
		Name:     "copytrader",
		HelpName: "copytrader",
		Usage:    "Mirror master account trades to follower accounts",
		Commands: []*cli.Command{
			{
				Name:     "run",
				HelpName: "run",
				Usage:    "Start the copy engine",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "eg. ./copytrader.db",
						Value:   "copytrader.db",
					},
				},
				Action: run,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var accounts []accountConfig
	if err := viper.UnmarshalKey("accounts", &accounts); err != nil {
		return err
	}
	var copies []copyConfig
	if err := viper.UnmarshalKey("copies", &copies); err != nil {
		return err
	}

	store, err := storage.FromSQL(
		sqlite.Open(c.String("db")),
		&gorm.Config{Logger: utilslog.NewGormLogger(utils.Log)},
	)
	if err != nil {
		return err
	}

	gatewayOptions := make([]exchange.BinanceFutureOption, 0)
	if viper.GetBool("api.testnet") {
		gatewayOptions = append(gatewayOptions, exchange.WithBinanceFutureTestnet())
	}
	if viper.GetBool("api.debug") {
		gatewayOptions = append(gatewayOptions, exchange.WithBinanceFutureDebugMode())
	}
	if viper.GetBool("proxy.status") {
		gatewayOptions = append(gatewayOptions, exchange.WithBinanceFutureProxy(viper.GetString("proxy.url")))
	}
	if ttl := duration("engine.balanceTTL"); ttl > 0 {
		gatewayOptions = append(gatewayOptions, exchange.WithBalanceTTL(ttl))
	}

	for _, account := range accounts {
		if err := store.UpsertAccount(model.Account{
			ID:             account.ID,
			Name:           account.Name,
			Role:           model.AccountRole(account.Role),
			Leverage:       account.Leverage,
			RiskPercentage: account.RiskPercentage,
			CredentialRef:  account.Name,
			Active:         account.Active,
		}); err != nil {
			return err
		}
		gatewayOptions = append(gatewayOptions,
			exchange.WithAccountCredentials(account.ID, account.APIKey, account.APISecret, account.APIKeyType))
	}
	for _, link := range copies {
		if err := store.UpsertConfig(model.CopyTradingConfig{
			MasterAccountID:   link.Master,
			FollowerAccountID: link.Follower,
			CopyPercentage:    link.CopyPercentage,
			RiskMultiplier:    link.RiskMultiplier,
			MaxRiskPercentage: link.MaxRiskPercentage,
			Enabled:           link.Enabled,
		}); err != nil {
			return err
		}
	}

	gateway, err := exchange.NewBinanceFuture(ctx, gatewayOptions...)
	if err != nil {
		return err
	}

	engineSettings := engine.Settings{
		MaxLeverage:         viper.GetInt("engine.maxLeverage"),
		MaxAttempts:         viper.GetInt("engine.maxAttempts"),
		LaneConcurrency:     viper.GetInt("engine.laneConcurrency"),
		LaneBuffer:          viper.GetInt("engine.laneBuffer"),
		BreakerThreshold:    viper.GetInt("engine.breakerThreshold"),
		DedupWindow:         viper.GetInt("engine.dedupWindow"),
		MaxNotionalFraction: viper.GetFloat64("engine.maxNotionalFraction"),
		Symbols:             viper.GetStringSlice("engine.symbols"),
		BackoffBase:         duration("engine.backoffBase"),
		BackoffCap:          duration("engine.backoffCap"),
		BreakerCooldown:     duration("engine.breakerCooldown"),
		CallTimeout:         duration("engine.callTimeout"),
		ConfirmTimeout:      duration("engine.confirmTimeout"),
		ConfirmPoll:         duration("engine.confirmPoll"),
		DrainTimeout:        duration("engine.drainTimeout"),
	}

	settings := model.Settings{
		Telegram: model.TelegramSettings{
			Enabled: viper.GetBool("telegram.enabled"),
			Token:   viper.GetString("telegram.token"),
			Users:   viper.GetIntSlice("telegram.users"),
		},
	}

	trader, err := bot.NewCopyTrader(settings, engineSettings, gateway, store, bot.WithStorage(store))
	if err != nil {
		return err
	}
	return trader.Run(ctx)
}

// duration reads a human form like "500ms" or "1m30s"; unset keys fall back
// to the engine defaults.
func duration(key string) time.Duration {
	value := viper.GetString(key)
	if value == "" {
		return 0
	}
	parsed, err := str2duration.ParseDuration(value)
	if err != nil {
		utils.Log.Warnf("bad duration %s=%q: %v", key, value, err)
		return 0
	}
	return parsed
}
