package utils

import (
	"copytrader/tools/config"
	"copytrader/utils/log"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	config.LoadConf()
	Log = log.InitLogger()
}
