package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var configPath = "./configs/"
var envConfigPath = "./.env"

func init() {
	LoadConf()
}

// LoadConf merges every file under ./configs/ into the global viper, then
// layers .env and process environment variables on top.
func LoadConf() {
	if err := mergeConfigDir(); err != nil {
		log.Fatalln("loading config files failed:", err.Error())
	}
	if err := mergeEnv(); err != nil {
		log.Fatalln("loading environment failed:", err.Error())
	}
}

func mergeConfigDir() error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil
	}
	exist, _ := pathExists(absPath)
	if !exist {
		return nil
	}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].IsDir() {
			continue
		}
		viper.SetConfigFile(filepath.Join(absPath, entries[i].Name()))
		if err := viper.MergeInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func mergeEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envViper := viper.New()
	absPath, err := filepath.Abs(envConfigPath)
	if err != nil {
		return nil
	}
	exist, _ := pathExists(absPath)
	if exist {
		envViper.SetConfigFile(absPath)
		if err := envViper.ReadInConfig(); err != nil {
			return err
		}
	}
	for _, key := range envViper.AllKeys() {
		viper.Set(strings.Replace(key, "_", ".", 1), envViper.Get(key))
	}
	return nil
}

// WatchConfig enables hot-reload of config files while the engine runs.
func WatchConfig() {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		logrus.Printf("config file updated: %s\n", e.Name)
	})
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
