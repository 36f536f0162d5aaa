package configuration

import (
	"os"
	"time"

	"github.com/markusressel/tachmon/internal/ui"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Configuration struct {
	DbPath       string `json:"dbPath"`
	SnapshotPath string `json:"snapshotPath"`

	TachPollingRate       time.Duration `json:"tachPollingRate"`
	TachRollingWindowSize int           `json:"tachRollingWindowSize"`
	PowerPollingRate      time.Duration `json:"powerPollingRate"`

	NumFansNonFuncForCritical int `json:"numFansNonFuncForCritical"`

	Statistics StatisticsConfig `json:"statistics"`
	Api        ApiConfig        `json:"api"`
	Power      PowerConfig      `json:"power"`

	Fans []FanConfig `json:"fans"`
}

type StatisticsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

type ApiConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type PowerConfig struct {
	File *FilePowerConfig `json:"file,omitempty"`
}

type FilePowerConfig struct {
	Path string `json:"path"`
}

var CurrentConfig Configuration

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	viper.SetConfigName("tachmon")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			ui.Error("Couldn't detect home directory: %v", err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.AddConfigPath("/etc/tachmon/")
	}

	viper.AutomaticEnv() // read in environment variables that match

	setDefaultValues()
}

func setDefaultValues() {
	viper.SetDefault("dbpath", "/etc/tachmon/tachmon.db")
	viper.SetDefault("snapshotpath", "")
	viper.SetDefault("TachPollingRate", 1*time.Second)
	viper.SetDefault("TachRollingWindowSize", 10)
	viper.SetDefault("PowerPollingRate", 1*time.Second)
	viper.SetDefault("NumFansNonFuncForCritical", 2)

	viper.SetDefault("statistics.enabled", false)
	viper.SetDefault("statistics.port", 9000)
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.host", "localhost")
	viper.SetDefault("api.port", 9001)

	viper.SetDefault("fans", []FanConfig{})
}

// DetectConfigFile returns the path of the configuration file
// that will be used for loading
func DetectConfigFile() string {
	return viper.ConfigFileUsed()
}

// DetectAndReadConfigFile detects the path of the first existing config file,
// reads it and returns its path
func DetectAndReadConfigFile() string {
	readInConfig()
	return DetectConfigFile()
}

// readInConfig reads and parses the config file
func readInConfig() {
	if err := viper.ReadInConfig(); err != nil {
		// config file is required, so we fail here
		ui.Fatal("Error reading config file, %s", err)
	}
}

// LoadConfig parses the config file into the CurrentConfig struct
func LoadConfig() {
	err := viper.Unmarshal(
		&CurrentConfig,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			MethodValueHookFunc(),
		)),
	)
	if err != nil {
		ui.Fatal("unable to decode into struct, %v", err)
	}
}
