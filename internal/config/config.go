package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel   string    `yaml:"log-level" env-default:"info"`
	HTTPPort   string    `yaml:"http-port" env-default:"9090"`
	SocketPort string    `yaml:"socket-port" env-default:"8080"`
	Discovery  Discovery `yaml:"discovery"`
}

type Discovery struct {
	Enabled  bool          `yaml:"enabled" env-default:"false"`
	Group    string        `yaml:"group" env-default:"239.255.71.78:9753"`
	Interval time.Duration `yaml:"interval" env-default:"2s"`
	Identity string        `yaml:"identity" env-default:""`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}
