// Package config loads the YAML configuration shared by the server and the
// classify CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

// Config aggregates runtime settings.
type Config struct {
	Model      ModelConfig    `yaml:"model"`
	Classifier model.Options  `yaml:"classifier"`
	Server     ServerConfig   `yaml:"server"`
	Actuator   ActuatorConfig `yaml:"actuator"`
	Log        LogConfig      `yaml:"log"`
}

// ModelConfig locates the model and selects the inference backend.
type ModelConfig struct {
	Path       string `yaml:"path"`
	Labels     string `yaml:"labels"`
	Backend    string `yaml:"backend"`
	ORTLibrary string `yaml:"ort_library"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// ActuatorConfig selects where top predictions are sent.
type ActuatorConfig struct {
	// Kind is "log" or "redis".
	Kind         string         `yaml:"kind"`
	Angles       map[string]int `yaml:"angles"`
	DefaultAngle int            `yaml:"default_angle"`
	Redis        RedisConfig    `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{Classifier: model.DefaultOptions()}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads path. A missing file yields Default. The PORT environment
// variable overrides server.port.
func Load(path string) (Config, error) {
	cfg := Config{Classifier: model.DefaultOptions()}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logrus.WithField("path", path).Warn("config file not found, using defaults")
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// ApplyDefaults populates zero values.
func (c *Config) ApplyDefaults() {
	if c.Model.Path == "" {
		c.Model.Path = "models/model.tflite"
	}
	if c.Model.Labels == "" {
		c.Model.Labels = "models/labels.txt"
	}
	if c.Model.Backend == "" {
		c.Model.Backend = backendFor(c.Model.Path)
	}
	if c.Classifier.NumThreads == 0 {
		c.Classifier.NumThreads = 1
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Actuator.Kind == "" {
		c.Actuator.Kind = "log"
	}
	if c.Actuator.Angles == nil {
		c.Actuator.Angles = map[string]int{"soda_cans": 0, "water_bottle": 90}
		if c.Actuator.DefaultAngle == 0 {
			c.Actuator.DefaultAngle = 50
		}
	}
	if c.Actuator.Redis.Addr == "" {
		c.Actuator.Redis.Addr = "localhost:6379"
	}
	if c.Actuator.Redis.Channel == "" {
		c.Actuator.Redis.Channel = "rvm:predictions"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Classifier.NumThreads < 1 {
		return fmt.Errorf("classifier.num_threads must be at least 1, got %d", c.Classifier.NumThreads)
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port %q is not a number", c.Server.Port)
	}
	switch c.Actuator.Kind {
	case "log", "redis":
	default:
		return fmt.Errorf("actuator.kind %q is not one of log, redis", c.Actuator.Kind)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}

// ConfigureLogging applies the log settings to the standard logrus logger.
func (c Config) ConfigureLogging() {
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logrus.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func backendFor(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".onnx") {
		return "onnx"
	}
	return "tflite"
}
