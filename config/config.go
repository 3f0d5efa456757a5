package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/openclob/pointsbook/pkg/db/queue"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		HTTPAddr  string `yaml:"http_addr"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`

	Engine struct {
		// Backend selects where engine state lives: memory or redis.
		Backend string `yaml:"backend"`
		// Name of the default engine created at startup.
		Name string `yaml:"name"`
		// Treasury is the user id credited with the protocol fee cut.
		Treasury uint64 `yaml:"treasury"`
	} `yaml:"engine"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled    bool   `yaml:"enabled"`
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
	} `yaml:"kafka"`

	Otel struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"otel"`
}

var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	httpPort   = flag.Int("http_port", 8080, "The HTTP server port")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
	backend    = flag.String("backend", "memory", "Engine backend: memory, redis")
)

// LoadConfig builds the configuration from defaults, then an optional
// YAML file, then environment variables. Later sources win.
func LoadConfig() (*Config, error) {
	flag.Parse()

	config := &Config{}
	config.Server.HTTPAddr = fmt.Sprintf(":%d", *httpPort)
	config.Server.LogLevel = *logLevel
	config.Server.LogFormat = *logFormat
	config.Engine.Backend = *backend
	config.Engine.Name = "main"
	config.Redis.Addr = "localhost:6379"
	config.Redis.Prefix = "pointsbook"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.Topic = "pointsbook-events"
	config.Otel.Endpoint = "localhost:4317"

	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Push broker settings into the producer package.
	queue.SetBrokerList([]string{config.Kafka.BrokerAddr})
	queue.SetTopic(config.Kafka.Topic)

	return config, nil
}

// applyEnv overlays environment variables onto the loaded config.
func applyEnv(config *Config) {
	v := viper.New()
	v.SetEnvPrefix("POINTSBOOK")
	v.AutomaticEnv()

	if addr := v.GetString("HTTP_ADDR"); addr != "" {
		config.Server.HTTPAddr = addr
	}
	if level := v.GetString("LOG_LEVEL"); level != "" {
		config.Server.LogLevel = level
	}
	if backend := v.GetString("BACKEND"); backend != "" {
		config.Engine.Backend = backend
	}
	if v.IsSet("TREASURY") {
		config.Engine.Treasury = v.GetUint64("TREASURY")
	}
	if addr := v.GetString("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := v.GetString("REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if v.IsSet("KAFKA_ENABLED") {
		config.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	}
	if addr := v.GetString("KAFKA_BROKER"); addr != "" {
		config.Kafka.BrokerAddr = addr
	}
	if topic := v.GetString("KAFKA_TOPIC"); topic != "" {
		config.Kafka.Topic = topic
	}
	if v.IsSet("OTEL_ENABLED") {
		config.Otel.Enabled = v.GetBool("OTEL_ENABLED")
	}
	if endpoint := v.GetString("OTEL_ENDPOINT"); endpoint != "" {
		config.Otel.Endpoint = endpoint
	}
}

func validate(config *Config) error {
	switch config.Engine.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown backend %q", config.Engine.Backend)
	}
	if config.Engine.Name == "" {
		return fmt.Errorf("engine name must not be empty")
	}
	if config.Engine.Backend == "redis" && config.Redis.Addr == "" {
		return fmt.Errorf("redis addr must not be empty")
	}
	if config.Kafka.Enabled && config.Kafka.BrokerAddr == "" {
		return fmt.Errorf("kafka broker addr must not be empty")
	}
	return nil
}
