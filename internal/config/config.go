package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Realtime  RealtimeConfig
	MQTT      MQTTConfig
	Reconcile ReconcileConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

// BackendConfig points at the external device backend this console fronts.
type BackendConfig struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	LoginEmail  string
	LoginSecret string
}

type RealtimeConfig struct {
	URL              string
	Enabled          bool
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

type MQTTConfig struct {
	Enabled              bool
	Broker               string
	ClientID             string
	Username             string
	Password             string
	TopicPrefix          string
	QoS                  int
	KeepAlive            int
	ConnectTimeout       int
	MaxReconnectInterval time.Duration
}

type ReconcileConfig struct {
	StatusPollInterval time.Duration
	LogPreloadLimit    int
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(homeDir)
	}
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Warning: config file not found: %v. Falling back to environment variables only.", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("ENVIRONMENT"),
		},
		Backend: BackendConfig{
			BaseURL:     strings.TrimRight(viper.GetString("BACKEND_URL"), "/"),
			Token:       viper.GetString("BACKEND_TOKEN"),
			Timeout:     viper.GetDuration("BACKEND_TIMEOUT"),
			LoginEmail:  viper.GetString("BACKEND_LOGIN_EMAIL"),
			LoginSecret: viper.GetString("BACKEND_LOGIN_PASSWORD"),
		},
		Realtime: RealtimeConfig{
			URL:              viper.GetString("REALTIME_URL"),
			Enabled:          viper.GetBool("REALTIME_ENABLED"),
			ReconnectMin:     viper.GetDuration("REALTIME_RECONNECT_MIN"),
			ReconnectMax:     viper.GetDuration("REALTIME_RECONNECT_MAX"),
			HandshakeTimeout: viper.GetDuration("REALTIME_HANDSHAKE_TIMEOUT"),
			WriteTimeout:     viper.GetDuration("REALTIME_WRITE_TIMEOUT"),
			PingInterval:     viper.GetDuration("REALTIME_PING_INTERVAL"),
		},
		MQTT: MQTTConfig{
			Enabled:              viper.GetBool("MQTT_ENABLED"),
			Broker:               viper.GetString("MQTT_BROKER"),
			ClientID:             viper.GetString("MQTT_CLIENT_ID"),
			Username:             viper.GetString("MQTT_USERNAME"),
			Password:             viper.GetString("MQTT_PASSWORD"),
			TopicPrefix:          viper.GetString("MQTT_TOPIC_PREFIX"),
			QoS:                  viper.GetInt("MQTT_QOS"),
			KeepAlive:            viper.GetInt("MQTT_KEEPALIVE"),
			ConnectTimeout:       viper.GetInt("MQTT_CONNECT_TIMEOUT"),
			MaxReconnectInterval: viper.GetDuration("MQTT_MAX_RECONNECT_INTERVAL"),
		},
		Reconcile: ReconcileConfig{
			StatusPollInterval: viper.GetDuration("RECONCILE_STATUS_POLL_INTERVAL"),
			LogPreloadLimit:    viper.GetInt("RECONCILE_LOG_PRELOAD_LIMIT"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   viper.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders:   viper.GetStringSlice("CORS_ALLOWED_HEADERS"),
			ExposedHeaders:   viper.GetStringSlice("CORS_EXPOSED_HEADERS"),
			AllowCredentials: viper.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           viper.GetInt("CORS_MAX_AGE"),
		},
	}

	if config.Backend.BaseURL == "" {
		return nil, errors.New("BACKEND_URL is required")
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")

	viper.SetDefault("BACKEND_TIMEOUT", "15s")

	viper.SetDefault("REALTIME_ENABLED", true)
	viper.SetDefault("REALTIME_RECONNECT_MIN", "1s")
	viper.SetDefault("REALTIME_RECONNECT_MAX", "30s")
	viper.SetDefault("REALTIME_HANDSHAKE_TIMEOUT", "10s")
	viper.SetDefault("REALTIME_WRITE_TIMEOUT", "10s")
	viper.SetDefault("REALTIME_PING_INTERVAL", "25s")

	viper.SetDefault("MQTT_ENABLED", false)
	viper.SetDefault("MQTT_CLIENT_ID", "device-console")
	viper.SetDefault("MQTT_TOPIC_PREFIX", "devices")
	viper.SetDefault("MQTT_QOS", 1)
	viper.SetDefault("MQTT_KEEPALIVE", 60)
	viper.SetDefault("MQTT_CONNECT_TIMEOUT", 10)
	viper.SetDefault("MQTT_MAX_RECONNECT_INTERVAL", "1m")

	viper.SetDefault("RECONCILE_STATUS_POLL_INTERVAL", "30s")
	viper.SetDefault("RECONCILE_LOG_PRELOAD_LIMIT", 50)

	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})
	viper.SetDefault("CORS_EXPOSED_HEADERS", []string{"X-Request-ID"})
	viper.SetDefault("CORS_ALLOW_CREDENTIALS", true)
	viper.SetDefault("CORS_MAX_AGE", 300)
}
