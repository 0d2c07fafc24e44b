package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "omnidesk"
	DefaultPGSSLMode       = "disable"
	DefaultKafkaBroker     = "127.0.0.1:9092"
	DefaultIncomingTopic   = "incoming"
	DefaultDeadLetterTopic = "dlq"
	DefaultConsumerGroup   = "omnidesk-workers"
)

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Kafka        KafkaConfig        `toml:"kafka"`
	Pipeline     PipelineConfig     `toml:"pipeline"`
	Responder    ResponderConfig    `toml:"responder"`
	Conversation ConversationConfig `toml:"conversation"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Gmail        GmailConfig        `toml:"gmail"`
	Twilio       TwilioConfig       `toml:"twilio"`
	Mailgun      MailgunConfig      `toml:"mailgun"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// MigrateURL renders the golang-migrate connection URL.
func (c PostgresConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	IncomingTopic   string   `toml:"incoming_topic"`
	DeadLetterTopic string   `toml:"dead_letter_topic"`
	ConsumerGroup   string   `toml:"consumer_group"`
}

type PipelineConfig struct {
	Workers               int `toml:"workers"`
	StoreTimeoutSeconds   int `toml:"store_timeout_seconds"`
	DeliverTimeoutSeconds int `toml:"deliver_timeout_seconds"`
}

type ResponderConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ConversationConfig struct {
	// ScopeByChannel switches active-conversation lookup to per-channel
	// threads instead of the single unified timeline per customer.
	ScopeByChannel bool `toml:"scope_by_channel"`
}

type MetricsConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	PeriodHours     int `toml:"period_hours"`
}

type GmailConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	WatchAddress string `toml:"watch_address"`
}

type TwilioConfig struct {
	AccountSID     string `toml:"account_sid"`
	AuthToken      string `toml:"auth_token"`
	WhatsAppNumber string `toml:"whatsapp_number"`
}

type MailgunConfig struct {
	Domain string `toml:"domain"`
	APIKey string `toml:"api_key"`
	Sender string `toml:"sender"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Kafka: KafkaConfig{
			Brokers:         []string{DefaultKafkaBroker},
			IncomingTopic:   DefaultIncomingTopic,
			DeadLetterTopic: DefaultDeadLetterTopic,
			ConsumerGroup:   DefaultConsumerGroup,
		},
		Pipeline: PipelineConfig{
			Workers:               2,
			StoreTimeoutSeconds:   10,
			DeliverTimeoutSeconds: 15,
		},
		Responder: ResponderConfig{
			BaseURL:        "http://127.0.0.1:8091",
			TimeoutSeconds: 60,
		},
		Metrics: MetricsConfig{
			IntervalSeconds: 300,
			PeriodHours:     24,
		},
		Twilio: TwilioConfig{
			WhatsAppNumber: "whatsapp:+14155238886",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
