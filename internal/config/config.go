package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gitlab.ozon.dev/qwestard/laundry/internal/pricing"
)

const (
	DriverMemory = "memory"
)

type Config struct {
	DBDriver     string
	DSN          string
	SnapshotFile string
	HTTPPort     string
	FilterWord   string

	AuditBatchSize int
	AuditTimeout   time.Duration
	AuditWorkers   int

	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaGroupID       string
	KafkaTopic         string
	OutboxPollInterval time.Duration
	OutboxBatchLimit   int

	PriceMin  int
	PriceMax  int
	PriceSeed int64
}

// LoadConfig reads settings from the environment, falling back to defaults.
func LoadConfig() *Config {
	return load(viper.New())
}

func load(v *viper.Viper) *Config {
	v.SetDefault("APP_DB_DRIVER", DriverMemory)
	v.SetDefault("APP_DSN", "host=localhost user=postgres password=postgres dbname=laundry sslmode=disable")
	v.SetDefault("APP_SNAPSHOT_FILE", "")
	v.SetDefault("APP_PORT", "9000")
	v.SetDefault("APP_FILTER", "")
	v.SetDefault("AUDIT_BATCH_SIZE", 5)
	v.SetDefault("AUDIT_TIMEOUT", "500ms")
	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_ID", "laundry-notifier")
	v.SetDefault("KAFKA_TOPIC", "laundry-request-events")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "1s")
	v.SetDefault("OUTBOX_BATCH_LIMIT", 50)
	v.SetDefault("PRICE_MIN", pricing.DefaultMin)
	v.SetDefault("PRICE_MAX", pricing.DefaultMax)
	v.SetDefault("PRICE_SEED", 0)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		DBDriver:           strings.ToLower(v.GetString("APP_DB_DRIVER")),
		DSN:                v.GetString("APP_DSN"),
		SnapshotFile:       v.GetString("APP_SNAPSHOT_FILE"),
		HTTPPort:           v.GetString("APP_PORT"),
		FilterWord:         v.GetString("APP_FILTER"),
		AuditBatchSize:     v.GetInt("AUDIT_BATCH_SIZE"),
		AuditTimeout:       v.GetDuration("AUDIT_TIMEOUT"),
		AuditWorkers:       v.GetInt("AUDIT_WORKERS"),
		KafkaEnabled:       v.GetBool("KAFKA_ENABLED"),
		KafkaBrokers:       splitList(v.GetString("KAFKA_BROKERS")),
		KafkaGroupID:       v.GetString("KAFKA_GROUP_ID"),
		KafkaTopic:         v.GetString("KAFKA_TOPIC"),
		OutboxPollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
		OutboxBatchLimit:   v.GetInt("OUTBOX_BATCH_LIMIT"),
		PriceMin:           v.GetInt("PRICE_MIN"),
		PriceMax:           v.GetInt("PRICE_MAX"),
		PriceSeed:          v.GetInt64("PRICE_SEED"),
	}
	// The outbox lives in the database, so there is nothing to publish from memory.
	if cfg.KafkaEnabled && !cfg.UsesSQL() {
		log.Printf("KAFKA_ENABLED ignored: APP_DB_DRIVER=%s has no outbox, use postgres or sqlite", cfg.DBDriver)
		cfg.KafkaEnabled = false
	}
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

// UsesSQL reports whether requests live in a database rather than in memory.
func (c *Config) UsesSQL() bool {
	return c.DBDriver != DriverMemory
}
