package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
	BackendSQLite = "sqlite"
)

type Config struct {
	ServiceID   string         `yaml:"service_id"`
	ServiceName string         `yaml:"service_name"`
	HTTP        HTTPConfig     `yaml:"http"`
	GRPC        GRPCConfig     `yaml:"grpc"`
	Ledger      LedgerConfig   `yaml:"ledger"`
	MySQL       MySQLConfig    `yaml:"mysql"`
	Redis       RedisConfig    `yaml:"redis"`
	Audit       AuditConfig    `yaml:"audit"`
	Kafka       KafkaConfig    `yaml:"kafka"`
	Consul      ConsulConfig   `yaml:"consul"`
	Catalog     CatalogConfig  `yaml:"catalog"`
	Transfer    TransferConfig `yaml:"transfer"`
	Cart        CartConfig     `yaml:"cart"`
	Events      EventsConfig   `yaml:"events"`
	Log         LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type LedgerConfig struct {
	Backend string `yaml:"backend"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

type AuditConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ConsulConfig struct {
	Addr string `yaml:"addr"`
}

type CatalogConfig struct {
	// SeedPath names a YAML file of locations and parts registered at
	// startup. Existing entries with the same id are overwritten.
	SeedPath string `yaml:"seed_path"`
}

type TransferConfig struct {
	// PendingTTL of zero keeps pending transfers open indefinitely.
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

type CartConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type EventsConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

func Default() *Config {
	return &Config{
		ServiceName: "stockd",
		HTTP:        HTTPConfig{Addr: ":8080"},
		GRPC:        GRPCConfig{Addr: ":50051"},
		Ledger:      LedgerConfig{Backend: BackendMemory},
		MySQL: MySQLConfig{
			DSN:          "root:root@tcp(localhost:3306)/partsstock?parseTime=true",
			MaxOpenConns: 50,
			MaxIdleConns: 25,
		},
		Redis:    RedisConfig{Addr: "localhost:6379", PoolSize: 100},
		Audit:    AuditConfig{Backend: BackendMemory, SQLitePath: "audit.db"},
		Kafka:    KafkaConfig{Topic: "stock-events"},
		Transfer: TransferConfig{ExpiryInterval: time.Minute},
		Cart:     CartConfig{TTL: 12 * time.Hour},
		Events:   EventsConfig{Workers: 10, QueueSize: 10000},
	}
}

// Load reads path (optional) over the defaults, then applies STOCKD_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.ServiceID == "" {
		cfg.ServiceID = cfg.ServiceName + "-" + uuid.New().String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ServiceID, "STOCKD_SERVICE_ID")
	setString(&c.HTTP.Addr, "STOCKD_HTTP_ADDR")
	setString(&c.GRPC.Addr, "STOCKD_GRPC_ADDR")
	setString(&c.Ledger.Backend, "STOCKD_LEDGER_BACKEND")
	setString(&c.MySQL.DSN, "STOCKD_MYSQL_DSN")
	setString(&c.Redis.Addr, "STOCKD_REDIS_ADDR")
	setString(&c.Audit.Backend, "STOCKD_AUDIT_BACKEND")
	setString(&c.Audit.SQLitePath, "STOCKD_AUDIT_SQLITE_PATH")
	setString(&c.Kafka.Topic, "STOCKD_KAFKA_TOPIC")
	setString(&c.Consul.Addr, "STOCKD_CONSUL_ADDR")
	setString(&c.Catalog.SeedPath, "STOCKD_CATALOG_SEED_PATH")

	if v := os.Getenv("STOCKD_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = parseList(v)
	}

	var errs []error
	errs = append(errs,
		setDuration(&c.Transfer.PendingTTL, "STOCKD_TRANSFER_PENDING_TTL"),
		setDuration(&c.Transfer.ExpiryInterval, "STOCKD_TRANSFER_EXPIRY_INTERVAL"),
		setDuration(&c.Cart.TTL, "STOCKD_CART_TTL"),
		setInt(&c.Events.Workers, "STOCKD_EVENTS_WORKERS"),
		setInt(&c.Events.QueueSize, "STOCKD_EVENTS_QUEUE_SIZE"),
	)
	if v := os.Getenv("STOCKD_LOG_DEVELOPMENT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STOCKD_LOG_DEVELOPMENT: %w", err))
		}
		c.Log.Development = b
	}
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required")
	}

	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis ledger")
		}
	case BackendMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql.dsn is required for the mysql ledger")
		}
	default:
		return fmt.Errorf("ledger.backend %q must be memory, redis or mysql", c.Ledger.Backend)
	}

	switch c.Audit.Backend {
	case BackendMemory:
	case BackendMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql.dsn is required for the mysql audit log")
		}
	case BackendSQLite:
		if c.Audit.SQLitePath == "" {
			return fmt.Errorf("audit.sqlite_path is required for the sqlite audit log")
		}
	default:
		return fmt.Errorf("audit.backend %q must be memory, mysql or sqlite", c.Audit.Backend)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	if c.Transfer.PendingTTL < 0 {
		return fmt.Errorf("transfer.pending_ttl must not be negative")
	}
	if c.Transfer.PendingTTL > 0 && c.Transfer.ExpiryInterval <= 0 {
		return fmt.Errorf("transfer.expiry_interval must be positive when pending_ttl is set")
	}
	if c.Events.Workers <= 0 {
		return fmt.Errorf("events.workers must be positive")
	}
	if c.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be positive")
	}
	return nil
}

// UsesMySQL reports whether any component needs the MySQL connection.
func (c *Config) UsesMySQL() bool {
	return c.Ledger.Backend == BackendMySQL || c.Audit.Backend == BackendMySQL
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
