package config

import (
	"strings"
	"time"
)

// StoreDriver selects the Job Store implementation.
type StoreDriver string

const (
	// StoreDriverPostgres persists investigations in PostgreSQL.
	StoreDriverPostgres StoreDriver = "postgres"
	// StoreDriverMemory keeps investigations in process memory. Single replica only.
	StoreDriverMemory StoreDriver = "memory"
)

// StoreConfig selects the Job Store.
type StoreConfig struct {
	Driver StoreDriver `env:"STORE_DRIVER" envDefault:"postgres"`
}

// Sanitize falls back to postgres for unknown drivers.
func (s *StoreConfig) Sanitize() {
	s.Driver = StoreDriver(strings.ToLower(strings.TrimSpace(string(s.Driver))))
	if s.Driver != StoreDriverMemory {
		s.Driver = StoreDriverPostgres
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"investigator"`
	Password string `env:"PASSWORD" envDefault:"investigator"`
	Name     string `env:"NAME"     envDefault:"investigator"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // 'require' in production
	// Pool sizing. Every in-flight capability result and callback holds a connection briefly,
	// so MaxOpenConns should cover COORDINATOR_MAX_CONCURRENCY with headroom.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize clamps pool settings.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns < 0 {
		c.MaxIdleConns = 0
	}
	c.MaxIdleConns = min(c.MaxIdleConns, c.MaxOpenConns)
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// RedisConfig contains Redis configuration for the progress relay.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
