package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/migrate"
)

const connectTimeout = 5 * time.Second

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// postgresDSN builds the connection URL, escaping credentials.
func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	q.Set("application_name", "investigator")
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDB opens the pool backing the job store and verifies it with a ping.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DBConfig.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
			"max_open_conns", cfg.DBConfig.MaxOpenConns,
		)
	}
	return db, nil
}

type redisMode string

const (
	redisModeDirect   redisMode = "direct"
	redisModeSentinel redisMode = "sentinel"
	redisModeCluster  redisMode = "cluster"
)

// redisOptions translates config into go-redis universal options. The returned mode decides
// which concrete client is built; a single cluster seed still needs a cluster client.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, redisMode, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password}

	switch {
	case cfg.UseCluster:
		opts.Addrs = normalizeAddrs(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 {
			if err := applyRedisURI(opts, cfg.URI); err != nil {
				return nil, "", err
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster configuration requires at least one address")
		}
		return opts, redisModeCluster, nil

	case cfg.UseSentinel:
		opts.Addrs = normalizeAddrs(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		opts.MasterName = strings.TrimSpace(cfg.SentinelMasterName)
		if opts.MasterName == "" {
			return nil, "", errors.New("redis sentinel configuration requires a master name")
		}
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, redisModeSentinel, nil

	default:
		if err := applyRedisURI(opts, cfg.URI); err != nil {
			return nil, "", err
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis direct configuration requires a URI")
		}
		return opts, redisModeDirect, nil
	}
}

// applyRedisURI accepts either host:port or a redis:// / rediss:// URL. URL credentials
// override the configured password.
func applyRedisURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	if !isRedisURL(uri) {
		opts.Addrs = []string{uri}
		return nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	if parsed.Username != "" {
		opts.Username = parsed.Username
	}
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	return nil
}

// ConnectRedis connects the client used by the progress relay.
//
//nolint:ireturn // the concrete client depends on the configured topology.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, mode, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case redisModeCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case redisModeSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "mode", string(mode), "addrs", strings.Join(opts.Addrs, ","))
	}
	return client, nil
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// RunMigrations applies pending investigation schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db, migrate.Options{Logger: logger}); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}

	return nil
}
