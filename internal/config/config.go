// Package config loads Kestrel configuration from an optional file and
// KESTREL_* environment variables on top of the tier defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. KESTREL_SERVER_PORT.
const EnvPrefix = "KESTREL"

// Load builds the configuration. The tier ("community" or "pro") picks the
// base defaults; the file at path (any format viper reads, may be empty) and
// then the environment override individual keys. KESTREL_DEBUG=true forces
// debug logging.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	base := domain.DefaultConfig()
	switch tier := domain.Tier(v.GetString("tier")); tier {
	case "", domain.TierCommunity:
	case domain.TierPro:
		base = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	setDefaults(v, base)

	cfg := &domain.Config{
		Tier: base.Tier,
		Server: domain.ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
		},
		Repository: domain.RepositoryConfig{
			Driver:           v.GetString("repository.driver"),
			SQLitePath:       v.GetString("repository.sqlite_path"),
			PostgresHost:     v.GetString("repository.postgres.host"),
			PostgresPort:     v.GetInt("repository.postgres.port"),
			PostgresUser:     v.GetString("repository.postgres.user"),
			PostgresPassword: v.GetString("repository.postgres.password"),
			PostgresDB:       v.GetString("repository.postgres.db"),
			PostgresSSLMode:  v.GetString("repository.postgres.sslmode"),
			MaxOpenConns:     v.GetInt("repository.max_open_conns"),
			MaxIdleConns:     v.GetInt("repository.max_idle_conns"),
			ConnMaxLifetime:  v.GetDuration("repository.conn_max_lifetime"),
		},
		Cache: domain.CacheConfig{
			Type:           v.GetString("cache.type"),
			LocalMaxSize:   v.GetInt("cache.local_max_size"),
			LocalTTL:       v.GetDuration("cache.local_ttl"),
			RedisAddr:      v.GetString("cache.redis.addr"),
			RedisPassword:  v.GetString("cache.redis.password"),
			RedisDB:        v.GetInt("cache.redis.db"),
			EnableTwoPhase: v.GetBool("cache.two_phase"),
			DecisionTTL:    v.GetDuration("cache.decision_ttl"),
		},
		EventBus: domain.EventBusConfig{
			Type:              v.GetString("eventbus.type"),
			ChannelBufferSize: v.GetInt("eventbus.buffer_size"),
			NATSUrl:           v.GetString("eventbus.nats.url"),
			NATSToken:         v.GetString("eventbus.nats.token"),
			NATSMaxReconnects: v.GetInt("eventbus.nats.max_reconnects"),
			NATSReconnectWait: v.GetInt("eventbus.nats.reconnect_wait"),
			NATSQueueGroup:    v.GetString("eventbus.nats.queue_group"),
		},
		Worker: domain.WorkerConfig{
			Enabled: v.GetBool("worker.enabled"),
			Tenants: splitList(v.GetStringSlice("worker.tenants")),
		},
		Logging: domain.LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlite_path", c.Repository.SQLitePath)
	v.SetDefault("repository.postgres.host", c.Repository.PostgresHost)
	v.SetDefault("repository.postgres.port", c.Repository.PostgresPort)
	v.SetDefault("repository.postgres.user", c.Repository.PostgresUser)
	v.SetDefault("repository.postgres.password", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgres.db", c.Repository.PostgresDB)
	v.SetDefault("repository.postgres.sslmode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.local_max_size", c.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", c.Cache.LocalTTL)
	v.SetDefault("cache.redis.addr", c.Cache.RedisAddr)
	v.SetDefault("cache.redis.password", c.Cache.RedisPassword)
	v.SetDefault("cache.redis.db", c.Cache.RedisDB)
	v.SetDefault("cache.two_phase", c.Cache.EnableTwoPhase)
	v.SetDefault("cache.decision_ttl", c.Cache.DecisionTTL)

	v.SetDefault("eventbus.type", c.EventBus.Type)
	v.SetDefault("eventbus.buffer_size", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventbus.nats.url", c.EventBus.NATSUrl)
	v.SetDefault("eventbus.nats.token", c.EventBus.NATSToken)
	v.SetDefault("eventbus.nats.max_reconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventbus.nats.reconnect_wait", c.EventBus.NATSReconnectWait)
	v.SetDefault("eventbus.nats.queue_group", c.EventBus.NATSQueueGroup)

	v.SetDefault("worker.enabled", c.Worker.Enabled)
	v.SetDefault("worker.tenants", c.Worker.Tenants)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)

	v.SetDefault("debug", false)
}

// splitList accepts both YAML lists and comma-separated environment values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validate(c *domain.Config) error {
	switch c.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", c.Repository.Driver)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
	switch c.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %s", c.EventBus.Type)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for _, t := range c.Worker.Tenants {
		if t == domain.AllTenants {
			return fmt.Errorf("worker tenants must be concrete; leave empty to consume every tenant")
		}
	}
	return nil
}
