package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// .env is optional
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	MySQL   MySQLConfig
	Redis   RedisConfig
	Economy EconomyConfig
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort        int           `envconfig:"SERVER_HTTP_PORT" default:"8080"`
	GRPCPort        int           `envconfig:"SERVER_GRPC_PORT" default:"50051"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	CORSOrigins     []string      `envconfig:"SERVER_CORS_ORIGINS" default:"*"`
}

// MongoConfig points at the item catalog.
type MongoConfig struct {
	URI      string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database string        `envconfig:"MONGO_DATABASE" default:"economy"`
	Timeout  time.Duration `envconfig:"MONGO_TIMEOUT" default:"10s"`
}

// MySQLConfig points at the account store.
type MySQLConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"economy"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	PoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"100"`
}

// EconomyConfig tunes sessions, leaderboards and repricing.
type EconomyConfig struct {
	SessionIdleTimeout time.Duration `envconfig:"ECONOMY_SESSION_IDLE_TIMEOUT" default:"60s"`
	RepriceInterval    time.Duration `envconfig:"ECONOMY_REPRICE_INTERVAL" default:"1h"`
	RepriceWorkers     int           `envconfig:"ECONOMY_REPRICE_WORKERS" default:"4"`
	LeaderboardTTL     time.Duration `envconfig:"ECONOMY_LEADERBOARD_TTL" default:"30s"`
	LeaderboardSize    int           `envconfig:"ECONOMY_LEADERBOARD_SIZE" default:"10"`
}

// HTTPAddress returns the HTTP listen address in host:port format.
func (s *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

func (s *ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// DSN builds a go-sql-driver DSN with parseTime enabled and bounded timeouts.
// Credentials are escaped by the driver, so passwords may contain '@' or '/'.
func (m *MySQLConfig) DSN() string {
	dsn := mysql.NewConfig()
	dsn.User = m.User
	dsn.Passwd = m.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	dsn.DBName = m.Name
	dsn.ParseTime = true
	dsn.Collation = "utf8mb4_unicode_ci"
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	dsn.Timeout = 5 * time.Second
	dsn.ReadTimeout = 10 * time.Second
	dsn.WriteTimeout = 10 * time.Second
	return dsn.FormatDSN()
}

func (c *Config) validate() error {
	if c.Economy.SessionIdleTimeout <= 0 {
		return fmt.Errorf("ECONOMY_SESSION_IDLE_TIMEOUT must be positive, got %v", c.Economy.SessionIdleTimeout)
	}
	if c.Economy.RepriceInterval <= 0 {
		return fmt.Errorf("ECONOMY_REPRICE_INTERVAL must be positive, got %v", c.Economy.RepriceInterval)
	}
	if c.Economy.LeaderboardSize <= 0 {
		return fmt.Errorf("ECONOMY_LEADERBOARD_SIZE must be positive, got %d", c.Economy.LeaderboardSize)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
