package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/match-lifecycle/internal/approval"
	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/matchmaking"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Scheduling  SchedulingConfig  `yaml:"scheduling"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Auth        AuthConfig        `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	SeedDemo bool   `yaml:"seed_demo"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Enabled       bool          `yaml:"enabled"`
	EventsTopic   string        `yaml:"events_topic"`
	CommandsTopic string        `yaml:"commands_topic"`
	GroupID       string        `yaml:"group_id"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// SweepConfig controls when matchmaking sweeps run
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	OnJoin   bool          `yaml:"on_join"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// MatchmakingConfig holds the rating thresholds proposals must respect
type MatchmakingConfig struct {
	DuoThreshold        float64 `yaml:"duo_threshold"`
	SoloSpreadThreshold float64 `yaml:"solo_spread_threshold"`
	SoloTeamThreshold   float64 `yaml:"solo_team_threshold"`
	DuoSoloThreshold    float64 `yaml:"duo_solo_threshold"`
}

// Thresholds converts the section into engine thresholds
func (c MatchmakingConfig) Thresholds() matchmaking.Thresholds {
	return matchmaking.Thresholds{
		Duo:        c.DuoThreshold,
		SoloSpread: c.SoloSpreadThreshold,
		SoloTeam:   c.SoloTeamThreshold,
		DuoSolo:    c.DuoSoloThreshold,
	}
}

// SchedulingConfig controls the time proposals of approved matches
type SchedulingConfig struct {
	Timezone          string        `yaml:"timezone"`
	MinLeadDays       int           `yaml:"min_lead_days"`
	Proposals         int           `yaml:"proposals"`
	DefaultHour       int           `yaml:"default_hour"`
	NegotiationWindow time.Duration `yaml:"negotiation_window"`
	MorningHour       int           `yaml:"morning_hour"`
	AfternoonHour     int           `yaml:"afternoon_hour"`
	EveningHour       int           `yaml:"evening_hour"`
}

// Policy converts the section into an approval policy
func (c SchedulingConfig) Policy() (approval.Policy, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return approval.Policy{}, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return approval.Policy{
		Location:          loc,
		MinLeadDays:       c.MinLeadDays,
		Proposals:         c.Proposals,
		DefaultHour:       c.DefaultHour,
		NegotiationWindow: c.NegotiationWindow,
		PeriodHours: map[domain.Period]int{
			domain.PeriodMorning:   c.MorningHour,
			domain.PeriodAfternoon: c.AfternoonHour,
			domain.PeriodEvening:   c.EveningHour,
		},
	}, nil
}

// RankingConfig holds regional ranking configuration
type RankingConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	BroadcastTop int `yaml:"broadcast_top"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// Load reads configuration from a YAML file. Variables from a .env file next
// to the working directory are loaded first so the YAML can reference them.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	// keys absent from the file keep these; an explicit 0 hour or lead is honoured
	cfg := Config{Scheduling: defaultScheduling()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Scheduling.Proposals <= 0 {
		return errors.New("scheduling.proposals must be positive")
	}
	if c.Scheduling.MinLeadDays < 0 {
		return errors.New("scheduling.min_lead_days must not be negative")
	}
	for name, h := range map[string]int{
		"default_hour":   c.Scheduling.DefaultHour,
		"morning_hour":   c.Scheduling.MorningHour,
		"afternoon_hour": c.Scheduling.AfternoonHour,
		"evening_hour":   c.Scheduling.EveningHour,
	} {
		if h < 0 || h > 23 {
			return fmt.Errorf("scheduling.%s must be between 0 and 23, got %d", name, h)
		}
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StoragePostgres
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 20
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 2
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "match-lifecycle"
	}
	if c.Kafka.CommandsTopic == "" {
		c.Kafka.CommandsTopic = "queue-commands"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "match-lifecycle-queue"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 50
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Sweep defaults
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 30 * time.Second
	}
	if c.Sweep.LockTTL == 0 {
		c.Sweep.LockTTL = 15 * time.Second
	}

	// Matchmaking defaults
	th := matchmaking.DefaultThresholds()
	if c.Matchmaking.DuoThreshold == 0 {
		c.Matchmaking.DuoThreshold = th.Duo
	}
	if c.Matchmaking.SoloSpreadThreshold == 0 {
		c.Matchmaking.SoloSpreadThreshold = th.SoloSpread
	}
	if c.Matchmaking.SoloTeamThreshold == 0 {
		c.Matchmaking.SoloTeamThreshold = th.SoloTeam
	}
	if c.Matchmaking.DuoSoloThreshold == 0 {
		c.Matchmaking.DuoSoloThreshold = th.DuoSolo
	}

	// Scheduling defaults
	policy := approval.DefaultPolicy(time.UTC)
	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = "UTC"
	}
	if c.Scheduling.Proposals == 0 {
		c.Scheduling.Proposals = policy.Proposals
	}
	if c.Scheduling.NegotiationWindow == 0 {
		c.Scheduling.NegotiationWindow = policy.NegotiationWindow
	}

	// Ranking defaults
	if c.Ranking.DefaultLimit == 0 {
		c.Ranking.DefaultLimit = 20
	}
	if c.Ranking.MaxLimit == 0 {
		c.Ranking.MaxLimit = 200
	}
	if c.Ranking.BroadcastTop == 0 {
		c.Ranking.BroadcastTop = 10
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "match-lifecycle"
	}
}

// defaultScheduling holds the scheduling values whose zero is meaningful, so
// they are filled in before decoding instead of after
func defaultScheduling() SchedulingConfig {
	policy := approval.DefaultPolicy(time.UTC)
	return SchedulingConfig{
		MinLeadDays:   policy.MinLeadDays,
		DefaultHour:   policy.DefaultHour,
		MorningHour:   policy.PeriodHours[domain.PeriodMorning],
		AfternoonHour: policy.PeriodHours[domain.PeriodAfternoon],
		EveningHour:   policy.PeriodHours[domain.PeriodEvening],
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{Scheduling: defaultScheduling()}
	cfg.applyDefaults()
	cfg.Sweep.Enabled = true
	cfg.Sweep.OnJoin = true
	return cfg
}
