// Pacote config centraliza o carregamento das variáveis de ambiente e flags usadas pelo nó de enquetes.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config agrega todos os parâmetros do nó: armazenamento, canal de pares e API local.
type Config struct {
	HTTPAddress string
	Nick        string
	LogLevel    string

	Store      string
	DataDir    string
	SQLitePath string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	AutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Share         bool
	Initiator     bool
	Room          string
	ChannelPrefix string
	QueueSize     int

	RateLimitEnabled       bool
	RateLimitMaxActions    int
	RateLimitWindowSeconds int
	RateLimitKeyPrefix     string
}

func Load() (Config, error) {
	// Defaults priorizam uso local e offline; compartilhamento só liga explicitamente.
	cfg := Config{
		HTTPAddress:      getEnv("HTTP_ADDRESS", "127.0.0.1:8080"),
		Nick:             getEnv("POLL_NICK", os.Getenv("USER")),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Store:            getEnv("POLL_STORE", StoreFile),
		DataDir:          getEnv("POLL_DATA_DIR", "./data"),
		SQLitePath:       getEnv("POLL_SQLITE_PATH", "./data/polls.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "poll"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "poll"),
		PostgresDB:       getEnv("POSTGRES_DB", "polls"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		Share:            getEnvAsBool("POLL_SHARE", false),
		Initiator:        getEnvAsBool("POLL_INITIATOR", false),
		Room:             getEnv("POLL_ROOM", "poll"),
		ChannelPrefix:    getEnv("POLL_CHANNEL_PREFIX", "enquetes"),
		QueueSize:        getEnvAsInt("POLL_QUEUE_SIZE", 256),

		RateLimitEnabled:       getEnvAsBool("ANTIFRAUDE_RATE_LIMIT_ENABLED", true),
		RateLimitMaxActions:    getEnvAsInt("ANTIFRAUDE_RATE_LIMIT_MAX", 30),
		RateLimitWindowSeconds: getEnvAsInt("ANTIFRAUDE_RATE_LIMIT_WINDOW", 60),
		RateLimitKeyPrefix:     getEnv("ANTIFRAUDE_RATE_LIMIT_PREFIX", "enquetes:ratelimit"),
	}

	dbStr := getEnv("REDIS_DB", "0")
	dbInt, err := strconv.Atoi(dbStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: REDIS_DB invalido: %w", err)
	}
	cfg.RedisDB = dbInt

	return cfg, nil
}

// BindFlags registra as flags do binário usando os valores já carregados do ambiente como default.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HTTPAddress, "http", cfg.HTTPAddress, "endereco da API local")
	fs.StringVarP(&cfg.Nick, "nick", "n", cfg.Nick, "apelido do usuario local")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "nivel de log (debug, info, warn, error)")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "armazenamento: file, sqlite ou postgres")
	fs.StringVarP(&cfg.DataDir, "data-dir", "d", cfg.DataDir, "diretorio do armazenamento em arquivos")
	fs.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "arquivo do banco sqlite")
	fs.BoolVar(&cfg.Share, "share", cfg.Share, "entrar em uma sala de compartilhamento")
	fs.BoolVar(&cfg.Initiator, "initiator", cfg.Initiator, "esta instancia iniciou o compartilhamento")
	fs.StringVarP(&cfg.Room, "room", "r", cfg.Room, "nome da sala")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "endereco do redis usado como canal do grupo")
	fs.BoolVar(&cfg.RateLimitEnabled, "rate-limit", cfg.RateLimitEnabled, "limitar votos repassados por par")
}

func (c Config) Validate() error {
	if c.Nick == "" {
		return fmt.Errorf("config: apelido obrigatorio (POLL_NICK ou --nick)")
	}
	switch c.Store {
	case StoreFile, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("config: POLL_STORE desconhecido %q", c.Store)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("config: POLL_QUEUE_SIZE deve ser positivo")
	}
	return nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return true
	}
}
