package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_QuandoAmbienteVazio_DeveUsarDefaults(t *testing.T) {
	t.Setenv("POLL_NICK", "alice")
	t.Setenv("POLL_STORE", "")
	t.Setenv("REDIS_DB", "")
	t.Setenv("POLL_SHARE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Nick)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.False(t, cfg.Share)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.True(t, cfg.RateLimitEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_QuandoVariaveisDefinidas_DeveSobrescrever(t *testing.T) {
	t.Setenv("POLL_NICK", "bob")
	t.Setenv("POLL_STORE", StoreSQLite)
	t.Setenv("POLL_SHARE", "true")
	t.Setenv("POLL_QUEUE_SIZE", "32")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ANTIFRAUDE_RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.Nick)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.True(t, cfg.Share)
	assert.Equal(t, 32, cfg.QueueSize)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.False(t, cfg.RateLimitEnabled)
}

func TestLoad_QuandoRedisDBInvalido_DeveRetornarErro(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_QuandoCamposInvalidos_DeveRetornarErro(t *testing.T) {
	base := Config{Nick: "alice", Store: StoreFile, QueueSize: 1}
	require.NoError(t, base.Validate())

	semApelido := base
	semApelido.Nick = ""
	assert.Error(t, semApelido.Validate())

	storeDesconhecido := base
	storeDesconhecido.Store = "mongo"
	assert.Error(t, storeDesconhecido.Validate())

	filaZerada := base
	filaZerada.QueueSize = 0
	assert.Error(t, filaZerada.Validate())
}

func TestBindFlags_QuandoFlagsPassadas_DevemVencerOAmbiente(t *testing.T) {
	cfg := Config{Nick: "alice", Store: StoreFile, Room: "poll"}
	fs := pflag.NewFlagSet("pollnode", pflag.ContinueOnError)
	BindFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"-n", "carol", "--store", StorePostgres, "--share", "-r", "sala-2"}))

	assert.Equal(t, "carol", cfg.Nick)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.True(t, cfg.Share)
	assert.Equal(t, "sala-2", cfg.Room)
}

func TestPostgresDSN_DeveMontarURL(t *testing.T) {
	cfg := Config{
		PostgresUser:     "poll",
		PostgresPassword: "segredo",
		PostgresHost:     "db",
		PostgresPort:     "5432",
		PostgresDB:       "polls",
		PostgresSSLMode:  "disable",
	}

	assert.Equal(t, "postgres://poll:segredo@db:5432/polls?sslmode=disable", cfg.PostgresDSN())
}
