package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/enquetes/internal/platform/storage/file"
	"github.com/marcelojr/enquetes/internal/platform/storage/postgres"
)

// setupSQLStore cria um repositório SQLite em memória; fechar o sql.DB simula indisponibilidade
func setupSQLStore(t *testing.T) (*postgres.PollRepository, func()) {
	db, err := postgres.OpenSQLite(":memory:")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return postgres.NewPollRepository(db), func() { sqlDB.Close() }
}

func setupMockRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client
}

type estadoFixo string

func (e estadoFixo) StateName() string { return string(e) }

func serve(t *testing.T, checker *Checker, req *http.Request) (int, report) {
	t.Helper()
	w := httptest.NewRecorder()
	checker.ReadyHandler().ServeHTTP(w, req)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var rep report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
	return w.Code, rep
}

func TestReadyHandler_QuandoTodosServicosDisponiveis_DeveRetornar200OK(t *testing.T) {
	store, _ := setupSQLStore(t)
	redisClient := setupMockRedis(t)

	code, rep := serve(t, NewChecker(store, redisClient), httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, report{Status: "ok", Storage: "ok", Redis: "ok"}, rep)
}

func TestReadyHandler_QuandoRedisENil_DevePularChecagem(t *testing.T) {
	store, _ := setupSQLStore(t)

	code, rep := serve(t, NewChecker(store, nil), httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, report{Status: "ok", Storage: "ok"}, rep)
}

func TestReadyHandler_QuandoAmbosNulos_DeveRetornar200(t *testing.T) {
	code, rep := serve(t, NewChecker(nil, nil), httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, report{Status: "ok"}, rep)
}

func TestReadyHandler_QuandoBancoIndisponivel_DeveRetornar503(t *testing.T) {
	store, fechar := setupSQLStore(t)
	redisClient := setupMockRedis(t)

	fechar()

	code, rep := serve(t, NewChecker(store, redisClient), httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, report{Status: "unavailable", Storage: "unavailable", Redis: "ok"}, rep)
}

func TestReadyHandler_QuandoDiretorioSumiu_DeveRetornar503(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "enquetes")
	store, err := file.Open(dir)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))

	code, rep := serve(t, NewChecker(store, nil), httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", rep.Storage)
}

func TestReadyHandler_QuandoRedisIndisponivel_DeveRetornar503(t *testing.T) {
	store, err := file.Open(t.TempDir())
	require.NoError(t, err)
	redisClient := setupMockRedis(t)

	// Fechar Redis para simular indisponibilidade
	redisClient.Close()

	code, rep := serve(t, NewChecker(store, redisClient), httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, report{Status: "unavailable", Storage: "ok", Redis: "unavailable"}, rep)
}

func TestReadyHandler_QuandoAmbosIndisponiveis_DeveReportarOsDois(t *testing.T) {
	store, fechar := setupSQLStore(t)
	redisClient := setupMockRedis(t)

	fechar()
	redisClient.Close()

	code, rep := serve(t, NewChecker(store, redisClient), httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, report{Status: "unavailable", Storage: "unavailable", Redis: "unavailable"}, rep)
}

func TestReadyHandler_QuandoSessaoAnunciando_DeveReportarSemDerrubar(t *testing.T) {
	store, err := file.Open(t.TempDir())
	require.NoError(t, err)

	checker := NewChecker(store, nil).WithSession(estadoFixo("announcing"))
	code, rep := serve(t, checker, httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, report{Status: "ok", Storage: "ok", Sharing: "announcing"}, rep)
}

func TestReadyHandler_QuandoContextoCancelado_DeveInterromper(t *testing.T) {
	store, _ := setupSQLStore(t)
	redisClient := setupMockRedis(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	code, rep := serve(t, NewChecker(store, redisClient), req)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, report{Status: "unavailable", Storage: "unavailable", Redis: "unavailable"}, rep)
}
