// Pacote antifraude limita a rajada de votos que um par pode repassar ao grupo (rate limit Redis e modo noop).
package antifraude

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/enquetes/internal/domain"
)

var ErrRateLimitExceeded = errors.New("limite de votos do par atingido")

// RedisRateLimiter conta, em janelas fixas no Redis, quantos votos um par repassou para uma mesma enquete.
// Votos do próprio usuário local não passam por aqui: só a sessão consulta o limitador.
type RedisRateLimiter struct {
	client    *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: prefix,
	}
}

// Validar abre a janela com SET NX EX e conta com INCR no mesmo pipeline; o INCR preserva o TTL,
// então a janela vence sempre a partir do primeiro voto do par naquela enquete.
func (r *RedisRateLimiter) Validar(ctx context.Context, from domain.PeerID, voto domain.Vote) error {
	if r.client == nil || r.limit <= 0 || r.window <= 0 {
		return nil
	}

	key := r.buildKey(from, voto)
	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, r.window)
		count = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("antifraude: janela de %s: %w", from, err)
	}

	if int(count.Val()) > r.limit {
		return fmt.Errorf("%w: %d votos de %s na janela", ErrRateLimitExceeded, count.Val(), from)
	}

	return nil
}

// buildKey agrupa por enquete para que um par barulhento numa enquete não trave os votos dele nas outras.
func (r *RedisRateLimiter) buildKey(from domain.PeerID, voto domain.Vote) string {
	hash := sha1.Sum([]byte(from))
	return fmt.Sprintf("%s:%s:%s", r.keyPrefix, domain.IdentifierFor(voto.Title, voto.Author), hex.EncodeToString(hash[:8]))
}

var _ domain.Antifraude = (*RedisRateLimiter)(nil)
