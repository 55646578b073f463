// Pacote health responde o /readyz do nó: armazenamento e Redis precisam responder, e o estado da sessão
// de compartilhamento aparece no relatório sem derrubar a prontidão.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger é qualquer armazenamento de enquetes capaz de dizer se está acessível.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionState é satisfeito pela sessão de compartilhamento ("joining", "announcing", "steady").
type SessionState interface {
	StateName() string
}

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
)

type report struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
	Redis   string `json:"redis,omitempty"`
	Sharing string `json:"sharing,omitempty"`
}

type Checker struct {
	store   Pinger
	redis   *redis.Client
	session SessionState
}

func NewChecker(store Pinger, redis *redis.Client) *Checker {
	return &Checker{store: store, redis: redis}
}

// WithSession inclui o estado da sessão no relatório.
func (c *Checker) WithSession(s SessionState) *Checker {
	c.session = s
	return c
}

func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		rep := report{Status: statusOK}
		if c.store != nil {
			rep.Storage = probe(ctx, c.store.Ping)
		}
		if c.redis != nil {
			rep.Redis = probe(ctx, func(ctx context.Context) error { return c.redis.Ping(ctx).Err() })
		}
		if c.session != nil {
			rep.Sharing = c.session.StateName()
		}

		status := http.StatusOK
		if rep.Storage == statusUnavailable || rep.Redis == statusUnavailable {
			rep.Status = statusUnavailable
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(rep)
	}
}

func probe(ctx context.Context, ping func(context.Context) error) string {
	if err := ctx.Err(); err != nil {
		return statusUnavailable
	}
	if err := ping(ctx); err != nil {
		return statusUnavailable
	}
	return statusOK
}
