// Pacote redis liga o nó ao servidor Redis usado como canal do grupo de compartilhamento.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options descreve o servidor usado como barramento. Um nó só mantém a assinatura da sala e publica
// poucas mensagens, então o pool é pequeno.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect abre o cliente e só o devolve depois de um PING bem sucedido dentro do prazo de ctx.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     4,
		PoolTimeout:  5 * time.Second,
		DialTimeout:  3 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping em %s falhou: %w", opts.Addr, err)
	}

	return client, nil
}
