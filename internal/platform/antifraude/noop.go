package antifraude

import (
	"context"

	"github.com/marcelojr/enquetes/internal/domain"
)

// Noop representa uma estratégia de antifraude desabilitada.
type Noop struct{}

func NewNoop() Noop {
	return Noop{}
}

func (Noop) Validar(ctx context.Context, from domain.PeerID, voto domain.Vote) error {
	return nil
}
