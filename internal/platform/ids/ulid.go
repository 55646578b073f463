// Pacote ids gera os nomes únicos usados por cada instância no barramento do grupo.
package ids

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/marcelojr/enquetes/internal/domain"
)

// NewPeerID devolve um nome de barramento novo a cada entrada em uma sala. Nomes gerados no mesmo
// processo são monotônicos, então a ordem lexical acompanha a ordem de entrada.
func NewPeerID() domain.PeerID {
	return domain.PeerID(ulid.Make().String())
}

// JoinedAt recupera o instante codificado no nome do par; nomes que não são ULID devolvem false.
func JoinedAt(peer domain.PeerID) (time.Time, bool) {
	id, err := ulid.ParseStrict(string(peer))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()).UTC(), true
}
