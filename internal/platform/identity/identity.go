// Pacote identity deriva o identificador pseudônimo do eleitor a partir do apelido.
package identity

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/marcelojr/enquetes/internal/domain"
)

// PseudonymFor é estável por apelido e não permite recuperar o apelido original.
func PseudonymFor(nick string) domain.VoterID {
	sum := sha1.Sum([]byte(nick))
	return domain.VoterID(hex.EncodeToString(sum[:]))
}
