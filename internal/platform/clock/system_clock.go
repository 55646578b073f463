// Pacote clock isola o relógio do sistema para que a data de criação das enquetes seja testável.
package clock

import (
	"time"

	"github.com/marcelojr/enquetes/internal/domain"
)

type SystemClock struct{}

func NewSystemClock() SystemClock {
	return SystemClock{}
}

func (SystemClock) Agora() time.Time {
	return time.Now().UTC()
}

var _ domain.Clock = SystemClock{}
