// Pacote codec centraliza a configuração CBOR usada nos arquivos de enquete, nas mensagens entre pares e
// nos envelopes do canal.
package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Codificação determinística: mesmos dados, mesmos bytes, o que facilita comparar corpos gravados.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: falha ao iniciar encoder CBOR: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 131072,
		MaxMapPairs:      131072,
	}.DecMode()
	if err != nil {
		panic("codec: falha ao iniciar decoder CBOR: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

type (
	Encoder = cbor.Encoder
	Decoder = cbor.Decoder
)

// NewEncoder escreve uma sequência CBOR: um item por chamada de Encode.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
