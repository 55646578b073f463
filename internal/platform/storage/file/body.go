package file

import (
	"errors"
	"fmt"
	"io"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/codec"
)

// O corpo é uma sequência CBOR com um item por campo, sempre nesta ordem:
// title, author, active, createDate (ordinal), maxVoters, question, numberOfOptions,
// options {int: string}, data {int: int} e, opcionalmente, votes {string: int}.
func encodeBody(w io.Writer, p domain.Poll) error {
	options := make(map[int]string, domain.MaxOptions)
	data := make(map[int]int, domain.MaxOptions)
	for i := 0; i < domain.MaxOptions; i++ {
		options[i] = p.Options[i]
		data[i] = p.Data[i]
	}
	votes := make(map[string]int, len(p.Votes))
	for voter, choice := range p.Votes {
		votes[string(voter)] = choice
	}

	enc := codec.NewEncoder(w)
	fields := []any{
		p.Title,
		p.Author,
		p.Active,
		domain.Ordinal(p.CreateDate),
		p.MaxVoters,
		p.Question,
		p.NumberOfOptions,
		options,
		data,
		votes,
	}
	for _, field := range fields {
		if err := enc.Encode(field); err != nil {
			return err
		}
	}
	return nil
}

func decodeBody(r io.Reader) (domain.Poll, error) {
	dec := codec.NewDecoder(r)
	var (
		p       domain.Poll
		ordinal int
		options map[int]string
		data    map[int]int
		votes   map[string]int
	)

	required := []any{
		&p.Title,
		&p.Author,
		&p.Active,
		&ordinal,
		&p.MaxVoters,
		&p.Question,
		&p.NumberOfOptions,
		&options,
		&data,
	}
	for i, target := range required {
		if err := dec.Decode(target); err != nil {
			return domain.Poll{}, fmt.Errorf("%w: campo %d: %v", domain.ErrMalformed, i, err)
		}
	}
	// Arquivos antigos não trazem o mapa de votos no final.
	if err := dec.Decode(&votes); err != nil && !errors.Is(err, io.EOF) {
		return domain.Poll{}, fmt.Errorf("%w: votos: %v", domain.ErrMalformed, err)
	}

	if !domain.ValidOrdinal(ordinal) {
		return domain.Poll{}, fmt.Errorf("%w: data %d", domain.ErrMalformed, ordinal)
	}
	p.CreateDate = domain.FromOrdinal(ordinal)
	for k, label := range options {
		if k < 0 || k >= domain.MaxOptions {
			return domain.Poll{}, fmt.Errorf("%w: alternativa %d", domain.ErrMalformed, k)
		}
		p.Options[k] = label
	}
	for k, count := range data {
		if k < 0 || k >= domain.MaxOptions || count < 0 {
			return domain.Poll{}, fmt.Errorf("%w: contagem %d=%d", domain.ErrMalformed, k, count)
		}
		p.Data[k] = count
	}
	p.Votes = make(map[domain.VoterID]int, len(votes))
	for voter, choice := range votes {
		p.Votes[domain.VoterID(voter)] = choice
	}
	return p, nil
}
