package sharing

import (
	"fmt"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/codec"
)

type messageKind uint8

const (
	kindHello messageKind = iota + 1
	kindHelloBack
	kindUpdatedPoll
	kindUpdatePoll
	kindPollsWanted
	kindVote
)

func (k messageKind) String() string {
	switch k {
	case kindHello:
		return "hello"
	case kindHelloBack:
		return "hello_back"
	case kindUpdatedPoll:
		return "updated_poll"
	case kindUpdatePoll:
		return "update_poll"
	case kindPollsWanted:
		return "polls_wanted"
	case kindVote:
		return "vote"
	default:
		return "unknown"
	}
}

// message é o formato no fio. Hello e PollsWanted não têm corpo; HelloBack carrega o destinatário;
// UpdatedPoll (difusão) e UpdatePoll (direto) carregam a enquete inteira; Vote carrega um voto.
type message struct {
	Kind      messageKind `cbor:"1,keyasint"`
	Recipient string      `cbor:"2,keyasint,omitempty"`
	Poll      *pollRecord `cbor:"3,keyasint,omitempty"`
	Vote      *voteRecord `cbor:"4,keyasint,omitempty"`
}

type optionRecord struct {
	Label string `cbor:"1,keyasint"`
	Count int    `cbor:"2,keyasint"`
}

// pollRecord tem forma fixa: até cinco pares alternativa/contagem e o mapa eleitor -> alternativa.
type pollRecord struct {
	Title           string         `cbor:"1,keyasint"`
	Author          string         `cbor:"2,keyasint"`
	Active          bool           `cbor:"3,keyasint"`
	CreateDate      int            `cbor:"4,keyasint"`
	MaxVoters       int            `cbor:"5,keyasint"`
	Question        string         `cbor:"6,keyasint"`
	NumberOfOptions int            `cbor:"7,keyasint"`
	Options         []optionRecord `cbor:"8,keyasint"`
	Votes           map[string]int `cbor:"9,keyasint"`
}

type voteRecord struct {
	Author  string `cbor:"1,keyasint"`
	Title   string `cbor:"2,keyasint"`
	Choice  int    `cbor:"3,keyasint"`
	VoterID string `cbor:"4,keyasint"`
}

func recordFromPoll(p domain.Poll) *pollRecord {
	r := &pollRecord{
		Title:           p.Title,
		Author:          p.Author,
		Active:          p.Active,
		CreateDate:      domain.Ordinal(p.CreateDate),
		MaxVoters:       p.MaxVoters,
		Question:        p.Question,
		NumberOfOptions: p.NumberOfOptions,
		Options:         make([]optionRecord, domain.MaxOptions),
		Votes:           make(map[string]int, len(p.Votes)),
	}
	for i := 0; i < domain.MaxOptions; i++ {
		r.Options[i] = optionRecord{Label: p.Options[i], Count: p.Data[i]}
	}
	for voter, choice := range p.Votes {
		r.Votes[string(voter)] = choice
	}
	return r
}

// toPoll recusa registros que quebrariam os invariantes locais da enquete.
func (r *pollRecord) toPoll() (domain.Poll, error) {
	switch {
	case r.Title == "" || r.Author == "":
		return domain.Poll{}, fmt.Errorf("%w: enquete sem titulo ou autor", domain.ErrMalformed)
	case r.MaxVoters <= 0:
		return domain.Poll{}, fmt.Errorf("%w: maxVoters %d", domain.ErrMalformed, r.MaxVoters)
	case !domain.ValidOrdinal(r.CreateDate):
		return domain.Poll{}, fmt.Errorf("%w: data %d", domain.ErrMalformed, r.CreateDate)
	case r.NumberOfOptions < 2 || r.NumberOfOptions > domain.MaxOptions:
		return domain.Poll{}, fmt.Errorf("%w: %d alternativas", domain.ErrMalformed, r.NumberOfOptions)
	case len(r.Options) > domain.MaxOptions:
		return domain.Poll{}, fmt.Errorf("%w: %d pares de alternativa", domain.ErrMalformed, len(r.Options))
	}

	p := domain.Poll{
		Title:           r.Title,
		Author:          r.Author,
		Active:          r.Active,
		CreateDate:      domain.FromOrdinal(r.CreateDate),
		MaxVoters:       r.MaxVoters,
		Question:        r.Question,
		NumberOfOptions: r.NumberOfOptions,
		Votes:           make(map[domain.VoterID]int, len(r.Votes)),
	}
	for i, opt := range r.Options {
		if opt.Count < 0 {
			return domain.Poll{}, fmt.Errorf("%w: contagem negativa na alternativa %d", domain.ErrMalformed, i)
		}
		p.Options[i] = opt.Label
		p.Data[i] = opt.Count
	}
	if p.VoteCount() > p.MaxVoters {
		return domain.Poll{}, fmt.Errorf("%w: %d votos para limite %d", domain.ErrMalformed, p.VoteCount(), p.MaxVoters)
	}
	for voter, choice := range r.Votes {
		if choice < 0 || choice >= domain.MaxOptions {
			return domain.Poll{}, fmt.Errorf("%w: voto %d de %s", domain.ErrMalformed, choice, voter)
		}
		p.Votes[domain.VoterID(voter)] = choice
	}
	return p, nil
}

func (r *voteRecord) toVote() (domain.Vote, error) {
	if r.Author == "" || r.Title == "" || r.VoterID == "" {
		return domain.Vote{}, fmt.Errorf("%w: voto incompleto", domain.ErrMalformed)
	}
	return domain.Vote{Author: r.Author, Title: r.Title, Choice: r.Choice, VoterID: domain.VoterID(r.VoterID)}, nil
}

func encodeMessage(m message) ([]byte, error) {
	payload, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("sharing: serializar %s: %w", m.Kind, err)
	}
	return payload, nil
}

// decodeMessage garante que cada tipo traz o corpo que lhe cabe.
func decodeMessage(payload []byte) (message, error) {
	var m message
	if err := codec.Unmarshal(payload, &m); err != nil {
		return message{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	switch m.Kind {
	case kindHello, kindPollsWanted:
	case kindHelloBack:
		if m.Recipient == "" {
			return message{}, fmt.Errorf("%w: hello_back sem destinatario", domain.ErrMalformed)
		}
	case kindUpdatedPoll, kindUpdatePoll:
		if m.Poll == nil {
			return message{}, fmt.Errorf("%w: %s sem enquete", domain.ErrMalformed, m.Kind)
		}
	case kindVote:
		if m.Vote == nil {
			return message{}, fmt.Errorf("%w: vote sem voto", domain.ErrMalformed)
		}
	default:
		return message{}, fmt.Errorf("%w: tipo %d", domain.ErrMalformed, m.Kind)
	}
	return m, nil
}
