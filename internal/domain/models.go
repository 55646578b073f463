// Pacote domain concentra a entidade Poll, seus resumos e as portas usadas pelas camadas de app e plataforma.
package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxOptions é o número fixo de alternativas que uma enquete comporta.
const MaxOptions = 5

const (
	minOptions       = 2
	defaultMaxVoters = 20
)

// Tags devolvidas por Validate para destacar os campos com problema.
const (
	FieldTitle     = "title"
	FieldQuestion  = "question"
	FieldMaxVoters = "maxVoters"
	FieldOption0   = "option0"
	FieldOption1   = "option1"
	FieldOption2   = "option2"
	FieldOption3   = "option3"
)

type (
	PollID  string
	VoterID string
)

// Poll guarda definição, apuração e o registro de voto por eleitor de uma enquete.
type Poll struct {
	Title           string
	Author          string
	Active          bool
	CreateDate      time.Time
	MaxVoters       int
	Question        string
	NumberOfOptions int
	Options         [MaxOptions]string
	Data            [MaxOptions]int
	Votes           map[VoterID]int
}

// Summary é a entrada do índice: o suficiente para listar sem carregar a apuração.
type Summary struct {
	ID         PollID
	Title      string
	Author     string
	Active     bool
	CreateDate time.Time
}

// Vote é um voto isolado trafegando entre pares.
type Vote struct {
	Author  string
	Title   string
	Choice  int
	VoterID VoterID
}

// Result é uma linha do gráfico de barras.
type Result struct {
	Label   string
	Count   int
	Percent float64
}

// NewPoll monta uma enquete inativa, com apuração zerada e data do dia; a validação fica com o chamador.
func NewPoll(author, title, question string, options []string, maxVoters int, today time.Time) Poll {
	p := Poll{
		Title:           title,
		Author:          author,
		CreateDate:      Day(today),
		MaxVoters:       maxVoters,
		Question:        question,
		NumberOfOptions: MaxOptions,
		Votes:           make(map[VoterID]int),
	}
	for i := 0; i < len(options) && i < MaxOptions; i++ {
		p.Options[i] = options[i]
	}
	return p
}

// NewBlankPoll corresponde ao "construir enquete" da interface: tudo vazio exceto a data e o limite padrão.
func NewBlankPoll(author string, today time.Time) Poll {
	return NewPoll(author, "", "", nil, defaultMaxVoters, today)
}

// ID deriva o identificador de conteúdo a partir de título e autor.
func (p Poll) ID() PollID {
	return IdentifierFor(p.Title, p.Author)
}

// IdentifierFor calcula sha1(title+author) em hexadecimal, o mesmo valor usado como chave e no fio.
func IdentifierFor(title, author string) PollID {
	sum := sha1.Sum([]byte(title + author))
	return PollID(hex.EncodeToString(sum[:]))
}

func (p Poll) VoteCount() int {
	total := 0
	for _, n := range p.Data {
		total += n
	}
	return total
}

// Validate devolve as tags dos campos que impedem a ativação e recalcula NumberOfOptions.
func (p *Poll) Validate() []string {
	var failed []string
	if p.Title == "" {
		failed = append(failed, FieldTitle)
	}
	if p.Question == "" {
		failed = append(failed, FieldQuestion)
	}
	if p.MaxVoters <= 0 {
		failed = append(failed, FieldMaxVoters)
	}
	if p.Options[0] == "" {
		failed = append(failed, FieldOption0)
	}
	if p.Options[1] == "" {
		failed = append(failed, FieldOption1)
	}
	// Não pode haver buraco: a alternativa k só vale se a k-1 estiver preenchida.
	if p.Options[3] != "" && p.Options[2] == "" {
		failed = append(failed, FieldOption2)
	}
	if p.Options[4] != "" && p.Options[3] == "" {
		failed = append(failed, FieldOption3)
	}

	p.NumberOfOptions = contiguousOptions(p.Options)
	return failed
}

func contiguousOptions(options [MaxOptions]string) int {
	n := minOptions
	for n < MaxOptions && options[n] != "" {
		n++
	}
	return n
}

// Activate valida e, se estiver tudo certo, abre a enquete para votos.
func (p *Poll) Activate() error {
	if failed := p.Validate(); len(failed) > 0 {
		return &ValidationError{Fields: failed}
	}
	p.Active = true
	return nil
}

// RegisterVote contabiliza o voto; um eleitor que já votou tem a escolha anterior descontada antes.
func (p *Poll) RegisterVote(choice int, voter VoterID) error {
	if p.VoteCount() >= p.MaxVoters {
		return ErrVoteCapReached
	}
	if !p.Active {
		return ErrPollClosed
	}
	if choice < 0 || choice >= p.optionLimit() {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}
	if p.Votes == nil {
		p.Votes = make(map[VoterID]int)
	}

	if old, ok := p.Votes[voter]; ok && old >= 0 && old < MaxOptions && p.Data[old] > 0 {
		p.Data[old]--
	}
	p.Votes[voter] = choice
	p.Data[choice]++

	if p.VoteCount() >= p.MaxVoters {
		p.Active = false
	}
	return nil
}

func (p Poll) optionLimit() int {
	if p.NumberOfOptions < minOptions || p.NumberOfOptions > MaxOptions {
		return MaxOptions
	}
	return p.NumberOfOptions
}

// Close encerra a enquete manualmente. Encerrada, ela continua listável.
func (p *Poll) Close() {
	p.Active = false
}

func (p Poll) Summary() Summary {
	return Summary{
		ID:         p.ID(),
		Title:      p.Title,
		Author:     p.Author,
		Active:     p.Active,
		CreateDate: p.CreateDate,
	}
}

// Results calcula contagem e percentual de cada alternativa em uso.
func (p Poll) Results() []Result {
	total := p.VoteCount()
	n := p.optionLimit()
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		results[i] = Result{Label: p.Options[i], Count: p.Data[i]}
		if total > 0 {
			results[i].Percent = float64(p.Data[i]) / float64(total) * 100
		}
	}
	return results
}

// Clone devolve uma cópia com o mapa de votos independente.
func (p Poll) Clone() Poll {
	votes := make(map[VoterID]int, len(p.Votes))
	for k, v := range p.Votes {
		votes[k] = v
	}
	p.Votes = votes
	return p
}
