// Pacote polls coordena criação, votação e encerramento de enquetes sobre um PollStore,
// repassando as mutações locais para a sessão de compartilhamento quando houver uma.
package polls

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/identity"
	"github.com/marcelojr/enquetes/internal/platform/logger"
	"github.com/marcelojr/enquetes/internal/platform/metrics"
)

const (
	origemLocal = "local"
	origemPar   = "peer"
)

// Service é o único ponto de escrita no armazenamento. Todas as operações passam pelo mesmo mutex,
// então a interface e a sessão de compartilhamento nunca intercalam escritas.
type Service struct {
	mu          sync.Mutex
	store       domain.PollStore
	clock       domain.Clock
	nick        string
	voter       domain.VoterID
	broadcaster domain.Broadcaster
}

func NewService(store domain.PollStore, clock domain.Clock, nick string) *Service {
	return &Service{
		store: store,
		clock: clock,
		nick:  nick,
		voter: identity.PseudonymFor(nick),
	}
}

func (s *Service) Nick() string {
	return s.nick
}

// VoterID é o pseudônimo do usuário local.
func (s *Service) VoterID() domain.VoterID {
	return s.voter
}

// Attach liga a sessão de compartilhamento; a partir daqui salvar, votar e encerrar são difundidos.
func (s *Service) Attach(b domain.Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

func (s *Service) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = nil
}

// NewBlank devolve o rascunho vazio do "construir enquete", de autoria do usuário local.
func (s *Service) NewBlank() domain.Poll {
	return domain.NewBlankPoll(s.nick, s.clock.Agora())
}

// Create monta um rascunho preenchido. Nada é gravado até Save.
func (s *Service) Create(title, question string, options []string, maxVoters int) domain.Poll {
	return domain.NewPoll(s.nick, title, question, options, maxVoters, s.clock.Agora())
}

// Save valida o rascunho, ativa, grava com índice e anuncia aos pares.
// Título e autor ficam fixos depois disso: salvar de novo uma enquete ativa zeraria a apuração.
func (s *Service) Save(ctx context.Context, draft domain.Poll) (domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := draft.Clone()
	p.Author = s.nick
	if p.CreateDate.IsZero() {
		p.CreateDate = domain.Day(s.clock.Agora())
	}
	p.Data = [domain.MaxOptions]int{}
	p.Votes = make(map[domain.VoterID]int)

	if err := p.Activate(); err != nil {
		return domain.Poll{}, err
	}

	existing, err := s.store.Get(ctx, p.ID())
	switch {
	case err == nil && (existing.Active || existing.VoteCount() > 0):
		return domain.Poll{}, fmt.Errorf("%w: %s", domain.ErrAlreadyActive, p.Title)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Poll{}, err
	}

	if err := s.store.Put(ctx, p, true); err != nil {
		return domain.Poll{}, err
	}
	logger.Info("enquete ativada", "poll", p.ID(), "titulo", p.Title)
	s.announce(ctx, p)
	return p, nil
}

// EnsureDefault cria a enquete de boas-vindas quando o armazenamento está vazio.
func (s *Service) EnsureDefault(ctx context.Context) (bool, error) {
	summaries, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	if len(summaries) > 0 {
		return false, nil
	}

	p := s.Create(
		s.nick+" Favorite Color",
		"What is your favorite color?",
		[]string{"Green", "Red", "Blue", "Orange", "None of the above"},
		20,
	)
	if _, err := s.Save(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id domain.PollID) (domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(ctx, id)
}

func (s *Service) Results(ctx context.Context, id domain.PollID) ([]domain.Result, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Results(), nil
}

// Vote registra o voto do usuário local e o repassa aos pares.
func (s *Service) Vote(ctx context.Context, id domain.PollID, choice int) (domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Poll{}, err
	}
	if err := p.RegisterVote(choice, s.voter); err != nil {
		metrics.ObserveVote(origemLocal, statusDoVoto(err))
		return domain.Poll{}, err
	}
	if err := s.store.Put(ctx, p, true); err != nil {
		return domain.Poll{}, err
	}
	metrics.ObserveVote(origemLocal, statusDoVoto(nil))

	if s.broadcaster != nil {
		vote := domain.Vote{Author: p.Author, Title: p.Title, Choice: choice, VoterID: s.voter}
		if err := s.broadcaster.BroadcastVote(ctx, vote); err != nil {
			logger.Warn("falha ao difundir voto", "poll", id, "err", err)
		}
	}
	return p, nil
}

// Close encerra manualmente; só o autor pode.
func (s *Service) Close(ctx context.Context, id domain.PollID, requester string) (domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Poll{}, err
	}
	if p.Author != requester {
		return domain.Poll{}, domain.ErrNotAuthor
	}
	if !p.Active {
		return p, nil
	}
	p.Close()
	if err := s.store.Put(ctx, p, true); err != nil {
		return domain.Poll{}, err
	}
	s.announce(ctx, p)
	return p, nil
}

// Delete remove corpo e entrada do índice. Quem estava exibindo a enquete volta ao rascunho vazio.
func (s *Service) Delete(ctx context.Context, id domain.PollID, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, id, requester); err != nil {
		return err
	}
	logger.Info("enquete removida", "poll", id)
	return nil
}

// MyPolls carrega as enquetes de autoria do usuário local, as únicas que anunciamos aos pares.
func (s *Service) MyPolls(ctx context.Context) ([]domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollsBy(ctx, s.nick)
}

// ApplyAnnounce é a única regra de mesclagem: o último anúncio recebido vence.
func (s *Service) ApplyAnnounce(ctx context.Context, p domain.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Votes == nil {
		p.Votes = make(map[domain.VoterID]int)
	}
	if err := s.store.Put(ctx, p, true); err != nil {
		return fmt.Errorf("polls: mesclar anuncio %s: %w", p.ID(), err)
	}
	return nil
}

// ApplyRemoteVote aplica um voto vindo de um par. Recusas não têm para quem voltar, então só viram log.
func (s *Service) ApplyRemoteVote(ctx context.Context, v domain.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.IdentifierFor(v.Title, v.Author)
	p, err := s.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.ObserveVote(origemPar, "unknown_poll")
		logger.Debug("voto de par para enquete desconhecida ignorado", "autor", v.Author, "titulo", v.Title)
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.RegisterVote(v.Choice, v.VoterID); err != nil {
		metrics.ObserveVote(origemPar, statusDoVoto(err))
		logger.Debug("voto de par ignorado", "poll", id, "alternativa", v.Choice, "eleitor", v.VoterID, "err", err)
		return nil
	}
	if err := s.store.Put(ctx, p, true); err != nil {
		return err
	}
	metrics.ObserveVote(origemPar, statusDoVoto(nil))
	return nil
}

// CloseAuthoredBy desativa as enquetes de um par que saiu do grupo, sem apagá-las.
func (s *Service) CloseAuthoredBy(ctx context.Context, author string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authored, err := s.pollsBy(ctx, author)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, p := range authored {
		if !p.Active {
			continue
		}
		p.Close()
		if err := s.store.Put(ctx, p, true); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

func (s *Service) pollsBy(ctx context.Context, author string) ([]domain.Poll, error) {
	summaries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []domain.Poll
	for _, summary := range summaries {
		if summary.Author != author {
			continue
		}
		p, err := s.store.Get(ctx, summary.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if errors.Is(err, domain.ErrMalformed) {
			logger.Warn("corpo de enquete corrompido, ignorando", "poll", summary.ID, "err", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Service) announce(ctx context.Context, p domain.Poll) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.AnnouncePoll(ctx, p); err != nil {
		logger.Warn("falha ao anunciar enquete", "poll", p.ID(), "err", err)
	}
}

func statusDoVoto(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrVoteCapReached):
		return "cap_reached"
	case errors.Is(err, domain.ErrPollClosed):
		return "closed"
	case errors.Is(err, domain.ErrInvalidChoice):
		return "invalid_choice"
	default:
		return "error"
	}
}
