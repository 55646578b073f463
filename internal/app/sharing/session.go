// Pacote sharing implementa a sessão de compartilhamento: anuncia enquetes próprias a quem entra no grupo,
// repassa votos e mescla o que chega dos pares no armazenamento local.
package sharing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/logger"
	"github.com/marcelojr/enquetes/internal/platform/metrics"
)

type State int32

const (
	StateJoining State = iota
	StateAnnouncing
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateAnnouncing:
		return "announcing"
	case StateSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Polls é o que a sessão precisa do serviço de enquetes.
type Polls interface {
	MyPolls(ctx context.Context) ([]domain.Poll, error)
	ApplyAnnounce(ctx context.Context, p domain.Poll) error
	ApplyRemoteVote(ctx context.Context, v domain.Vote) error
	CloseAuthoredBy(ctx context.Context, author string) (int, error)
}

// Resolver traduz o nome de barramento de um par para o apelido persistente dele.
type Resolver func(peer domain.PeerID) (string, bool)

// Session consome os eventos do canal um de cada vez, sempre na goroutine de Run.
type Session struct {
	channel    domain.PeerChannel
	polls      Polls
	resolve    Resolver
	antifraude domain.Antifraude
	state      atomic.Int32

	mu    sync.Mutex
	peers map[domain.PeerID]string

	stopOnce sync.Once
}

func NewSession(channel domain.PeerChannel, polls Polls, resolve Resolver) *Session {
	return &Session{
		channel: channel,
		polls:   polls,
		resolve: resolve,
		peers:   make(map[domain.PeerID]string),
	}
}

// WithAntifraude passa a frear votos repassados por um mesmo par; sem ele todo voto válido é aplicado.
func (s *Session) WithAntifraude(a domain.Antifraude) *Session {
	s.antifraude = a
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) StateName() string {
	return s.State().String()
}

// Start entra no protocolo. Quem iniciou o compartilhamento espera passivamente; quem entrou manda Hello.
func (s *Session) Start(ctx context.Context, asInitiator bool) error {
	if asInitiator {
		logger.Info("compartilhamento iniciado, aguardando pares", "peer", s.channel.Self())
		s.state.Store(int32(StateSteady))
		return nil
	}
	s.state.Store(int32(StateJoining))
	logger.Info("entrando no grupo, enviando hello", "peer", s.channel.Self())
	if err := s.broadcast(ctx, message{Kind: kindHello}); err != nil {
		return err
	}
	// Uma resposta processada antes daqui já pode ter levado a sessão a steady.
	s.state.CompareAndSwap(int32(StateJoining), int32(StateAnnouncing))
	return nil
}

// Run drena a fila de eventos até o contexto acabar ou o canal ser fechado.
func (s *Session) Run(ctx context.Context) error {
	events := s.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			start := time.Now()
			s.handle(ctx, ev)
			metrics.ObserveHandleDuration(time.Since(start).Seconds())
		}
	}
}

// Stop sai do grupo; Run termina quando o canal fecha a fila de eventos.
func (s *Session) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		err = s.channel.Close()
	})
	return err
}

// AnnouncePoll difunde uma enquete própria recém salva ou encerrada.
func (s *Session) AnnouncePoll(ctx context.Context, p domain.Poll) error {
	return s.broadcast(ctx, message{Kind: kindUpdatedPoll, Poll: recordFromPoll(p)})
}

func (s *Session) BroadcastVote(ctx context.Context, v domain.Vote) error {
	return s.broadcast(ctx, message{Kind: kindVote, Vote: &voteRecord{
		Author:  v.Author,
		Title:   v.Title,
		Choice:  v.Choice,
		VoterID: string(v.VoterID),
	}})
}

// Refresh pede a cada par conhecido que mande de novo as enquetes dele.
func (s *Session) Refresh(ctx context.Context) error {
	var errs []error
	for _, peer := range s.knownPeers() {
		if err := s.send(ctx, peer, message{Kind: kindPollsWanted}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Peers devolve os apelidos dos pares presentes, indexados pelo nome de barramento.
func (s *Session) Peers() map[domain.PeerID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[domain.PeerID]string, len(s.peers))
	for id, nick := range s.peers {
		result[id] = nick
	}
	return result
}

func (s *Session) handle(ctx context.Context, ev domain.PeerEvent) {
	switch ev.Kind {
	case domain.PeerJoined:
		s.mu.Lock()
		s.peers[ev.From] = ev.Nick
		s.mu.Unlock()
		logger.Info("par entrou no grupo", "peer", ev.From, "apelido", ev.Nick)

	case domain.PeerLeft:
		s.peerLeft(ctx, ev)

	case domain.PeerMessage:
		// O canal não suprime o eco, então tudo que nós mesmos enviamos volta aqui.
		if ev.From == s.channel.Self() {
			metrics.IncDropped("self")
			return
		}
		m, err := decodeMessage(ev.Payload)
		if err != nil {
			metrics.IncDropped("malformed")
			logger.Warn("mensagem de par descartada", "peer", ev.From, "err", err)
			return
		}
		metrics.ObserveMessage(m.Kind.String(), "in")
		s.dispatch(ctx, ev.From, m)
	}
}

func (s *Session) dispatch(ctx context.Context, from domain.PeerID, m message) {
	switch m.Kind {
	case kindHello:
		logger.Debug("hello recebido, enviando enquetes", "peer", from)
		s.sendMyPolls(ctx, from)
		if err := s.broadcast(ctx, message{Kind: kindHelloBack, Recipient: string(from)}); err != nil {
			logger.Warn("falha ao responder hello", "peer", from, "err", err)
		}

	case kindHelloBack:
		if m.Recipient != string(s.channel.Self()) {
			return
		}
		s.sendMyPolls(ctx, from)
		s.settle()

	case kindPollsWanted:
		s.sendMyPolls(ctx, from)

	case kindUpdatedPoll, kindUpdatePoll:
		p, err := m.Poll.toPoll()
		if err != nil {
			metrics.IncDropped("malformed")
			logger.Warn("enquete de par descartada", "peer", from, "err", err)
			return
		}
		if err := s.polls.ApplyAnnounce(ctx, p); err != nil {
			logger.Error("falha ao mesclar enquete de par", "peer", from, "poll", p.ID(), "err", err)
			return
		}
		if m.Kind == kindUpdatePoll {
			s.settle()
		}

	case kindVote:
		v, err := m.Vote.toVote()
		if err != nil {
			metrics.IncDropped("malformed")
			logger.Warn("voto de par descartado", "peer", from, "err", err)
			return
		}
		if s.antifraude != nil {
			if err := s.antifraude.Validar(ctx, from, v); err != nil {
				metrics.IncDropped("rate_limited")
				logger.Warn("voto de par bloqueado pelo antifraude", "peer", from, "poll", domain.IdentifierFor(v.Title, v.Author), "err", err)
				return
			}
		}
		if err := s.polls.ApplyRemoteVote(ctx, v); err != nil {
			logger.Error("falha ao aplicar voto de par", "peer", from, "err", err)
		}
	}
}

// peerLeft fecha as enquetes de quem saiu: não há mais para quem mandar votos.
func (s *Session) peerLeft(ctx context.Context, ev domain.PeerEvent) {
	s.mu.Lock()
	nick, known := s.peers[ev.From]
	delete(s.peers, ev.From)
	s.mu.Unlock()

	if ev.Nick != "" {
		nick = ev.Nick
	} else if !known && s.resolve != nil {
		nick, known = s.resolve(ev.From)
	}
	if nick == "" {
		logger.Warn("par desconhecido saiu do grupo", "peer", ev.From)
		return
	}

	closed, err := s.polls.CloseAuthoredBy(ctx, nick)
	if err != nil {
		logger.Error("falha ao encerrar enquetes de par ausente", "apelido", nick, "err", err)
		return
	}
	logger.Info("par saiu do grupo", "peer", ev.From, "apelido", nick, "enquetes_encerradas", closed)
}

func (s *Session) sendMyPolls(ctx context.Context, to domain.PeerID) {
	mine, err := s.polls.MyPolls(ctx)
	if err != nil {
		logger.Error("falha ao carregar enquetes proprias", "err", err)
		return
	}
	for _, p := range mine {
		if err := s.send(ctx, to, message{Kind: kindUpdatePoll, Poll: recordFromPoll(p)}); err != nil {
			logger.Warn("falha ao enviar enquete", "peer", to, "poll", p.ID(), "err", err)
		}
	}
}

func (s *Session) settle() {
	if s.state.CompareAndSwap(int32(StateAnnouncing), int32(StateSteady)) ||
		s.state.CompareAndSwap(int32(StateJoining), int32(StateSteady)) {
		logger.Debug("sessao sincronizada", "peer", s.channel.Self())
	}
}

func (s *Session) knownPeers() []domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]domain.PeerID, 0, len(s.peers))
	for id := range s.peers {
		peers = append(peers, id)
	}
	return peers
}

func (s *Session) broadcast(ctx context.Context, m message) error {
	payload, err := encodeMessage(m)
	if err != nil {
		return err
	}
	if err := s.channel.Broadcast(ctx, payload); err != nil {
		return err
	}
	metrics.ObserveMessage(m.Kind.String(), "out")
	return nil
}

func (s *Session) send(ctx context.Context, to domain.PeerID, m message) error {
	payload, err := encodeMessage(m)
	if err != nil {
		return err
	}
	if err := s.channel.Send(ctx, to, payload); err != nil {
		return err
	}
	metrics.ObserveMessage(m.Kind.String(), "out")
	return nil
}

var _ domain.Broadcaster = (*Session)(nil)
