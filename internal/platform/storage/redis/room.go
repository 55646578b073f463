package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/codec"
	"github.com/marcelojr/enquetes/internal/platform/logger"
)

type envelopeKind uint8

const (
	envelopeJoin envelopeKind = iota + 1
	envelopePresent
	envelopeLeave
	envelopeData
)

// envelope é o que trafega no pub/sub; o payload de dados é opaco para a sala.
type envelope struct {
	Kind    envelopeKind `cbor:"1,keyasint"`
	From    string       `cbor:"2,keyasint"`
	Nick    string       `cbor:"3,keyasint,omitempty"`
	Payload []byte       `cbor:"4,keyasint,omitempty"`
}

const leaveTimeout = 2 * time.Second

// Room implementa domain.PeerChannel sobre pub/sub: um canal para a sala e um canal por participante
// para envio direto. Entradas e saídas viram eventos de presença; dados são entregues inclusive ao próprio
// remetente, cabendo à sessão descartá-los.
type Room struct {
	client    *redis.Client
	self      domain.PeerID
	nick      string
	roomTopic string
	prefix    string

	pubsub *redis.PubSub
	events chan domain.PeerEvent
	done   chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	peers map[domain.PeerID]string

	closeOnce sync.Once
}

// Join assina os canais da sala, anuncia a entrada e começa a entregar eventos em Events.
func Join(ctx context.Context, client *redis.Client, prefix, room string, self domain.PeerID, nick string, queueSize int) (*Room, error) {
	if client == nil {
		return nil, fmt.Errorf("redis sala: cliente nulo")
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	base := fmt.Sprintf("%s:%s", prefix, room)
	r := &Room{
		client:    client,
		self:      self,
		nick:      nick,
		roomTopic: base,
		prefix:    base + ":peer",
		events:    make(chan domain.PeerEvent, queueSize),
		done:      make(chan struct{}),
		peers:     make(map[domain.PeerID]string),
	}

	r.pubsub = client.Subscribe(ctx, r.roomTopic, r.peerTopic(self))
	// Só anunciamos a entrada depois de confirmadas as duas assinaturas, senão perderíamos as respostas.
	for confirmed := 0; confirmed < 2; {
		msg, err := r.pubsub.Receive(ctx)
		if err != nil {
			r.pubsub.Close()
			return nil, fmt.Errorf("redis sala: assinar %s: %w", r.roomTopic, err)
		}
		if _, ok := msg.(*redis.Subscription); ok {
			confirmed++
		}
	}

	r.wg.Add(1)
	go r.loop(r.pubsub.Channel())

	if err := r.publish(ctx, r.roomTopic, envelope{Kind: envelopeJoin, From: string(self), Nick: nick}); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Room) Self() domain.PeerID {
	return r.self
}

func (r *Room) Events() <-chan domain.PeerEvent {
	return r.events
}

func (r *Room) Broadcast(ctx context.Context, payload []byte) error {
	return r.publish(ctx, r.roomTopic, envelope{Kind: envelopeData, From: string(r.self), Payload: payload})
}

func (r *Room) Send(ctx context.Context, to domain.PeerID, payload []byte) error {
	return r.publish(ctx, r.peerTopic(to), envelope{Kind: envelopeData, From: string(r.self), Payload: payload})
}

// Resolve traduz o nome de barramento de um participante conhecido para o apelido dele.
func (r *Room) Resolve(peer domain.PeerID) (string, bool) {
	if peer == r.self {
		return r.nick, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	nick, ok := r.peers[peer]
	return nick, ok
}

// Close anuncia a saída e encerra a entrega; Events é fechado depois que o laço termina.
func (r *Room) Close() error {
	var err error
	r.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if pubErr := r.publish(ctx, r.roomTopic, envelope{Kind: envelopeLeave, From: string(r.self), Nick: r.nick}); pubErr != nil {
			logger.Warn("falha ao anunciar saida da sala", "sala", r.roomTopic, "err", pubErr)
		}
		close(r.done)
		err = r.pubsub.Close()
		r.wg.Wait()
		close(r.events)
	})
	return err
}

func (r *Room) loop(ch <-chan *redis.Message) {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, deliver := r.handle(msg)
			if !deliver {
				continue
			}
			select {
			case r.events <- ev:
			case <-r.done:
				return
			}
		}
	}
}

func (r *Room) handle(msg *redis.Message) (domain.PeerEvent, bool) {
	var env envelope
	if err := codec.Unmarshal([]byte(msg.Payload), &env); err != nil {
		logger.Warn("envelope invalido descartado", "canal", msg.Channel, "err", err)
		return domain.PeerEvent{}, false
	}
	from := domain.PeerID(env.From)
	if from == "" {
		logger.Warn("envelope sem remetente descartado", "canal", msg.Channel)
		return domain.PeerEvent{}, false
	}

	switch env.Kind {
	case envelopeJoin, envelopePresent:
		if from == r.self {
			return domain.PeerEvent{}, false
		}
		if env.Kind == envelopeJoin {
			// Quem chega não conhece ninguém: respondemos direto para que nos registre também.
			ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
			reply := envelope{Kind: envelopePresent, From: string(r.self), Nick: r.nick}
			if err := r.publish(ctx, r.peerTopic(from), reply); err != nil {
				logger.Warn("falha ao responder entrada na sala", "peer", from, "err", err)
			}
			cancel()
		}
		r.mu.Lock()
		_, known := r.peers[from]
		r.peers[from] = env.Nick
		r.mu.Unlock()
		if known {
			return domain.PeerEvent{}, false
		}
		return domain.PeerEvent{Kind: domain.PeerJoined, From: from, Nick: env.Nick}, true

	case envelopeLeave:
		if from == r.self {
			return domain.PeerEvent{}, false
		}
		r.mu.Lock()
		nick, known := r.peers[from]
		delete(r.peers, from)
		r.mu.Unlock()
		if !known {
			nick = env.Nick
		}
		return domain.PeerEvent{Kind: domain.PeerLeft, From: from, Nick: nick}, true

	case envelopeData:
		nick, _ := r.Resolve(from)
		return domain.PeerEvent{Kind: domain.PeerMessage, From: from, Nick: nick, Payload: env.Payload}, true

	default:
		logger.Warn("tipo de envelope desconhecido", "tipo", env.Kind, "peer", from)
		return domain.PeerEvent{}, false
	}
}

func (r *Room) publish(ctx context.Context, topic string, env envelope) error {
	payload, err := codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis sala: serializar envelope: %w", err)
	}
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis sala: publicar em %s: %w", topic, err)
	}
	return nil
}

func (r *Room) peerTopic(peer domain.PeerID) string {
	return fmt.Sprintf("%s:%s", r.prefix, peer)
}

var _ domain.PeerChannel = (*Room)(nil)
