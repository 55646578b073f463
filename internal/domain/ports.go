package domain

import (
	"context"
	"time"
)

// PollStore é a coleção durável de enquetes com um índice de resumos separado dos corpos.
type PollStore interface {
	Put(ctx context.Context, p Poll, updateIndex bool) error
	Get(ctx context.Context, id PollID) (Poll, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id PollID, requester string) error
	Ping(ctx context.Context) error
}

// Broadcaster é o lado de envio de uma sessão de compartilhamento ativa.
type Broadcaster interface {
	AnnouncePoll(ctx context.Context, p Poll) error
	BroadcastVote(ctx context.Context, v Vote) error
}

type Clock interface {
	Agora() time.Time
}

// PeerID é o nome opaco de um participante no barramento do grupo.
type PeerID string

type PeerEventKind int

const (
	PeerMessage PeerEventKind = iota
	PeerJoined
	PeerLeft
)

// PeerEvent é o que o canal entrega à sessão, um de cada vez e na ordem de chegada.
type PeerEvent struct {
	Kind    PeerEventKind
	From    PeerID
	Nick    string
	Payload []byte
}

// PeerChannel abstrai o grupo de mensagens: difusão, envio direto e a fila de eventos de entrada.
type PeerChannel interface {
	Self() PeerID
	Broadcast(ctx context.Context, payload []byte) error
	Send(ctx context.Context, to PeerID, payload []byte) error
	Events() <-chan PeerEvent
	Close() error
}

// Antifraude decide se um voto repassado por um par ainda cabe na janela permitida.
type Antifraude interface {
	Validar(ctx context.Context, from PeerID, voto Vote) error
}
