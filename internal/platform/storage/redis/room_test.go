package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/codec"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client, mr
}

func joinRoom(t *testing.T, client *redis.Client, self domain.PeerID, nick string) *Room {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	room, err := Join(ctx, client, "enquetes", "sala", self, nick, 16)
	require.NoError(t, err)
	t.Cleanup(func() { room.Close() })
	return room
}

func proximoEvento(t *testing.T, room *Room) domain.PeerEvent {
	t.Helper()
	select {
	case ev, ok := <-room.Events():
		require.True(t, ok, "canal de eventos fechado")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("nenhum evento recebido")
		return domain.PeerEvent{}
	}
}

func TestRoom_Join_QuandoDoisParticipantes_DeveEmitirPresencaParaAmbos(t *testing.T) {
	client, _ := setupRedis(t)

	// Arrange
	alice := joinRoom(t, client, "peer-a", "alice")
	bob := joinRoom(t, client, "peer-b", "bob")

	// Act
	evAlice := proximoEvento(t, alice)
	evBob := proximoEvento(t, bob)

	// Assert
	assert.Equal(t, domain.PeerJoined, evAlice.Kind)
	assert.Equal(t, domain.PeerID("peer-b"), evAlice.From)
	assert.Equal(t, "bob", evAlice.Nick)

	assert.Equal(t, domain.PeerJoined, evBob.Kind)
	assert.Equal(t, domain.PeerID("peer-a"), evBob.From)
	assert.Equal(t, "alice", evBob.Nick)

	nick, ok := bob.Resolve("peer-a")
	assert.True(t, ok)
	assert.Equal(t, "alice", nick)
}

func TestRoom_Broadcast_QuandoPublicado_DeveEntregarATodosInclusiveRemetente(t *testing.T) {
	client, _ := setupRedis(t)
	alice := joinRoom(t, client, "peer-a", "alice")
	bob := joinRoom(t, client, "peer-b", "bob")
	proximoEvento(t, alice)
	proximoEvento(t, bob)

	// Act
	err := bob.Broadcast(context.Background(), []byte("ola"))
	require.NoError(t, err)

	// Assert
	evAlice := proximoEvento(t, alice)
	assert.Equal(t, domain.PeerMessage, evAlice.Kind)
	assert.Equal(t, domain.PeerID("peer-b"), evAlice.From)
	assert.Equal(t, "bob", evAlice.Nick)
	assert.Equal(t, []byte("ola"), evAlice.Payload)

	// Sem supressão de loopback: o próprio remetente também recebe.
	evBob := proximoEvento(t, bob)
	assert.Equal(t, domain.PeerMessage, evBob.Kind)
	assert.Equal(t, bob.Self(), evBob.From)
}

func TestRoom_Send_QuandoDireto_DeveEntregarSomenteAoDestinatario(t *testing.T) {
	client, _ := setupRedis(t)
	alice := joinRoom(t, client, "peer-a", "alice")
	bob := joinRoom(t, client, "peer-b", "bob")
	carol := joinRoom(t, client, "peer-c", "carol")
	// alice vê bob e carol; bob vê alice e carol; carol vê alice e bob.
	for i := 0; i < 2; i++ {
		proximoEvento(t, alice)
		proximoEvento(t, bob)
		proximoEvento(t, carol)
	}

	// Act
	require.NoError(t, alice.Send(context.Background(), bob.Self(), []byte("so para bob")))

	// Assert
	ev := proximoEvento(t, bob)
	assert.Equal(t, domain.PeerMessage, ev.Kind)
	assert.Equal(t, []byte("so para bob"), ev.Payload)

	select {
	case ev := <-carol.Events():
		t.Fatalf("carol nao deveria receber nada, recebeu %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRoom_Close_QuandoParticipanteSai_DeveEmitirSaidaComApelido(t *testing.T) {
	client, _ := setupRedis(t)
	alice := joinRoom(t, client, "peer-a", "alice")
	bob := joinRoom(t, client, "peer-b", "bob")
	proximoEvento(t, alice)
	proximoEvento(t, bob)

	// Act
	require.NoError(t, bob.Close())

	// Assert
	ev := proximoEvento(t, alice)
	assert.Equal(t, domain.PeerLeft, ev.Kind)
	assert.Equal(t, domain.PeerID("peer-b"), ev.From)
	assert.Equal(t, "bob", ev.Nick)

	_, ok := alice.Resolve("peer-b")
	assert.False(t, ok)

	_, aberto := <-bob.Events()
	assert.False(t, aberto, "eventos de bob devem ser fechados")
}

func TestRoom_Handle_QuandoEnvelopeInvalido_DeveDescartar(t *testing.T) {
	client, _ := setupRedis(t)
	alice := joinRoom(t, client, "peer-a", "alice")

	// Act
	require.NoError(t, client.Publish(context.Background(), "enquetes:sala", "nao e cbor").Err())
	require.NoError(t, client.Publish(context.Background(), "enquetes:sala", mustEnvelope(t, envelope{Kind: envelopeData, From: "peer-x", Payload: []byte("ok")})).Err())

	// Assert: o lixo é ignorado e a mensagem seguinte chega normalmente.
	ev := proximoEvento(t, alice)
	assert.Equal(t, domain.PeerMessage, ev.Kind)
	assert.Equal(t, domain.PeerID("peer-x"), ev.From)
	assert.Equal(t, "", ev.Nick)
}

func TestJoin_QuandoClienteNulo_DeveRetornarErro(t *testing.T) {
	_, err := Join(context.Background(), nil, "enquetes", "sala", "peer-a", "alice", 1)

	assert.Error(t, err)
}

func mustEnvelope(t *testing.T, env envelope) []byte {
	payload, err := codec.Marshal(env)
	require.NoError(t, err)
	return payload
}

func TestConnect_QuandoServidorDisponivel_DeveResponderPing(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestConnect_QuandoServidorFora_DeveRetornarErro(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := Connect(ctx, Options{Addr: addr})
	assert.Error(t, err)
	assert.Nil(t, client)
}
