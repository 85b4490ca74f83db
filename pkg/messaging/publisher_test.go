package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/noah-isme/demandes-api/pkg/config"
)

type listStub struct {
	key    string
	values []interface{}
	err    error
}

func (s *listStub) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	s.key = key
	s.values = append(s.values, values...)
	cmd := redis.NewIntCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	cmd.SetVal(int64(len(s.values)))
	return cmd
}

type producerStub struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (p *producerStub) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func (p *producerStub) Close() { p.closed = true }

func sampleMessage() Message {
	return Message{
		ID:          "n-1",
		RecipientID: "u-1",
		DemandeID:   "d-1",
		Reference:   "AUT-20261018-000001",
		Type:        "SUBMITTED",
		Text:        "request AUT-20261018-000001 is now SUBMITTED",
		CreatedAt:   time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisListPublisher(t *testing.T) {
	stub := &listStub{}
	pub := NewRedisListPublisher(stub, "")
	require.NoError(t, pub.Publish(context.Background(), sampleMessage()))
	require.Equal(t, "demandes:notifications", stub.key)
	require.Len(t, stub.values, 1)

	var decoded Message
	require.NoError(t, json.Unmarshal(stub.values[0].([]byte), &decoded))
	require.Equal(t, "u-1", decoded.RecipientID)

	stub.err = errors.New("down")
	require.Error(t, pub.Publish(context.Background(), sampleMessage()))
}

func TestKafkaPublisherKeysByRecipient(t *testing.T) {
	stub := &producerStub{}
	pub := &KafkaPublisher{client: stub, topic: "demandes.notifications"}
	require.NoError(t, pub.Publish(context.Background(), sampleMessage()))
	require.Len(t, stub.records, 1)
	require.Equal(t, []byte("u-1"), stub.records[0].Key)
	require.Equal(t, "demandes.notifications", stub.records[0].Topic)

	stub.err = errors.New("not leader")
	require.Error(t, pub.Publish(context.Background(), sampleMessage()))
	require.NoError(t, pub.Close())
	require.True(t, stub.closed)
}

func TestNewSelectsTransport(t *testing.T) {
	pub, err := New(config.NotificationsConfig{Transport: config.TransportNone}, Deps{})
	require.NoError(t, err)
	require.IsType(t, NopPublisher{}, pub)

	_, err = New(config.NotificationsConfig{Transport: config.TransportRedis}, Deps{})
	require.Error(t, err)

	pub, err = New(config.NotificationsConfig{Transport: config.TransportRedis, RedisListKey: "k"}, Deps{Redis: &listStub{}})
	require.NoError(t, err)
	require.IsType(t, &RedisListPublisher{}, pub)

	_, err = New(config.NotificationsConfig{Transport: config.TransportKafka}, Deps{})
	require.Error(t, err)

	_, err = New(config.NotificationsConfig{Transport: "smtp"}, Deps{})
	require.Error(t, err)
}
