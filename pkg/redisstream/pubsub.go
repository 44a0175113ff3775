package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PubSub bundles the publisher and subscriber used for streamed replies.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	settings Settings
	client   *redis.Client
	channel  *gochannel.GoChannel
}

// BuildPubSub constructs the reply transport. When settings.Enabled is false an
// in-process gochannel is used; otherwise publisher and subscriber talk to Redis Streams.
func BuildPubSub(s Settings, logger watermill.LoggerAdapter) (*PubSub, error) {
	if logger == nil {
		logger = NewWatermillLogger(log.Logger)
	}
	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
			// keeps per-topic delivery in publish order
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch, settings: s, channel: ch}, nil
	}

	if strings.TrimSpace(s.Addr) == "" {
		return nil, errors.New("redis transport enabled without redis-addr")
	}
	s = s.resolved(instanceName())
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}

	return &PubSub{Publisher: pub, Subscriber: sub, settings: s, client: client}, nil
}

// Redis reports whether the transport is backed by Redis Streams.
func (p *PubSub) Redis() bool { return p.client != nil }

// Group is the consumer group this instance reads replies through; empty in memory.
func (p *PubSub) Group() string {
	if p.client == nil {
		return ""
	}
	return p.settings.Group
}

// Prepare readies topic for subscription. For Redis it creates the consumer
// group at the stream tail so a fresh group does not replay history.
func (p *PubSub) Prepare(ctx context.Context, topic string) error {
	if p.client == nil {
		return nil
	}
	return ensureGroupAtTail(ctx, p.client, topic, p.settings.Group)
}

func (p *PubSub) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	var firstErr error
	for _, c := range []interface{ Close() error }{p.Subscriber, p.Publisher, p.client} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func ensureGroupAtTail(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
