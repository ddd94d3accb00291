// Package events publishes session activity to Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
)

var ErrPublisherClosed = errors.New("publisher closed")

const (
	queueSize      = 256
	publishTimeout = 3 * time.Second
)

// Publisher sends every observed activity as JSON to one Redis channel.
// Observe never blocks; activity is dropped when the queue is full.
type Publisher struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

// Dial connects to the Redis server at url and checks it answers.
func Dial(ctx context.Context, url, channel string) (*Publisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewPublisher(rdb, channel), nil
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	p := &Publisher{
		rdb:     rdb,
		channel: channel,
		log:     logging.For("events"),
		queue:   make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) Channel() string {
	return p.channel
}

func (p *Publisher) Observe(a player.Activity) {
	b, err := json.Marshal(a)
	if err != nil {
		p.log.Error("Failed to encode activity", "type", a.Type, "error", err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- b:
	default:
		p.log.Warn("Activity dropped (queue full)", "type", a.Type, "guild", a.GuildID)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.rdb.Publish(ctx, p.channel, msg).Err(); err != nil {
			p.log.Warn("Publish failed", "channel", p.channel, "error", err)
		}
		cancel()
	}
}

// Subscribe calls fn with every payload on the channel until ctx ends.
func (p *Publisher) Subscribe(ctx context.Context, fn func(payload []byte)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(msg.Payload))
		}
	}
}

// Close flushes queued activity and closes the Redis client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.rdb.Close()
}
