package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/pkg/ports"
)

// StreamsEventBus implements EventBus using Redis Streams.
//
// Each instance should use its own consumer group so that every instance
// sees every snapshot. Within an instance one group reader per topic fans
// every message out to all local handlers.
type StreamsEventBus struct {
	client        *redis.Client
	logger        *zap.Logger
	consumerGroup string
	consumerName  string
	maxLen        int64

	mu      sync.Mutex
	readers map[string]*topicReader
	nextID  uint64
	wg      sync.WaitGroup
}

// topicReader is the single group reader of one topic and its handlers.
type topicReader struct {
	ctx      context.Context
	cancel   context.CancelFunc
	handlers map[uint64]ports.EventHandler
}

// NewStreamsEventBus creates a new Redis Streams event bus. Streams are
// trimmed to roughly maxLen entries; zero disables trimming.
func NewStreamsEventBus(client *redis.Client, consumerGroup, consumerName string, maxLen int64, logger *zap.Logger) (*StreamsEventBus, error) {
	if consumerGroup == "" || consumerName == "" {
		return nil, fmt.Errorf("consumer group and consumer name are required")
	}
	return &StreamsEventBus{
		client:        client,
		logger:        logger,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		maxLen:        maxLen,
		readers:       make(map[string]*topicReader),
	}, nil
}

// Publish publishes an event to the appropriate stream topic
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	streamKey := getStreamKey(topic)

	// Serialize event
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Add to stream
	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}

	if _, err := e.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("session_id", event.SessionID),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe adds handler to a topic. Every handler of the topic receives
// every event. The handler is removed when ctx is cancelled; reading stops
// when the topic has no handlers left, is unsubscribed or the bus is closed.
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	streamKey := getStreamKey(topic)

	// Create consumer group if it doesn't exist. New groups start at the
	// end of the stream.
	err := e.client.XGroupCreateMkStream(ctx, streamKey, e.consumerGroup, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	e.mu.Lock()
	reader, ok := e.readers[topic]
	if !ok {
		readCtx, cancel := context.WithCancel(context.Background())
		reader = &topicReader{
			ctx:      readCtx,
			cancel:   cancel,
			handlers: make(map[uint64]ports.EventHandler),
		}
		e.readers[topic] = reader

		e.wg.Add(1)
		go e.readStream(reader, streamKey)

		e.logger.Info("subscribed to event stream",
			zap.String("stream", streamKey),
			zap.String("consumer_group", e.consumerGroup),
			zap.String("consumer", e.consumerName))
	}
	e.nextID++
	id := e.nextID
	reader.handlers[id] = handler
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-ctx.Done():
			e.removeHandler(topic, reader, id)
		case <-reader.ctx.Done():
		}
	}()

	return nil
}

func (e *StreamsEventBus) removeHandler(topic string, reader *topicReader, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(reader.handlers, id)
	if len(reader.handlers) == 0 && e.readers[topic] == reader {
		delete(e.readers, topic)
		reader.cancel()
	}
}

// handlersOf returns the current handlers of reader.
func (e *StreamsEventBus) handlersOf(reader *topicReader) []ports.EventHandler {
	e.mu.Lock()
	defer e.mu.Unlock()

	handlers := make([]ports.EventHandler, 0, len(reader.handlers))
	for _, h := range reader.handlers {
		handlers = append(handlers, h)
	}
	return handlers
}

// readStream reads events from a stream
func (e *StreamsEventBus) readStream(reader *topicReader, streamKey string) {
	defer e.wg.Done()
	ctx := reader.ctx

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := e.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    e.consumerGroup,
			Consumer: e.consumerName,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				// No new messages
				continue
			}
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("failed to read from stream",
				zap.String("stream", streamKey),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// Process messages
		for _, stream := range streams {
			for _, message := range stream.Messages {
				e.processMessage(ctx, streamKey, message, e.handlersOf(reader))
			}
		}
	}
}

// processMessage processes a single message from the stream
func (e *StreamsEventBus) processMessage(ctx context.Context, streamKey string, message redis.XMessage, handlers []ports.EventHandler) {
	data, ok := message.Values["data"].(string)
	if !ok {
		e.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		e.ack(ctx, streamKey, message.ID)
		return
	}

	var event ports.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		e.logger.Error("failed to unmarshal event",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		e.ack(ctx, streamKey, message.ID)
		return
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			e.logger.Error("handler error",
				zap.String("stream", streamKey),
				zap.String("message_id", message.ID),
				zap.Error(err))
		}
	}

	// Snapshots are superseded by later ones, so failed deliveries are not
	// retried.
	e.ack(ctx, streamKey, message.ID)
}

func (e *StreamsEventBus) ack(ctx context.Context, streamKey, id string) {
	if err := e.client.XAck(ctx, streamKey, e.consumerGroup, id).Err(); err != nil {
		e.logger.Error("failed to acknowledge message",
			zap.String("stream", streamKey),
			zap.String("message_id", id),
			zap.Error(err))
	}
}

// Unsubscribe removes every handler of a topic and stops its reader
func (e *StreamsEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	reader, ok := e.readers[topic]
	delete(e.readers, topic)
	e.mu.Unlock()

	if ok {
		reader.cancel()
	}
	return nil
}

// Close stops every reader. The Redis client is closed by the caller.
func (e *StreamsEventBus) Close() error {
	e.mu.Lock()
	readers := e.readers
	e.readers = make(map[string]*topicReader)
	e.mu.Unlock()

	for _, reader := range readers {
		reader.cancel()
	}
	e.wg.Wait()
	return nil
}

// HandlerCount returns the number of handlers subscribed to topic.
func (e *StreamsEventBus) HandlerCount(topic string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if reader, ok := e.readers[topic]; ok {
		return len(reader.handlers)
	}
	return 0
}

// getStreamKey returns the Redis stream key for a topic
func getStreamKey(topic string) string {
	return fmt.Sprintf("varflow:events:%s", topic)
}
