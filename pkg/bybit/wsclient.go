package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"candlesync/pkg/market"
)

const (
	// streamQueueSize bounds the per-subscription event queue. Overflow
	// drops the oldest buffered event: a superseded in-progress update is
	// stale anyway, and a dropped closed bar is reconciled by the next
	// restart's backfill.
	streamQueueSize = 1024

	maxJitter = 250 * time.Millisecond
)

// StreamConfig configures the streaming client.
type StreamConfig struct {
	URL           string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	Heartbeat     time.Duration
}

// StreamClient maintains one WebSocket kline subscription per call to
// Subscribe, reconnecting with jittered exponential backoff and
// re-subscribing after every reconnect.
type StreamClient struct {
	cfg    StreamConfig
	logger *zap.Logger
}

func NewStreamClient(cfg StreamConfig, logger *zap.Logger) *StreamClient {
	return &StreamClient{cfg: cfg, logger: logger}
}

// Subscribe starts the connection loop for (symbol, timeframe) and returns
// its event channel. The channel is closed when ctx is cancelled.
func (c *StreamClient) Subscribe(ctx context.Context, symbol string, tf market.Timeframe) <-chan market.CandleEvent {
	out := make(chan market.CandleEvent, streamQueueSize)
	go c.run(ctx, symbol, tf, out)
	return out
}

func (c *StreamClient) run(ctx context.Context, symbol string, tf market.Timeframe, out chan market.CandleEvent) {
	defer close(out)

	topic := "kline." + tf.Interval() + "." + symbol
	log := c.logger.With(zap.String("symbol", symbol), zap.String("timeframe", tf.String()))

	attempt := 0
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			log.Warn("websocket dial failed", zap.Error(err))
			if !c.sleep(ctx, backoffDelay(c.cfg.ReconnectBase, c.cfg.ReconnectMax, attempt)) {
				return
			}
			attempt++
			continue
		}

		if err := subscribe(conn, topic); err != nil {
			log.Warn("websocket subscribe failed", zap.Error(err))
			conn.Close()
			if !c.sleep(ctx, backoffDelay(c.cfg.ReconnectBase, c.cfg.ReconnectMax, attempt)) {
				return
			}
			attempt++
			continue
		}

		// Successful subscribe resets the backoff schedule.
		attempt = 0
		log.Info("websocket subscribed", zap.String("topic", topic))

		c.readLoop(ctx, conn, log, out)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if !c.sleep(ctx, backoffDelay(c.cfg.ReconnectBase, c.cfg.ReconnectMax, attempt)) {
			return
		}
		attempt++
	}
}

// backoffDelay is min(max, base*2^attempt) plus up to 250ms of jitter.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base << attempt
	if delay > max || delay <= 0 { // <=0 guards shift overflow
		delay = max
	}
	return delay + time.Duration(rand.Int63n(int64(maxJitter)))
}

func (c *StreamClient) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func subscribe(conn *websocket.Conn, topic string) error {
	return conn.WriteJSON(map[string]any{
		"op":   "subscribe",
		"args": []string{topic},
	})
}

// readLoop reads frames until the transport fails or ctx is cancelled.
// Server pings are answered inline; kline frames are published to out.
func (c *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn, log *zap.Logger, out chan market.CandleEvent) {
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	// Unblock ReadMessage on cancellation and drive the client heartbeat.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(c.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := writeJSON(map[string]string{"op": "ping"}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var control wsControl
		if err := json.Unmarshal(msg, &control); err == nil && control.Op != "" {
			if control.Op == "ping" {
				if err := writeJSON(map[string]string{"op": "pong"}); err != nil {
					log.Warn("websocket pong failed", zap.Error(err))
					return
				}
			}
			continue // subscribe acks, pongs
		}

		var envelope wsEnvelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			log.Warn("failed to parse websocket payload", zap.Error(err))
			continue
		}
		if !strings.HasPrefix(envelope.Topic, "kline.") {
			continue
		}

		for _, d := range envelope.Data {
			ev := market.CandleEvent{
				Candle: market.Candle{
					OpenTime: time.UnixMilli(d.Start).UTC(),
					Open:     parseDecimal(d.Open),
					High:     parseDecimal(d.High),
					Low:      parseDecimal(d.Low),
					Close:    parseDecimal(d.Close),
					Volume:   parseDecimal(d.Volume),
				},
				Closed: confirmTruthy(d.Confirm),
			}
			if dropped := publishDropOldest(out, ev); dropped {
				log.Debug("dropped oldest buffered candle event under backpressure")
			}
		}
	}
}

// publishDropOldest enqueues ev, evicting the oldest buffered event when the
// queue is full. Reports whether an eviction happened. Safe for the single
// read-loop writer.
func publishDropOldest(out chan market.CandleEvent, ev market.CandleEvent) bool {
	select {
	case out <- ev:
		return false
	default:
	}

	dropped := false
	select {
	case <-out:
		dropped = true
	default:
	}
	select {
	case out <- ev:
	default:
	}
	return dropped
}

// confirmTruthy interprets the confirm field, which arrives as a bare bool
// on some stream versions and as the strings "true"/"1" on others.
func confirmTruthy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("true")):
		return true
	case bytes.Equal(trimmed, []byte(`"true"`)), bytes.Equal(trimmed, []byte(`"True"`)):
		return true
	case bytes.Equal(trimmed, []byte(`"1"`)), bytes.Equal(trimmed, []byte("1")):
		return true
	default:
		return false
	}
}
