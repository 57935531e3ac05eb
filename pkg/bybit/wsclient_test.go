package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"candlesync/pkg/market"
)

func TestBackoffDelay(t *testing.T) {
	base := 500 * time.Millisecond
	max := 10 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration // before jitter
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // 16s capped
		{20, 10 * time.Second},
		{63, 10 * time.Second}, // shift overflow falls back to max
	}
	for _, tt := range tests {
		got := backoffDelay(base, max, tt.attempt)
		if got < tt.want || got >= tt.want+maxJitter {
			t.Errorf("backoffDelay(attempt=%d) = %v, want [%v, %v)",
				tt.attempt, got, tt.want, tt.want+maxJitter)
		}
	}
}

func TestConfirmTruthy(t *testing.T) {
	truthy := []string{`true`, `"true"`, `"True"`, `"1"`, `1`, ` true `}
	falsy := []string{`false`, `"false"`, `"0"`, `0`, `null`, `""`, `"yes"`}

	for _, raw := range truthy {
		if !confirmTruthy(json.RawMessage(raw)) {
			t.Errorf("confirmTruthy(%s) = false, want true", raw)
		}
	}
	for _, raw := range falsy {
		if confirmTruthy(json.RawMessage(raw)) {
			t.Errorf("confirmTruthy(%s) = true, want false", raw)
		}
	}
}

func TestPublishDropOldest(t *testing.T) {
	out := make(chan market.CandleEvent, 2)
	ev := func(ms int64) market.CandleEvent {
		return market.CandleEvent{Candle: market.Candle{OpenTime: time.UnixMilli(ms).UTC()}}
	}

	if dropped := publishDropOldest(out, ev(1)); dropped {
		t.Fatal("unexpected drop with free capacity")
	}
	if dropped := publishDropOldest(out, ev(2)); dropped {
		t.Fatal("unexpected drop with free capacity")
	}
	if dropped := publishDropOldest(out, ev(3)); !dropped {
		t.Fatal("expected the oldest event to be dropped")
	}

	first := <-out
	second := <-out
	if first.OpenTime.UnixMilli() != 2 || second.OpenTime.UnixMilli() != 3 {
		t.Errorf("queue after overflow = [%d, %d], want [2, 3]",
			first.OpenTime.UnixMilli(), second.OpenTime.UnixMilli())
	}
}

// klineStreamServer upgrades each connection, validates the subscribe frame,
// acks it and hands the connection to serve.
func klineStreamServer(t *testing.T, wantTopic string,
	serve func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub struct {
			Op   string   `json:"op"`
			Args []string `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub.Op != "subscribe" || len(sub.Args) != 1 || sub.Args[0] != wantTopic {
			t.Errorf("subscribe frame = %+v, want op=subscribe args=[%s]", sub, wantTopic)
			return
		}
		ack := map[string]any{"op": "subscribe", "success": true}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
		serve(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamClient_DeliversKlineEvents(t *testing.T) {
	frame := func(start int64, confirm string) map[string]any {
		return map[string]any{
			"topic": "kline.1.BTCUSDT",
			"type":  "snapshot",
			"ts":    start,
			"data": []map[string]any{{
				"start":    start,
				"end":      start + 60_000,
				"interval": "1",
				"open":     "100.5",
				"high":     "101",
				"low":      "99.9",
				"close":    "100.7",
				"volume":   "12.34",
				"confirm":  json.RawMessage(confirm),
			}},
		}
	}

	served := make(chan struct{})
	srv := klineStreamServer(t, "kline.1.BTCUSDT", func(conn *websocket.Conn) {
		conn.WriteJSON(frame(1_700_000_000_000, `false`))
		conn.WriteJSON(frame(1_700_000_060_000, `"1"`))
		// A non-kline frame must be ignored, not treated as an event.
		conn.WriteJSON(map[string]any{"topic": "tickers.BTCUSDT", "data": []any{}})
		conn.WriteJSON(frame(1_700_000_120_000, `true`))
		close(served)
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewStreamClient(StreamConfig{
		URL:           wsURL(srv),
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
		Heartbeat:     time.Minute,
	}, zap.NewNop())

	events := client.Subscribe(ctx, "BTCUSDT", market.Timeframe1m)

	var got []market.CandleEvent
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-ctx.Done():
			t.Fatalf("timed out with %d events", len(got))
		}
	}
	<-served

	if got[0].Closed || !got[1].Closed || !got[2].Closed {
		t.Errorf("closed flags = [%v, %v, %v], want [false, true, true]",
			got[0].Closed, got[1].Closed, got[2].Closed)
	}
	first := got[0]
	if !first.OpenTime.Equal(time.UnixMilli(1_700_000_000_000).UTC()) {
		t.Errorf("open time = %v", first.OpenTime)
	}
	if first.Open.String() != "100.5" || first.Close.String() != "100.7" {
		t.Errorf("ohlc = open %s close %s", first.Open, first.Close)
	}
	if first.Volume.String() != "12.34" {
		t.Errorf("volume = %s", first.Volume)
	}
}

func TestStreamClient_AnswersServerPing(t *testing.T) {
	gotPong := make(chan struct{})
	srv := klineStreamServer(t, "kline.5.ETHUSDT", func(conn *websocket.Conn) {
		if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
			return
		}
		var reply wsControl
		if err := conn.ReadJSON(&reply); err != nil {
			t.Errorf("read pong: %v", err)
			return
		}
		if reply.Op != "pong" {
			t.Errorf("reply op = %q, want pong", reply.Op)
		}
		close(gotPong)
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewStreamClient(StreamConfig{
		URL:           wsURL(srv),
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
		Heartbeat:     time.Minute,
	}, zap.NewNop())
	client.Subscribe(ctx, "ETHUSDT", market.Timeframe5m)

	select {
	case <-gotPong:
	case <-ctx.Done():
		t.Fatal("server never received a pong")
	}
}

func TestStreamClient_ReconnectsAndResubscribes(t *testing.T) {
	subscribes := make(chan struct{}, 4)
	srv := klineStreamServer(t, "kline.60.BTCUSDT", func(conn *websocket.Conn) {
		subscribes <- struct{}{}
		// Drop the connection; the client must come back and resubscribe.
		conn.Close()
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewStreamClient(StreamConfig{
		URL:           wsURL(srv),
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
		Heartbeat:     time.Minute,
	}, zap.NewNop())
	events := client.Subscribe(ctx, "BTCUSDT", market.Timeframe1h)

	for i := 0; i < 2; i++ {
		select {
		case <-subscribes:
		case <-ctx.Done():
			t.Fatalf("only %d subscriptions before timeout", i)
		}
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel close after cancellation, got an event")
		}
	case <-time.After(2 * time.Second):
		t.Error("event channel not closed after cancellation")
	}
}
