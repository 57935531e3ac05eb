package bybit

import "encoding/json"

// Response is the envelope shared by all Bybit V5 REST endpoints.
type Response struct {
	RetCode    int             `json:"retCode"`    // 0 means success; non-zero indicates an error code
	RetMsg     string          `json:"retMsg"`     // Human-readable message describing the result or error
	Result     json.RawMessage `json:"result"`     // Delay decoding // Main response payload (varies per endpoint)
	RetExtInfo map[string]any  `json:"retExtInfo"` // Optional extra info (e.g. rate limits, error hints)
	Time       int64           `json:"time"`       // Server timestamp (in milliseconds since epoch)
}

// KlinesResult is the result payload of /v5/market/kline. Each row is
// [start, open, high, low, close, volume, turnover], all strings.
type KlinesResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// wsEnvelope is a kline data frame from the public WebSocket stream.
type wsEnvelope struct {
	Topic string        `json:"topic"` // e.g. "kline.1.BTCUSDT"
	Type  string        `json:"type"`  // "snapshot" or "delta"
	Ts    int64         `json:"ts"`
	Data  []wsKlineData `json:"data"`
}

type wsKlineData struct {
	Start    int64           `json:"start"`
	End      int64           `json:"end"`
	Interval string          `json:"interval"`
	Open     string          `json:"open"`
	High     string          `json:"high"`
	Low      string          `json:"low"`
	Close    string          `json:"close"`
	Volume   string          `json:"volume"`
	Turnover string          `json:"turnover"`
	Confirm  json.RawMessage `json:"confirm"` // bool, "true" or "1" depending on stream version
}

// wsControl covers subscribe acks and server keepalives.
type wsControl struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
}
