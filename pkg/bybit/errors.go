package bybit

import "fmt"

// UpstreamError reports a failed exchange call: a non-2xx HTTP status, a
// non-zero retCode, or a payload that could not be decoded at all.
// Individual malformed rows inside an otherwise valid page are skipped
// instead, never surfaced through this type.
type UpstreamError struct {
	Op      string
	Status  int
	RetCode int
	Msg     string
}

func (e *UpstreamError) Error() string {
	if e.RetCode != 0 {
		return fmt.Sprintf("bybit %s: retCode %d: %s", e.Op, e.RetCode, e.Msg)
	}
	if e.Status != 0 {
		return fmt.Sprintf("bybit %s: http status %d: %s", e.Op, e.Status, e.Msg)
	}
	return fmt.Sprintf("bybit %s: %s", e.Op, e.Msg)
}
