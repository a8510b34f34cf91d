package evolution

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Timestamp tolerates the gateway's numeric and string encodings of
// messageTimestamp and stores whatever magnitude arrived (seconds or
// milliseconds); normalization decides the unit later.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	// Some gateway builds emit timestamps as floats
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*t = Timestamp(v)
	return nil
}

func (t Timestamp) Int64() int64 {
	return int64(t)
}

// ParseMessageList decodes a message-fetch response body into a flat message
// list. Gateway versions disagree on the envelope: older builds return a bare
// array, some wrap it as {"messages": [...]}, and paginated builds return
// {"messages": {"records": [...]}}.
func ParseMessageList(body []byte) ([]RawMessage, error) {
	var direct []RawMessage
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}

	var wrapped struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized message response shape: %w", err)
	}
	if len(wrapped.Messages) == 0 {
		return nil, fmt.Errorf("message response has no messages field")
	}

	var list []RawMessage
	if err := json.Unmarshal(wrapped.Messages, &list); err == nil {
		return list, nil
	}

	var paginated struct {
		Records []RawMessage `json:"records"`
		Total   int          `json:"total"`
	}
	if err := json.Unmarshal(wrapped.Messages, &paginated); err != nil {
		return nil, fmt.Errorf("unrecognized messages envelope: %w", err)
	}

	return paginated.Records, nil
}
