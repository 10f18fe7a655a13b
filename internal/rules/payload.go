package rules

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MoveFromPayload accepts either a notation string or a move object
// {"from":"e7","to":"e8","promotion":"q"} and returns a notation Apply understands.
func MoveFromPayload(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrIllegalMove
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", ErrIllegalMove
		}
		return strings.TrimSpace(s), nil
	}
	var obj struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Promotion string `json:"promotion"`
		SAN       string `json:"san"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", ErrIllegalMove
	}
	from := strings.ToLower(strings.TrimSpace(obj.From))
	to := strings.ToLower(strings.TrimSpace(obj.To))
	if from == "" || to == "" {
		if s := strings.TrimSpace(obj.SAN); s != "" {
			return s, nil
		}
		return "", ErrIllegalMove
	}
	return from + to + strings.ToLower(strings.TrimSpace(obj.Promotion)), nil
}
