package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// maxDetailLen bounds plain-text details taken from error bodies.
const maxDetailLen = 512

// ErrorDetail extracts a message from a backend error body. It understands
// {"detail": "..."}, validation lists {"detail": [{"msg": "..."}]},
// {"error": "..."} / {"message": "..."} and plain text. It returns fallback
// when nothing usable is found.
func ErrorDetail(body []byte, fallback string) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fallback
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			if v, ok := obj[key]; ok {
				if msg := rawMessage(v); msg != "" {
					return msg
				}
			}
		}
		return fallback
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return truncate(s)
		}
		return fallback
	}
	if body[0] == '{' || body[0] == '[' {
		return fallback
	}
	return truncate(string(body))
}

func rawMessage(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return truncate(strings.TrimSpace(s))
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(v, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return truncate(strings.Join(msgs, "; "))
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(v, &nested); err == nil {
		return truncate(nested.Message)
	}
	return ""
}

// ErrorBody returns a JSON error body suitable for forwarding: the backend
// body itself when it is valid JSON, otherwise {"detail": <raw text>}.
func ErrorBody(body []byte) []byte {
	if json.Valid(body) && len(bytes.TrimSpace(body)) > 0 {
		return body
	}
	b, _ := json.Marshal(map[string]string{"detail": string(body)})
	return b
}

func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	i := maxDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "..."
}
