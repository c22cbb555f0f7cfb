package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GenerateRequest is the body of POST /generate. Stream is always set by
// the Client, never taken from caller input.
type GenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	ChatID  int64           `json:"chat_id"`
	Stream  bool            `json:"stream"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Credentials is the body of /auth/login and /auth/register.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the subset of the /auth/login response the proxy uses.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Chat is one entry of GET /chats.
type Chat struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// Message is one entry of GET /chats/{id}/messages.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ModelList is the body of GET /models.
type ModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Names returns the non-empty model names.
func (m ModelList) Names() []string {
	out := make([]string, 0, len(m.Models))
	for _, x := range m.Models {
		if x.Name != "" {
			out = append(out, x.Name)
		}
	}
	return out
}

// ErrInvalidChatID reports a chat_id that is absent or not an integer.
var ErrInvalidChatID = errors.New("chat_id must be an integer")

// ParseGenerateInput validates a client generation body. model and prompt
// must be strings and chat_id must coerce to an integer (JSON number or
// numeric string). Any client-supplied stream flag is ignored.
func ParseGenerateInput(body []byte) (GenerateRequest, error) {
	var raw struct {
		Model   *string         `json:"model"`
		Prompt  *string         `json:"prompt"`
		ChatID  json.RawMessage `json:"chat_id"`
		Options json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return GenerateRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if raw.Model == nil || *raw.Model == "" {
		return GenerateRequest{}, errors.New("model is required")
	}
	if raw.Prompt == nil {
		return GenerateRequest{}, errors.New("prompt is required")
	}
	id, err := coerceChatID(raw.ChatID)
	if err != nil {
		return GenerateRequest{}, err
	}
	g := GenerateRequest{Model: *raw.Model, Prompt: *raw.Prompt, ChatID: id}
	if len(raw.Options) > 0 && string(raw.Options) != "null" {
		g.Options = raw.Options
	}
	return g, nil
}

func coerceChatID(v json.RawMessage) (int64, error) {
	if len(v) == 0 || string(v) == "null" {
		return 0, ErrInvalidChatID
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, ErrInvalidChatID
		}
		return n, nil
	}
	var f json.Number
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, ErrInvalidChatID
	}
	if n, err := f.Int64(); err == nil {
		return n, nil
	}
	x, err := f.Float64()
	if err != nil || x != math.Trunc(x) || math.Abs(x) > math.MaxInt64/2 {
		return 0, ErrInvalidChatID
	}
	return int64(x), nil
}
