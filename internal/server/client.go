package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Completion sends a chat completion request to the running server and
// returns the generated text. Only a Ready instance accepts requests; a
// Degraded child is still alive but counts as not running. The caller bounds
// the request with its context; an exceeded deadline maps to a timeout
// error, not a transport failure.
func (s *Supervisor) Completion(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	s.mu.Lock()
	inst := s.cur
	s.mu.Unlock()
	if inst == nil {
		return "", ErrNotRunning()
	}
	inst.mu.Lock()
	usable := !inst.exited && inst.state == StateReady
	base := inst.baseURL
	name := inst.model.Name
	inst.mu.Unlock()
	if !usable {
		return "", ErrNotRunning()
	}

	payload := chatRequest{
		Model:       name,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", InferenceError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", InferenceError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout()
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", InferenceError{Err: err}
	}
	defer resp.Body.Close()
	inferenceDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", InferenceError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout()
		}
		return "", InferenceError{Err: err}
	}
	if len(out.Choices) == 0 {
		return "", InferenceError{Err: errors.New("response carried no choices")}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
