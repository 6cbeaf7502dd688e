package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialStream(t *testing.T, h *StreamHandlers, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.Stream))
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/rank/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readMessages(t *testing.T, conn *websocket.Conn) []StreamMessage {
	t.Helper()
	var out []StreamMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("unexpected read error: %v", err)
			}
			return out
		}
		out = append(out, msg)
		if msg.Type != MessageFrame {
			return out
		}
	}
}

func TestStream_FramesThenResult(t *testing.T) {
	h := NewStreamHandlers(NewRankHandlers(newTestEngine(0, ""), nil), nil)
	conn, _, err := dialStream(t, h, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := conn.WriteJSON(map[string]any{
		"candidates":        testCandidates(5),
		"temperature":       1.0,
		"diffusion":         map[string]any{"k": 2, "iterations": 3},
		"frame_interval_ms": 1,
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msgs := readMessages(t, conn)
	if len(msgs) != 4 {
		t.Fatalf("expected 3 frames and a result, got %d messages", len(msgs))
	}
	for i, msg := range msgs[:3] {
		if msg.Type != MessageFrame || msg.Iteration != i+1 || len(msg.Probabilities) != 5 {
			t.Errorf("frame %d malformed: %+v", i, msg)
		}
	}
	result := msgs[3]
	if result.Type != MessageResult || result.Result == nil {
		t.Fatalf("expected a result message, got %+v", result)
	}
	if result.Result.History != nil {
		t.Error("streamed result should not repeat the history")
	}
	if len(result.Result.HistoryIDs) != 5 || len(result.Result.Candidates) != 5 {
		t.Errorf("unexpected result: %+v", result.Result)
	}

	// The last frame is the final diffused distribution.
	byID := make(map[string]float64)
	for i, id := range result.Result.HistoryIDs {
		byID[id] = msgs[2].Probabilities[i]
	}
	for _, c := range result.Result.Candidates {
		if diff(byID[c.ID], c.DiffusedProbability) > 1e-12 {
			t.Errorf("%s: frame %v, result %v", c.ID, byID[c.ID], c.DiffusedProbability)
		}
	}
}

func TestStream_NonDiffusionStrategySendsOnlyResult(t *testing.T) {
	h := NewStreamHandlers(NewRankHandlers(newTestEngine(0, ""), nil), nil)
	conn, _, err := dialStream(t, h, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = conn.WriteJSON(map[string]any{"candidates": testCandidates(3), "temperature": 1.0, "strategy": "none"})

	msgs := readMessages(t, conn)
	if len(msgs) != 1 || msgs[0].Type != MessageResult {
		t.Fatalf("expected a lone result, got %+v", msgs)
	}
}

func TestStream_ErrorMessage(t *testing.T) {
	h := NewStreamHandlers(NewRankHandlers(newTestEngine(0, ""), nil), nil)
	conn, _, err := dialStream(t, h, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = conn.WriteJSON(map[string]any{"candidates": testCandidates(3)})

	msgs := readMessages(t, conn)
	if len(msgs) != 1 || msgs[0].Type != MessageError || msgs[0].Error.Code != ErrCodeValidation {
		t.Fatalf("expected a validation error message, got %+v", msgs)
	}
}

func TestStream_RejectsOrigin(t *testing.T) {
	h := NewStreamHandlers(NewRankHandlers(newTestEngine(0, ""), nil), []string{"https://app.example.com"})

	_, resp, err := dialStream(t, h, http.Header{"Origin": {"https://evil.example.com"}})
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}

	conn, _, err := dialStream(t, h, http.Header{"Origin": {"https://app.example.com"}})
	if err != nil {
		t.Fatalf("allowed origin should connect: %v", err)
	}
	conn.Close()
}
