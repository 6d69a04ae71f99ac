// Package chat is an OpenAI-compatible chat completion mock. It answers
// intent and planner prompts with canned JSON and echoes the question for
// answer prompts.
package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

func lastUser(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// reply picks the canned answer for the prompt kind.
func reply(req chatReq) string {
	question := lastUser(req.Messages)
	var all strings.Builder
	for _, m := range req.Messages {
		all.WriteString(m.Content)
	}
	prompt := all.String()

	switch {
	case strings.Contains(prompt, `"search_queries"`):
		b, _ := json.Marshal(map[string]any{"search_queries": []string{question, question + " review"}})
		return string(b)
	case strings.Contains(prompt, `"user_intent"`):
		intent := "general_query"
		lower := strings.ToLower(question)
		if strings.HasPrefix(lower, "hi") || strings.HasPrefix(lower, "hello") || strings.Contains(question, "안녕") {
			intent = "small_talk"
		} else if strings.Contains(lower, "product") {
			intent = "product_query"
		}
		b, _ := json.Marshal(map[string]any{
			"user_intent":    intent,
			"enriched_query": question,
			"search_query":   question,
		})
		return string(b)
	}
	return "Mock answer for: " + question
}

func handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content := reply(req)

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-mock", "object": "chat.completion", "created": 1, "model": req.Model,
			"choices": []map[string]any{{
				"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": content},
			}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, word := range strings.SplitAfter(content, " ") {
		b, _ := json.Marshal(map[string]any{
			"id": "chatcmpl-mock", "object": "chat.completion.chunk", "created": 1, "model": req.Model,
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": word}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", b)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// Handler serves /chat/completions and /v1/chat/completions.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", handleChat)
	mux.HandleFunc("/v1/chat/completions", handleChat)
	return mux
}
