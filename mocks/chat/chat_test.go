package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestReply(t *testing.T) {
	cases := []struct {
		name   string
		system string
		user   string
		path   string
		want   string
	}{
		{"plan", `Answer as {"search_queries": []}`, "best laptop", "search_queries.1", "best laptop review"},
		{"small talk", `Answer with "user_intent"`, "Hello there", "user_intent", "small_talk"},
		{"korean greeting", `Answer with "user_intent"`, "안녕하세요", "user_intent", "small_talk"},
		{"product", `Answer with "user_intent"`, "Which product fits?", "user_intent", "product_query"},
		{"general", `Answer with "user_intent"`, "Why is the sky blue?", "user_intent", "general_query"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := reply(chatReq{Messages: []chatMessage{
				{Role: "system", Content: tc.system},
				{Role: "user", Content: tc.user},
			}})
			assert.Equal(t, tc.want, gjson.Get(out, tc.path).String())
		})
	}
	assert.Equal(t, "Mock answer for: q", reply(chatReq{Messages: []chatMessage{{Role: "user", Content: "q"}}}))
}

func post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))
	return rec
}

func TestHandler_NonStreaming(t *testing.T) {
	rec := post(t, `{"model":"m","messages":[{"role":"user","content":"why"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mock answer for: why", gjson.Get(rec.Body.String(), "choices.0.message.content").String())
}

func TestHandler_Streaming(t *testing.T) {
	rec := post(t, `{"model":"m","stream":true,"messages":[{"role":"user","content":"why"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got strings.Builder
	var done bool
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			done = true
			continue
		}
		got.WriteString(gjson.Get(data, "choices.0.delta.content").String())
	}
	assert.True(t, done)
	assert.Equal(t, "Mock answer for: why", got.String())
}

func TestHandler_BadBody(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, post(t, `{`).Code)
}
