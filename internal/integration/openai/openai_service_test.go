package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testPlants = []PlantOption{
	{Key: "ringhals", Name: "Ringhals"},
	{Key: "okg", Name: "Oskarshamn"},
}

func completionServer(t *testing.T, content string, requests chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if requests != nil {
			requests <- string(body)
		}

		payload, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}))
}

func TestInterpretUserQuery(t *testing.T) {
	requests := make(chan string, 1)
	srv := completionServer(t, `{"command_name":"GetPlantOutput","plant_key":" OKG ","user_message":"Kollar Oskarshamn."}`, requests)
	defer srv.Close()

	svc, err := NewOpenAIService("test-key", zap.NewNop(), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := svc.InterpretUserQuery(context.Background(), "hur mycket producerar Oskarshamn?", testPlants)
	require.NoError(t, err)
	assert.Equal(t, CommandGetPlantOutput, resp.CommandName)
	assert.Equal(t, "okg", resp.PlantKey)
	assert.Equal(t, "Kollar Oskarshamn.", resp.UserMessage)

	body := <-requests
	assert.Contains(t, body, "ringhals (Ringhals), okg (Oskarshamn)")
	assert.Contains(t, body, "agent_response")
}

func TestInterpretUserQueryBadContent(t *testing.T) {
	srv := completionServer(t, "not json", nil)
	defer srv.Close()

	svc, err := NewOpenAIService("test-key", zap.NewNop(), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = svc.InterpretUserQuery(context.Background(), "hello", testPlants)
	assert.Error(t, err)
}

func TestNewOpenAIServiceRequiresKey(t *testing.T) {
	_, err := NewOpenAIService("", zap.NewNop())
	assert.Error(t, err)
}

func TestSystemPromptListsIntents(t *testing.T) {
	prompt := systemPrompt(testPlants)
	for _, intent := range []string{CommandGetPlantOutput, CommandGetGridTotal, CommandGeneralQuery} {
		assert.Contains(t, prompt, intent)
	}
}
