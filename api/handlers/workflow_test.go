package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/consultflow/agent"
	"github.com/BaSui01/consultflow/api"
	"github.com/BaSui01/consultflow/orchestrator"
	"github.com/BaSui01/consultflow/testutil/fixtures"
	"github.com/BaSui01/consultflow/testutil/mocks"
	"github.com/BaSui01/consultflow/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

func newTestOrchestrator(t *testing.T, gen *mocks.MockGenerator) *orchestrator.Orchestrator {
	t.Helper()
	reg := agent.NewRegistry(agent.Dependencies{Generator: gen})
	o, err := orchestrator.New(reg, zap.NewNop(),
		orchestrator.WithRetriever(mocks.NewMockRetriever(fixtures.ConsultingDocuments()...)),
		orchestrator.WithLanguageDetector(agent.HeuristicLanguageDetector{}),
	)
	require.NoError(t, err)
	return o
}

func newTestMux(t *testing.T, runner Runner) *http.ServeMux {
	t.Helper()
	h := NewWorkflowHandler(runner, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/workflow/run", h.HandleRun)
	mux.HandleFunc("POST /api/v1/workflow/stream", h.HandleStream)
	mux.HandleFunc("GET /api/v1/workflow/ws", h.HandleWebSocket)
	mux.HandleFunc("GET /api/v1/workflow/runs", h.HandleListRuns)
	mux.HandleFunc("GET /api/v1/workflow/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/v1/workflow/modes", h.HandleModes)
	return mux
}

type envelopeOf[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data"`
	Error   *ErrorInfo `json:"error"`
}

func decodeEnvelope[T any](t *testing.T, w *httptest.ResponseRecorder) envelopeOf[T] {
	t.Helper()
	var env envelopeOf[T]
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

func postJSON(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

type resultView struct {
	RunID         string                       `json:"run_id"`
	Mode          string                       `json:"mode"`
	Status        string                       `json:"status"`
	FinalResponse string                       `json:"final_response"`
	AgentStatus   map[string]types.AgentStatus `json:"agent_status"`
	Sources       []string                     `json:"sources"`
	Events        []json.RawMessage            `json:"events"`
}

// =============================================================================
// 🧪 同步运行
// =============================================================================

func TestWorkflowHandler_HandleRun(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	w := postJSON(mux, "/api/v1/workflow/run", `{"query":"What is our remote work policy?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decodeEnvelope[resultView](t, w)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data.RunID)
	assert.Equal(t, "standard", env.Data.Mode)
	assert.Equal(t, "terminated", env.Data.Status)
	assert.Contains(t, env.Data.FinalResponse, "solution_architect analysis.")
	assert.Equal(t, types.AgentStatusCompleted, env.Data.AgentStatus["client_communication"])
	assert.NotEmpty(t, env.Data.Sources)
}

func TestWorkflowHandler_HandleRun_ObservableReturnsEvents(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	w := postJSON(mux, "/api/v1/workflow/run", `{"query":"What is our remote work policy?","mode":"observable"}`)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope[resultView](t, w)
	assert.Equal(t, "observable", env.Data.Mode)
	assert.NotEmpty(t, env.Data.Events)
}

func TestWorkflowHandler_HandleRun_Validation(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	history := make([]string, api.MaxHistoryTurns+1)
	for i := range history {
		history[i] = `{"role":"user","text":"hi"}`
	}

	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"   "}`},
		{"unknown mode", `{"query":"hello there","mode":"turbo"}`},
		{"unknown field", `{"query":"hello","tenant":"x"}`},
		{"too long", `{"query":"` + strings.Repeat("a", maxQueryLength+1) + `"}`},
		{"too much history", `{"query":"hello","history":[` + strings.Join(history, ",") + `]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(mux, "/api/v1/workflow/run", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decodeEnvelope[any](t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(types.ErrInvalidRequest), env.Error.Code)
		})
	}
}

func TestWorkflowHandler_HandleRun_RequiresJSON(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/workflow/run", strings.NewReader(`{"query":"hi"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestWorkflowHandler_HandleRun_DefaultMode(t *testing.T) {
	h := NewWorkflowHandler(newTestOrchestrator(t, mocks.NewMockGenerator()), nil,
		WithDefaultMode(orchestrator.ModeParallel))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/workflow/run", strings.NewReader(`{"query":"What is our remote work policy?"}`))
	r.Header.Set("Content-Type", "application/json")
	h.HandleRun(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "parallel", decodeEnvelope[resultView](t, w).Data.Mode)
}

// =============================================================================
// 🧪 SSE
// =============================================================================

func TestWorkflowHandler_HandleStream(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	w := postJSON(mux, "/api/v1/workflow/stream", `{"query":"What is our remote work policy?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var envs []api.StreamEnvelope
	sc := bufio.NewScanner(w.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	done := false
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			done = true
			continue
		}
		var env api.StreamEnvelope
		require.NoError(t, json.Unmarshal([]byte(data), &env))
		envs = append(envs, env)
	}
	require.NoError(t, sc.Err())
	assert.True(t, done, "stream ends with [DONE]")
	require.Greater(t, len(envs), 1)

	for _, env := range envs[:len(envs)-1] {
		assert.Equal(t, api.StreamEvent, env.Type)
	}
	last := envs[len(envs)-1]
	assert.Equal(t, api.StreamResult, last.Type)
	result, ok := last.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "terminated", result["status"])
}

func TestWorkflowHandler_HandleStream_InvalidRequest(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	w := postJSON(mux, "/api/v1/workflow/stream", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

// =============================================================================
// 🧪 运行记录
// =============================================================================

func TestWorkflowHandler_Runs(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	w := postJSON(mux, "/api/v1/workflow/run", `{"query":"What is our remote work policy?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	runID := decodeEnvelope[resultView](t, w).Data.RunID

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs/"+runID, nil))
		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope[map[string]any](t, w)
		assert.Equal(t, runID, env.Data["id"])
		assert.Equal(t, "terminated", env.Data["state"])
	})

	t.Run("get missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		env := decodeEnvelope[any](t, w)
		require.NotNil(t, env.Error)
		assert.Equal(t, string(types.ErrNotFound), env.Error.Code)
	})

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs?limit=5", nil))
		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope[[]api.RunSummary](t, w)
		require.Len(t, env.Data, 1)
		assert.Equal(t, runID, env.Data[0].ID)
		assert.Equal(t, fixtures.QueryRemoteWork, env.Data[0].Query)
	})

	t.Run("list bad limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWorkflowHandler_HandleModes(t *testing.T) {
	mux := newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/workflow/modes", nil))
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope[[]api.ModeInfo](t, w)
	require.Len(t, env.Data, len(orchestrator.Modes()))
	for _, m := range env.Data {
		assert.NotEmpty(t, m.Graph, m.Name)
		assert.NotEmpty(t, m.Description, m.Name)
	}
}

// =============================================================================
// 🧪 WebSocket
// =============================================================================

func TestWorkflowHandler_HandleWebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestMux(t, newTestOrchestrator(t, mocks.NewMockGenerator())))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/workflow/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// 非法消息返回错误但保持连接
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	var env api.StreamEnvelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	assert.Equal(t, api.StreamError, env.Type)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrInvalidRequest), env.Error.Code)

	require.NoError(t, wsjson.Write(ctx, conn, api.WorkflowRequest{Query: fixtures.QueryRemoteWork, Mode: "parallel"}))
	events := 0
	for {
		var env api.StreamEnvelope
		require.NoError(t, wsjson.Read(ctx, conn, &env))
		if env.Type == api.StreamEvent {
			events++
			continue
		}
		require.Equal(t, api.StreamResult, env.Type)
		result, ok := env.Result.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "parallel", result["mode"])
		break
	}
	assert.Positive(t, events)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
}
