package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/PabloGalante/justice-council/internal/adapters/http"
	"github.com/PabloGalante/justice-council/internal/adapters/llm"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/memory"
	"github.com/PabloGalante/justice-council/internal/app/conversation"
	"github.com/PabloGalante/justice-council/internal/app/persona"
	"github.com/PabloGalante/justice-council/internal/domain"
)

func newTestServer(t *testing.T, store domain.TurnStore) http.Handler {
	t.Helper()

	if store == nil {
		store = memory.NewTurnStore(nil)
	}
	svc, err := conversation.NewService(
		store,
		conversation.Generators{Default: llm.NewMock()},
		persona.Builtins(),
		conversation.Options{Window: domain.DefaultWindow},
	)
	require.NoError(t, err)

	return httpadapter.NewServer(svc)
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(context.Background())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, http.MethodGet, "/healthz", "")

	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "council_http_requests_total")
}

func TestCreateSessionAndSendMessage(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]string](t, w)
	id := created["session_id"]
	require.NotEmpty(t, id)

	w = do(t, srv, http.MethodPost, "/sessions/"+id+"/messages", `{"text":"Is punishment ever justified?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	type entry struct {
		Speaker  string `json:"speaker"`
		Content  string `json:"content"`
		Degraded bool   `json:"degraded"`
	}
	sent := decode[struct {
		SessionID  string  `json:"session_id"`
		Notice     string  `json:"notice"`
		Transcript []entry `json:"transcript"`
	}](t, w)
	assert.Equal(t, id, sent.SessionID)
	require.Len(t, sent.Transcript, 5)
	assert.Equal(t, "User", sent.Transcript[0].Speaker)

	w = do(t, srv, http.MethodGet, "/sessions/"+id+"/turns", "")
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode[struct {
		Turns []struct {
			Speaker string `json:"speaker"`
			Role    string `json:"role"`
		} `json:"turns"`
	}](t, w)
	require.Len(t, timeline.Turns, 5)
	assert.Equal(t, "user", timeline.Turns[0].Role)
	assert.Equal(t, "assistant", timeline.Turns[1].Role)

	w = do(t, srv, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, "/sessions/"+id+"/turns?window_minutes=30", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"turns":[]`)
}

func TestEmptyMessageReturnsNotice(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodPost, "/sessions/s1/messages", `{"text":"  "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"notice"`)
}

func TestBadWindowIsRejected(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodGet, "/sessions/s1/turns?window_minutes=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/agents", "")
	require.Equal(t, http.StatusOK, w.Code)
	agents := decode[[]map[string]any](t, w)
	require.Len(t, agents, 4)

	w = do(t, srv, http.MethodPut, "/agents/Jamie%20Reyes/active", `{"active":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Jamie Reyes left the council.", decode[map[string]string](t, w)["notice"])

	w = do(t, srv, http.MethodPut, "/agents/Nobody/active", `{"active":false}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPut, "/agents/Jamie%20Reyes/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/agents", `{"custom":true,"advocate":{"framework":"Care Ethics","definition":"d","values":"v","tone":"t"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Care Ethics", decode[map[string]any](t, w)["name"])

	w = do(t, srv, http.MethodPost, "/agents", `{"name":"Dr. Sam Iqbal","instruction":"again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodPost, "/agents", `{"name":"Blank"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type downStore struct {
	*memory.TurnStore
}

func (downStore) Append(context.Context, domain.SessionID, string, domain.Role, string) (*domain.Turn, error) {
	return nil, domain.NewStorageError("test", "append", errors.New("offline"))
}

func (downStore) Recent(context.Context, domain.SessionID, time.Duration) ([]*domain.Turn, error) {
	return nil, domain.NewStorageError("test", "recent", errors.New("offline"))
}

func (downStore) Ping(context.Context) error {
	return domain.NewStorageError("test", "ping", errors.New("offline"))
}

func TestStorageFaultsMapTo503(t *testing.T) {
	srv := newTestServer(t, downStore{memory.NewTurnStore(nil)})

	w := do(t, srv, http.MethodPost, "/sessions/s1/messages", `{"text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, srv, http.MethodGet, "/sessions/s1/turns", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
