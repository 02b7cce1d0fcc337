package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/repo"
	"github.com/shaiso/Botflow/internal/telemetry"
	"github.com/shaiso/Botflow/internal/templates"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *ErrorDetail    `json:"error"`
}

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	store, err := repo.OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteMemory() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	catalog, err := templates.Default()
	if err != nil {
		t.Fatalf("templates.Default() error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := conversation.New(conversation.Config{
		Sessions: store,
		Events:   store,
		Catalog:  catalog,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	NewHandler(Config{Service: svc, Logger: logger}).RegisterRoutes(mux)
	return CORS(nil)(mux)
}

func do(t *testing.T, h http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return v
}

func createSession(t *testing.T, h http.Handler) uuid.UUID {
	t.Helper()
	code, env := do(t, h, http.MethodPost, "/api/v1/sessions", map[string]any{
		"specialty":      "dental",
		"goal":           "insurance_check",
		"clinicName":     "Clínica Sol",
		"receptionEmail": "front@sol.example.com",
	})
	if code != http.StatusCreated {
		t.Fatalf("create session: status %d, error %+v", code, env.Error)
	}
	return decodeData[CreateSessionResponse](t, env).SessionID
}

func TestCreateAndGetSession(t *testing.T) {
	h := newTestAPI(t)
	id := createSession(t, h)

	code, env := do(t, h, http.MethodGet, "/api/v1/sessions/"+id.String(), nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	s := decodeData[SessionResponse](t, env)

	if s.Status != "active" || s.Language != "es" || s.Goal != "insurance_check" {
		t.Errorf("unexpected session: status=%s language=%s goal=%s", s.Status, s.Language, s.Goal)
	}
	if s.CurrentFlowID != "main" || s.CurrentStepIndex != 0 {
		t.Errorf("expected cursor (main, 0), got (%s, %d)", s.CurrentFlowID, s.CurrentStepIndex)
	}
	if s.Lead["receptionEmail"] != "[EMAIL]" {
		t.Errorf("demographics should be masked in lead, got %v", s.Lead["receptionEmail"])
	}
	if s.CurrentStep == nil || s.CurrentStep.ID != "greeting" {
		t.Fatalf("expected greeting step, got %+v", s.CurrentStep)
	}
	if !strings.Contains(s.CurrentStep.Text, "Clínica Sol") {
		t.Errorf("step text should be interpolated, got %q", s.CurrentStep.Text)
	}
	if s.Events == nil || len(s.Events) != 0 {
		t.Errorf("expected empty events list, got %v", s.Events)
	}
	if s.BotInstance != nil {
		t.Error("bot_instance should be omitted by default")
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/sessions/"+id.String()+"?include=bot_instance", nil)
	if s := decodeData[SessionResponse](t, env); s.BotInstance == nil || len(s.BotInstance.Flows) == 0 {
		t.Error("expected bot_instance with include=bot_instance")
	}
}

func TestCreateSession_BadRequest(t *testing.T) {
	h := newTestAPI(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "goal not a string", body: map[string]any{"goal": 5}},
		{name: "unsupported language", body: map[string]any{"language": "fr"}},
		{name: "nested demographics", body: map[string]any{"clinic": map[string]any{"name": "x"}}},
		{name: "not an object", body: []string{"dental"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, h, http.MethodPost, "/api/v1/sessions", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
			if env.Error == nil || env.Error.Code != ErrCodeBadRequest {
				t.Errorf("expected BAD_REQUEST error, got %+v", env.Error)
			}
		})
	}
}

func TestRecordEvent(t *testing.T) {
	h := newTestAPI(t)
	id := createSession(t, h)
	path := "/api/v1/sessions/" + id.String() + "/events"

	botEvent := RecordEventRequest{Type: "bot_message", FlowID: "main", StepID: "greeting"}

	code, env := do(t, h, http.MethodPost, path, botEvent)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	res := decodeData[RecordEventResponse](t, env)
	if !res.Applied || res.EventID == nil || res.Transition == nil {
		t.Errorf("expected applied transition, got %+v", res)
	}

	// Повтор того же автоматического события — дубликат.
	_, env = do(t, h, http.MethodPost, path, botEvent)
	if res := decodeData[RecordEventResponse](t, env); !res.Duplicate || res.Applied {
		t.Errorf("expected duplicate, got %+v", res)
	}

	_, env = do(t, h, http.MethodPost, path, RecordEventRequest{
		Type:    "system",
		Payload: EventPayload{Text: "tab reopened by ana@example.com"},
	})
	if res := decodeData[RecordEventResponse](t, env); res.Applied || res.EventID == nil {
		t.Errorf("system event should be appended without advancing, got %+v", res)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/sessions/"+id.String(), nil)
	s := decodeData[SessionResponse](t, env)
	if s.CurrentStep == nil || s.CurrentStep.ID != "goal_router" {
		t.Errorf("expected cursor at goal_router, got %+v", s.CurrentStep)
	}
	if len(s.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(s.Events))
	}
	if strings.Contains(s.Events[1].Payload.Text, "ana@example.com") {
		t.Errorf("event text should be masked, got %q", s.Events[1].Payload.Text)
	}
}

func TestRecordEvent_Errors(t *testing.T) {
	h := newTestAPI(t)
	id := createSession(t, h)

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
	}{
		{name: "missing type", path: id.String(), body: map[string]any{}, wantCode: http.StatusBadRequest},
		{name: "unknown type", path: id.String(), body: map[string]any{"type": "shout"}, wantCode: http.StatusBadRequest},
		{name: "invalid id", path: "not-a-uuid", body: map[string]any{"type": "system"}, wantCode: http.StatusBadRequest},
		{name: "unknown session", path: uuid.NewString(), body: map[string]any{"type": "user_message"}, wantCode: http.StatusNotFound},
		{name: "unknown session system event", path: uuid.NewString(), body: map[string]any{"type": "system"}, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, h, http.MethodPost, "/api/v1/sessions/"+tt.path+"/events", tt.body)
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
		})
	}
}

func TestUpdateSession(t *testing.T) {
	h := newTestAPI(t)
	id := createSession(t, h)
	path := "/api/v1/sessions/" + id.String()

	code, env := do(t, h, http.MethodPatch, path, map[string]any{"language": "en"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	s := decodeData[SessionResponse](t, env)
	if s.Language != "en" {
		t.Errorf("expected en, got %s", s.Language)
	}
	if s.CurrentStep == nil || !strings.HasPrefix(s.CurrentStep.Text, "Hi!") {
		t.Errorf("step should render in the new language, got %+v", s.CurrentStep)
	}

	tests := []struct {
		name string
		body any
	}{
		{name: "other field", body: map[string]any{"status": "completed"}},
		{name: "empty language", body: map[string]any{"language": ""}},
		{name: "unsupported language", body: map[string]any{"language": "de"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _ := do(t, h, http.MethodPatch, path, tt.body); code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
		})
	}

	if code, _ := do(t, h, http.MethodPatch, "/api/v1/sessions/"+uuid.NewString(), map[string]any{"language": "en"}); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", code)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	h := newTestAPI(t)

	code, env := do(t, h, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), nil)
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("expected 404 NOT_FOUND, got %d %+v", code, env.Error)
	}

	if code, _ := do(t, h, http.MethodGet, "/api/v1/sessions/42", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", code)
	}
}

func TestHandoff(t *testing.T) {
	h := newTestAPI(t)
	id := createSession(t, h)
	path := "/api/v1/sessions/" + id.String() + "/handoff"

	code, env := do(t, h, http.MethodPost, path, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	first := decodeData[conversation.HandoffResult](t, env)
	if first.AlreadyDone {
		t.Error("first handoff should not be marked as already done")
	}

	_, env = do(t, h, http.MethodPost, path, nil)
	second := decodeData[conversation.HandoffResult](t, env)
	if !second.AlreadyDone || second.Summary != first.Summary {
		t.Errorf("repeated handoff should return the stored summary, got %+v", second)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/sessions/"+id.String(), nil)
	s := decodeData[SessionResponse](t, env)
	if s.Status != "completed" || !s.HandoffReady || s.CurrentStep != nil {
		t.Errorf("unexpected session after handoff: status=%s handoff_ready=%v step=%+v", s.Status, s.HandoffReady, s.CurrentStep)
	}

	if code, _ := do(t, h, http.MethodPost, "/api/v1/sessions/"+uuid.NewString()+"/handoff", nil); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestGetCatalog(t *testing.T) {
	h := newTestAPI(t)

	code, env := do(t, h, http.MethodGet, "/api/v1/catalog", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	c := decodeData[CatalogResponse](t, env)
	if !slices.Contains(c.Specialties, "dental") || !slices.Contains(c.Goals, "faqs") {
		t.Errorf("unexpected catalog %+v", c)
	}
}

func TestComposeTemplate(t *testing.T) {
	h := newTestAPI(t)

	code, env := do(t, h, http.MethodPost, "/api/v1/templates/compose", ComposeRequest{
		Specialty: "real_estate",
		Goal:      "faqs",
		Variables: map[string]any{"clinicName": "Casa Azul"},
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	c := decodeData[ComposeResponse](t, env)

	want := []string{"base", "specialties/real_estate", "goals/faqs_real_estate"}
	if !slices.Equal(c.Fragments, want) {
		t.Errorf("fragments = %v, want %v", c.Fragments, want)
	}
	if len(c.Issues) != 0 {
		t.Errorf("expected no issues, got %+v", c.Issues)
	}
	if c.Template.Variables["clinicName"] != "Casa Azul" {
		t.Errorf("variables should be seeded, got %v", c.Template.Variables["clinicName"])
	}

	if code, _ := do(t, h, http.MethodPost, "/api/v1/templates/compose", "oops"); code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid body, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected Access-Control-Allow-Origin *, got %q", got)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestLogging_PutsRequestLoggerIntoContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})
	h := Logging(logger)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %q", buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "request_id=") || !strings.Contains(line, "path=/api/v1/catalog") {
			t.Errorf("line lacks request attributes: %q", line)
		}
	}
	if !strings.Contains(lines[0], "inside handler") {
		t.Errorf("expected handler line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "status=418") {
		t.Errorf("expected captured status, got %q", lines[1])
	}
}
