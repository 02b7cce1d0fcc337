package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// SessionCreated — ответ на создание сессии.
type SessionCreated struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Goal      string `json:"goal"`
	ExpiresAt string `json:"expires_at"`
}

// SessionResponse — сессия из API.
type SessionResponse struct {
	ID               string          `json:"session_id"`
	Language         string          `json:"language"`
	Specialty        string          `json:"specialty,omitempty"`
	Goal             string          `json:"goal,omitempty"`
	Status           string          `json:"status"`
	CurrentFlowID    string          `json:"current_flow_id"`
	CurrentStepIndex int             `json:"current_step_index"`
	Lead             map[string]any  `json:"lead"`
	SummaryText      string          `json:"summary_text,omitempty"`
	HandoffReady     bool            `json:"handoff_ready"`
	Revision         int64           `json:"revision"`
	CreatedAt        string          `json:"created_at"`
	ExpiresAt        string          `json:"expires_at"`
	CurrentStep      *StepResponse   `json:"current_step,omitempty"`
	Events           []EventResponse `json:"events"`
}

// StepResponse — отрисованный текущий шаг.
type StepResponse struct {
	FlowID      string           `json:"flow_id"`
	StepIndex   int              `json:"step_index"`
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Text        string           `json:"text"`
	Options     []OptionResponse `json:"options,omitempty"`
	AwaitsInput bool             `json:"awaits_input"`
}

// OptionResponse — вариант ответа.
type OptionResponse struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// EventResponse — событие журнала.
type EventResponse struct {
	ID      string `json:"event_id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	FlowID  string `json:"flow_id,omitempty"`
	StepID  string `json:"step_id,omitempty"`
	Payload struct {
		Text string         `json:"text,omitempty"`
		Data map[string]any `json:"data,omitempty"`
	} `json:"payload"`
	Revision *int64 `json:"revision,omitempty"`
}

// EventResult — результат записи события.
type EventResult struct {
	EventID    string         `json:"event_id,omitempty"`
	Applied    bool           `json:"applied"`
	Duplicate  bool           `json:"duplicate"`
	Transition map[string]any `json:"transition,omitempty"`
}

// HandoffResponse — резюме для оператора.
type HandoffResponse struct {
	SessionID   string `json:"session_id"`
	Summary     string `json:"summary"`
	AlreadyDone bool   `json:"already_done"`
}

// CatalogResponse — известные отрасли и цели.
type CatalogResponse struct {
	Specialties []string `json:"specialties"`
	Goals       []string `json:"goals"`
}

// --- Request types ---

// CreateSessionRequest — создание сессии.
type CreateSessionRequest struct {
	Specialty    string
	Goal         string
	Language     string
	Demographics map[string]any
}

// RecordEventRequest — событие чата.
type RecordEventRequest struct {
	Type    string `json:"type"`
	FlowID  string `json:"flow_id,omitempty"`
	StepID  string `json:"step_id,omitempty"`
	Payload struct {
		Text string `json:"text,omitempty"`
	} `json:"payload"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Botflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Sessions ---

// CreateSession создаёт сессию. Demographics передаются ключами верхнего уровня.
func (c *Client) CreateSession(req CreateSessionRequest) (*SessionCreated, error) {
	body := make(map[string]any, len(req.Demographics)+3)
	for k, v := range req.Demographics {
		body[k] = v
	}
	if req.Specialty != "" {
		body["specialty"] = req.Specialty
	}
	if req.Goal != "" {
		body["goal"] = req.Goal
	}
	if req.Language != "" {
		body["language"] = req.Language
	}

	var created SessionCreated
	err := c.post("/api/v1/sessions", body, &created)
	return &created, err
}

// GetSession возвращает сессию по ID.
func (c *Client) GetSession(id string) (*SessionResponse, error) {
	var session SessionResponse
	err := c.get("/api/v1/sessions/"+id, &session)
	return &session, err
}

// SetLanguage меняет язык сессии.
func (c *Client) SetLanguage(id, language string) (*SessionResponse, error) {
	var session SessionResponse
	body := map[string]string{"language": language}
	err := c.patch("/api/v1/sessions/"+id, body, &session)
	return &session, err
}

// RecordEvent отправляет событие сессии.
func (c *Client) RecordEvent(id string, req RecordEventRequest) (*EventResult, error) {
	var result EventResult
	err := c.post("/api/v1/sessions/"+id+"/events", req, &result)
	return &result, err
}

// Handoff формирует резюме для оператора.
func (c *Client) Handoff(id string) (*HandoffResponse, error) {
	var result HandoffResponse
	err := c.post("/api/v1/sessions/"+id+"/handoff", nil, &result)
	return &result, err
}

// --- Catalog ---

// GetCatalog возвращает известные отрасли и цели.
func (c *Client) GetCatalog() (*CatalogResponse, error) {
	var catalog CatalogResponse
	err := c.get("/api/v1/catalog", &catalog)
	return &catalog, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) patch(path string, body any, result any) error {
	return c.doData(http.MethodPatch, path, body, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
