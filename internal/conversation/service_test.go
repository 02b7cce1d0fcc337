package conversation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/repo"
	"github.com/shaiso/Botflow/internal/telemetry"
	"github.com/shaiso/Botflow/internal/templates"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, store *memStore, notifier Notifier) *Service {
	t.Helper()
	catalog, err := templates.Default()
	if err != nil {
		t.Fatalf("templates.Default() error: %v", err)
	}
	tick := testNow
	cfg := Config{
		Sessions: store,
		Events:   store,
		Catalog:  catalog,
		Now: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if notifier != nil {
		cfg.Notifier = notifier
	}
	return New(cfg)
}

func textPtr(t domain.Text) *domain.Text { return &t }

// intakeSession — сессия с небольшим шаблоном:
// main: greet(text) → ask_name(ask, name) → ask_plan(ask_choice, plan, condition) → handoff → bye(end)
func intakeSession() *domain.Session {
	return &domain.Session{
		ID:        uuid.New(),
		Language:  domain.LanguageES,
		CreatedAt: testNow,
		UpdatedAt: testNow,
		ExpiresAt: testNow.Add(24 * time.Hour),
		Lead:      map[string]any{},
		BotInstance: domain.Template{
			Flows: []domain.Flow{
				{ID: "main", Steps: []domain.Step{
					{ID: "greet", Type: domain.StepTypeText, Text: domain.LocalizedText(map[string]string{
						"es": "Hola, soy el asistente de {clinicName}",
						"en": "Hi, I am the {clinicName} assistant",
					})},
					{ID: "ask_name", Type: domain.StepTypeAsk, Variable: "name", Text: domain.PlainText("¿Nombre?")},
					{ID: "ask_plan", Type: domain.StepTypeAskChoice, Variable: "plan",
						Text: domain.PlainText("¿Plan, {name}?"),
						Options: []domain.Option{
							{Value: "basic", Label: domain.LocalizedText(map[string]string{"es": "Básico", "en": "Basic"})},
							{Value: "vip", Label: domain.PlainText("VIP")},
						},
						Condition: []domain.Condition{{Value: "vip", Next: "flow_vip"}},
					},
					{ID: "handoff", Type: domain.StepTypeHandoff, Text: domain.PlainText("Te paso con un humano")},
					{ID: "bye", Type: domain.StepTypeEnd, Text: domain.PlainText("Adiós")},
				}},
				{ID: "flow_vip", Steps: []domain.Step{
					{ID: "vip_hello", Type: domain.StepTypeText, Text: domain.PlainText("VIP")},
				}},
			},
			Variables: map[string]any{"clinicName": "Acme Dental"},
			Handoff: &domain.Handoff{SummaryTemplate: textPtr(domain.LocalizedText(map[string]string{
				"es": "Nombre: {name}. Plan: {plan}. Tel: {phone}",
				"en": "Name: {name}. Plan: {plan}. Phone: {phone}",
			}))},
		},
		Status:        domain.SessionStatusActive,
		CurrentFlowID: "main",
	}
}

func record(t *testing.T, svc *Service, id uuid.UUID, typ domain.EventType, stepID, text string) *EventResult {
	t.Helper()
	res, err := svc.RecordEvent(context.Background(), RecordEventRequest{
		SessionID: id,
		Type:      typ,
		StepID:    stepID,
		Text:      text,
	})
	if err != nil {
		t.Fatalf("RecordEvent(%s, %q) error: %v", typ, text, err)
	}
	return res
}

func getSession(t *testing.T, store *memStore, id uuid.UUID) *domain.Session {
	t.Helper()
	s, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// --- CreateSession ---

func TestCreateSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	session, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		Specialty: "dental",
		Goal:      "insurance_check",
		Demographics: map[string]any{
			"clinicName":     "Sonrisas",
			"receptionEmail": "recepcion@sonrisas.mx",
			"seats":          float64(3),
		},
	})
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	if session.Language != domain.LanguageES {
		t.Errorf("expected default language es, got %q", session.Language)
	}
	if session.Status != domain.SessionStatusActive {
		t.Errorf("expected active, got %q", session.Status)
	}
	if session.CurrentFlowID != "main" || session.CurrentStepIndex != 0 {
		t.Errorf("expected cursor (main, 0), got (%s, %d)", session.CurrentFlowID, session.CurrentStepIndex)
	}
	if session.Revision != 0 {
		t.Errorf("expected revision 0, got %d", session.Revision)
	}
	if got := session.ExpiresAt.Sub(session.CreatedAt); got != 24*time.Hour {
		t.Errorf("expected 24h ttl, got %v", got)
	}
	if session.Lead["receptionEmail"] != "[EMAIL]" {
		t.Errorf("lead should be masked, got %v", session.Lead["receptionEmail"])
	}
	if session.Lead["seats"] != float64(3) {
		t.Errorf("numeric lead field changed: %v", session.Lead["seats"])
	}

	vars := session.BotInstance.Variables
	if vars["specialty"] != "dental" || vars["goal"] != "insurance_check" || vars["clinicName"] != "Sonrisas" {
		t.Errorf("unexpected variables: %v", vars)
	}
	router := session.BotInstance.Flow("main").Steps[1]
	if router.Next != "flow_insurance" {
		t.Errorf("router should point to flow_insurance, got %q", router.Next)
	}

	if _, err := store.GetByID(context.Background(), session.ID); err != nil {
		t.Errorf("session not stored: %v", err)
	}
}

func TestCreateSession_UnknownGoalFallsBack(t *testing.T) {
	svc := newTestService(t, newMemStore(), nil)

	session, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		Specialty: "legal",
		Goal:      "unknown",
		Language:  "en",
	})
	if err != nil {
		t.Fatal(err)
	}
	if session.Goal != templates.DefaultGoal {
		t.Errorf("expected goal %q, got %q", templates.DefaultGoal, session.Goal)
	}
	if session.Language != "en" {
		t.Errorf("expected en, got %q", session.Language)
	}
	if session.BotInstance.Flow("flow_appointments") == nil {
		t.Error("expected appointments flow")
	}
}

func TestCreateSession_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateSessionRequest
		wantErr error
	}{
		{
			name:    "unsupported language",
			req:     CreateSessionRequest{Specialty: "dental", Goal: "faqs", Language: "fr"},
			wantErr: ErrInvalidLanguage,
		},
		{
			name: "nested demographics",
			req: CreateSessionRequest{
				Specialty:    "dental",
				Demographics: map[string]any{"address": map[string]any{"city": "CDMX"}},
			},
			wantErr: ErrInvalidDemographics,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, newMemStore(), nil)
			_, err := svc.CreateSession(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// --- RecordEvent ---

func TestRecordEvent_Conversation(t *testing.T) {
	store := newMemStore()
	notifier := &fakeNotifier{}
	svc := newTestService(t, store, notifier)
	session := intakeSession()
	store.put(session)

	// Бот показал приветствие.
	res := record(t, svc, session.ID, domain.EventTypeBotMessage, "greet", "Hola")
	if !res.Applied || res.Duplicate {
		t.Fatalf("expected applied transition, got %+v", res)
	}

	// Пользователь вводит имя с телефоном.
	res = record(t, svc, session.ID, domain.EventTypeUserMessage, "", "Ana 555 123 4567")
	if res.Event.Payload.Text != "Ana [PHONE]" {
		t.Errorf("event text should be masked, got %q", res.Event.Payload.Text)
	}
	got := getSession(t, store, session.ID)
	if got.Lead["name"] != "Ana [PHONE]" {
		t.Errorf("captured value should be masked, got %v", got.Lead["name"])
	}
	if got.CurrentStepIndex != 2 {
		t.Errorf("expected cursor at ask_plan, got %d", got.CurrentStepIndex)
	}

	// Выбор плана без совпадения condition.
	record(t, svc, session.ID, domain.EventTypeUserMessage, "", "basic")
	got = getSession(t, store, session.ID)
	if got.Lead["plan"] != "basic" || got.CurrentStepIndex != 3 {
		t.Errorf("unexpected state after plan: lead=%v index=%d", got.Lead, got.CurrentStepIndex)
	}

	// Бот показал шаг handoff.
	res = record(t, svc, session.ID, domain.EventTypeBotMessage, "handoff", "Te paso con un humano")
	if res.Transition == nil || res.Transition.Status != domain.SessionStatusHandoffReady {
		t.Fatalf("expected handoff_ready transition, got %+v", res.Transition)
	}
	got = getSession(t, store, session.ID)
	if got.Status != domain.SessionStatusHandoffReady || got.CurrentStepIndex != 4 {
		t.Errorf("expected handoff_ready at index 4, got %s at %d", got.Status, got.CurrentStepIndex)
	}
	if len(notifier.ids) != 1 || notifier.ids[0] != session.ID {
		t.Errorf("expected one handoff notification, got %v", notifier.ids)
	}
	if got.Revision != 4 {
		t.Errorf("expected revision 4, got %d", got.Revision)
	}

	// Пока сессия не active, события только пишутся в журнал.
	res = record(t, svc, session.ID, domain.EventTypeUserMessage, "", "hola?")
	if res.Applied {
		t.Error("non-active session must not advance")
	}

	events, _ := store.ListBySession(context.Background(), session.ID)
	if len(events) != 5 {
		t.Errorf("expected 5 events, got %d", len(events))
	}
}

func TestRecordEvent_ConditionUsesRawInput(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	session.CurrentStepIndex = 2
	store.put(session)

	record(t, svc, session.ID, domain.EventTypeUserMessage, "", "vip")

	got := getSession(t, store, session.ID)
	if got.CurrentFlowID != "flow_vip" || got.CurrentStepIndex != 0 {
		t.Errorf("expected (flow_vip, 0), got (%s, %d)", got.CurrentFlowID, got.CurrentStepIndex)
	}
	if got.Lead["plan"] != "vip" {
		t.Errorf("expected plan captured before branching, got %v", got.Lead["plan"])
	}
}

func TestRecordEvent_BotMessageIgnoresText(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	session.CurrentStepIndex = 1
	store.put(session)

	record(t, svc, session.ID, domain.EventTypeBotMessage, "ask_name", "¿Nombre?")

	got := getSession(t, store, session.ID)
	if _, ok := got.Lead["name"]; ok {
		t.Error("bot text must not be captured")
	}
}

func TestRecordEvent_DuplicateAutomaticEvent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	store.put(session)

	first := record(t, svc, session.ID, domain.EventTypeBotMessage, "greet", "Hola")
	if !first.Applied {
		t.Fatal("first bot message should advance")
	}

	// Повтор того же шага (второй таб, повторный рендер).
	second := record(t, svc, session.ID, domain.EventTypeBotMessage, "greet", "Hola")
	if !second.Duplicate || second.Applied || second.Event != nil {
		t.Errorf("expected duplicate, got %+v", second)
	}

	got := getSession(t, store, session.ID)
	if got.CurrentStepIndex != 1 || got.Revision != 1 {
		t.Errorf("duplicate must not advance: index=%d revision=%d", got.CurrentStepIndex, got.Revision)
	}
	events, _ := store.ListBySession(context.Background(), session.ID)
	if len(events) != 1 {
		t.Errorf("duplicate must not be logged, got %d events", len(events))
	}
}

func TestRecordEvent_DuplicateChecksFlow(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	store.put(session)

	res, err := svc.RecordEvent(context.Background(), RecordEventRequest{
		SessionID: session.ID,
		Type:      domain.EventTypeBotMessage,
		FlowID:    "flow_vip",
		StepID:    "greet",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Duplicate {
		t.Error("step in another flow should be a duplicate")
	}
}

func TestRecordEvent_SystemEventDoesNotAdvance(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	store.put(session)

	res, err := svc.RecordEvent(context.Background(), RecordEventRequest{
		SessionID: session.ID,
		Type:      domain.EventTypeSystem,
		Text:      "tab opened by ana@example.com",
		Data:      map[string]any{"phone": "555-123-4567", "tab": float64(2)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied {
		t.Error("system event must not advance")
	}
	if res.Event.Payload.Text != "tab opened by [EMAIL]" {
		t.Errorf("unexpected text %q", res.Event.Payload.Text)
	}
	if res.Event.Payload.Data["phone"] != "[PHONE]" || res.Event.Payload.Data["tab"] != float64(2) {
		t.Errorf("unexpected data %v", res.Event.Payload.Data)
	}
	if res.Event.Revision != nil {
		t.Error("system event should carry no revision")
	}

	got := getSession(t, store, session.ID)
	if got.CurrentStepIndex != 0 || got.Revision != 0 {
		t.Errorf("session changed: index=%d revision=%d", got.CurrentStepIndex, got.Revision)
	}
}

func TestRecordEvent_RetriesOnConflict(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	store.put(session)
	store.conflicts = 2

	res := record(t, svc, session.ID, domain.EventTypeBotMessage, "", "Hola")
	if !res.Applied {
		t.Fatal("expected transition after retries")
	}
	if store.advances != 3 {
		t.Errorf("expected 3 attempts, got %d", store.advances)
	}
	if res.Event.Revision == nil || *res.Event.Revision != 3 {
		t.Errorf("expected event revision 3, got %v", res.Event.Revision)
	}
}

func TestRecordEvent_GivesUpAfterMaxAttempts(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	store.put(session)
	store.conflicts = 10

	_, err := svc.RecordEvent(context.Background(), RecordEventRequest{
		SessionID: session.ID,
		Type:      domain.EventTypeUserMessage,
		Text:      "hola",
	})
	if !errors.Is(err, repo.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if store.advances != defaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", defaultMaxAttempts, store.advances)
	}
}

func TestRecordEvent_Errors(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	tests := []struct {
		name    string
		req     RecordEventRequest
		wantErr error
	}{
		{name: "missing session id", req: RecordEventRequest{Type: domain.EventTypeUserMessage}, wantErr: ErrInvalidEvent},
		{name: "unknown type", req: RecordEventRequest{SessionID: uuid.New(), Type: "click"}, wantErr: ErrInvalidEvent},
		{name: "unknown session", req: RecordEventRequest{SessionID: uuid.New(), Type: domain.EventTypeUserMessage}, wantErr: repo.ErrNotFound},
		{name: "unknown session system event", req: RecordEventRequest{SessionID: uuid.New(), Type: domain.EventTypeSystem}, wantErr: repo.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordEvent(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRecordEvent_NotifierFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	notifier := &fakeNotifier{err: errors.New("broker down")}
	svc := newTestService(t, store, notifier)
	session := intakeSession()
	session.CurrentStepIndex = 3
	store.put(session)

	res := record(t, svc, session.ID, domain.EventTypeSystemHandoff, "handoff", "")
	if !res.Applied || res.Transition.Status != domain.SessionStatusHandoffReady {
		t.Errorf("expected handoff transition, got %+v", res)
	}
}

// --- GetSession ---

func TestGetSession_RendersCurrentStep(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	session.CurrentStepIndex = 2
	session.Lead["name"] = "Ana"
	store.put(session)

	view, err := svc.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	step := view.CurrentStep
	if step == nil {
		t.Fatal("expected current step")
	}
	if step.ID != "ask_plan" || step.Text != "¿Plan, Ana?" || !step.AwaitsInput {
		t.Errorf("unexpected step: %+v", step)
	}
	if len(step.Options) != 2 || step.Options[0].Label != "Básico" || step.Options[1].Label != "VIP" {
		t.Errorf("unexpected options: %+v", step.Options)
	}
	if view.Events == nil {
		t.Error("events should be an empty slice, not nil")
	}
}

func TestGetSession_LanguageAndFallback(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	session.Language = "en"
	delete(session.BotInstance.Variables, "clinicName")
	store.put(session)

	view, err := svc.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.CurrentStep.Text != "Hi, I am the  assistant" {
		t.Errorf("unexpected text %q", view.CurrentStep.Text)
	}
}

func TestGetSession_CompletedHasNoStep(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	session.Status = domain.SessionStatusCompleted
	store.put(session)

	view, err := svc.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.CurrentStep != nil {
		t.Errorf("expected no step, got %+v", view.CurrentStep)
	}
}

func TestGetSession_Expired(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	fresh := intakeSession()
	stale := intakeSession()
	stale.ExpiresAt = testNow.Add(-time.Hour)
	store.put(fresh)
	store.put(stale)

	tests := []struct {
		name    string
		id      uuid.UUID
		expired bool
	}{
		{name: "within ttl", id: fresh.ID, expired: false},
		{name: "past expires_at", id: stale.ID, expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := svc.GetSession(context.Background(), tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if view.Expired != tt.expired {
				t.Errorf("Expired = %v, want %v", view.Expired, tt.expired)
			}
		})
	}
}

func TestGetSession_NotFound(t *testing.T) {
	svc := newTestService(t, newMemStore(), nil)

	if _, err := svc.GetSession(context.Background(), uuid.New()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- UpdateLanguage ---

func TestUpdateLanguage(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	store.put(session)

	if err := svc.UpdateLanguage(context.Background(), session.ID, "en"); err != nil {
		t.Fatal(err)
	}
	if got := getSession(t, store, session.ID); got.Language != "en" {
		t.Errorf("expected en, got %q", got.Language)
	}

	if err := svc.UpdateLanguage(context.Background(), session.ID, "pt"); !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("expected ErrInvalidLanguage, got %v", err)
	}
	if err := svc.UpdateLanguage(context.Background(), uuid.New(), "es"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Handoff ---

func TestHandoff(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	session := intakeSession()
	session.Status = domain.SessionStatusHandoffReady
	session.Lead["name"] = "Ana"
	session.Lead["plan"] = "write me at ana@example.com"
	store.put(session)

	res, err := svc.Handoff(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := "Nombre: Ana. Plan: write me at [EMAIL]. Tel: N/A"
	if res.Summary != want {
		t.Errorf("summary = %q, want %q", res.Summary, want)
	}
	if res.AlreadyDone {
		t.Error("first handoff should not be marked as done")
	}

	got := getSession(t, store, session.ID)
	if got.Status != domain.SessionStatusCompleted || !got.HandoffReady || got.SummaryText != want {
		t.Errorf("unexpected session after handoff: %+v", got)
	}

	// Повтор возвращает сохранённое резюме.
	again, err := svc.Handoff(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.AlreadyDone || again.Summary != want {
		t.Errorf("unexpected repeat result: %+v", again)
	}
	if got2 := getSession(t, store, session.ID); got2.Revision != got.Revision {
		t.Error("repeat handoff must not write")
	}
}

func TestSummarize(t *testing.T) {
	session := intakeSession()
	session.Language = "en"
	session.Lead["name"] = "Bob"

	if got := Summarize(session); !strings.HasPrefix(got, "Name: Bob. Plan: N/A") {
		t.Errorf("unexpected summary %q", got)
	}

	session.BotInstance.Handoff = nil
	if got := Summarize(session); got != "" {
		t.Errorf("expected empty summary without template, got %q", got)
	}
}

func TestListPendingHandoffs(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	pending := intakeSession()
	pending.Status = domain.SessionStatusHandoffReady
	active := intakeSession()
	store.put(pending)
	store.put(active)

	ids, err := svc.ListPendingHandoffs(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != pending.ID {
		t.Errorf("expected [%s], got %v", pending.ID, ids)
	}
}

// --- PurgeExpired ---

func TestPurgeExpired(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	expired := intakeSession()
	expired.ExpiresAt = testNow.Add(-time.Minute)
	alive := intakeSession()
	store.put(expired)
	store.put(alive)
	record(t, svc, expired.ID, domain.EventTypeSystem, "", "x")

	n, err := svc.PurgeExpired(context.Background(), testNow, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	if _, err := store.GetByID(context.Background(), expired.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Error("expired session should be gone")
	}
	if events, _ := store.ListBySession(context.Background(), expired.ID); len(events) != 0 {
		t.Errorf("events should be purged, got %d", len(events))
	}
	if _, err := store.GetByID(context.Background(), alive.ID); err != nil {
		t.Error("alive session should stay")
	}
}

// --- Full flow through the catalogue ---

func TestCatalogConversation_ReachesHandoff(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	session, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		Specialty:    "dental",
		Goal:         "appointments",
		Demographics: map[string]any{"clinicName": "Acme"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Прогоняем диалог: на шагах ввода отвечаем первой опцией или текстом,
	// остальные шаги подтверждаем bot_message.
	for i := 0; i < 50; i++ {
		current := getSession(t, store, session.ID)
		if current.Status != domain.SessionStatusActive {
			break
		}
		step := RenderCurrentStep(current)
		if step == nil {
			t.Fatalf("active session without current step at %s/%d", current.CurrentFlowID, current.CurrentStepIndex)
		}
		if !step.AwaitsInput {
			record(t, svc, session.ID, domain.EventTypeBotMessage, step.ID, step.Text)
			continue
		}
		answer := "Ana"
		if len(step.Options) > 0 {
			answer = step.Options[0].Value
		}
		record(t, svc, session.ID, domain.EventTypeUserMessage, "", answer)
	}

	final := getSession(t, store, session.ID)
	if final.Status == domain.SessionStatusActive {
		t.Fatal("conversation did not finish")
	}

	res, err := svc.Handoff(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary == "" {
		t.Error("expected non-empty summary")
	}
}

func TestService_UsesLoggerFromContext(t *testing.T) {
	svc := newTestService(t, newMemStore(), nil)

	var buf bytes.Buffer
	reqLogger := slog.New(slog.NewTextHandler(&buf, nil)).With("request_id", "req-1")
	ctx := telemetry.WithLogger(context.Background(), reqLogger)

	if _, err := svc.CreateSession(ctx, CreateSessionRequest{Specialty: "dental", Goal: "faqs"}); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "session created") || !strings.Contains(out, "request_id=req-1") {
		t.Errorf("expected request logger to be used, got %q", out)
	}
}
