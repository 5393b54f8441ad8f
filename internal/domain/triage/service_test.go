package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/patient"
	"github.com/carebridge/carebridge/internal/platform/llm"
	"github.com/carebridge/carebridge/internal/platform/notification"
)

func newTestService(gen llm.Generator, store *memStore, notifier *stubNotifier) *Service {
	patients := &stubPatients{profiles: map[string]*patient.Patient{
		"alice@example.com": {ID: "alice@example.com", Name: "Alice"},
	}}
	graph := newTestGraph(gen, &stubGeocoder{}, patients, store)
	return NewService(graph, store, NewSummarizer(gen, testLogger), notifier, "doctor@clinic.example.com", testLogger)
}

func clinicalGen() llm.Generator {
	return fixedGen("RESPONSE: Keep an eye on it and rest.\nSEVERITY: low")
}

// runExchanges sends n messages through one session and returns its id.
func runExchanges(t *testing.T, svc *Service, n int, message string) string {
	t.Helper()
	var session string
	for i := 0; i < n; i++ {
		resp, err := svc.Chat(context.Background(), ChatRequest{
			PatientID: "alice@example.com",
			SessionID: session,
			Message:   message,
		})
		if err != nil {
			t.Fatalf("exchange %d: %v", i+1, err)
		}
		session = resp.SessionID
	}
	return session
}

func TestChatPersistsExchange(t *testing.T) {
	store := &memStore{}
	svc := newTestService(clinicalGen(), store, &stubNotifier{})

	resp, err := svc.Chat(context.Background(), ChatRequest{
		PatientID: "Alice@Example.com",
		Message:   "I have a mild headache, any medication advice?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("records = %d, want 1", len(store.records))
	}
	rec := store.records[0]
	if rec.PatientID != "alice@example.com" {
		t.Errorf("patient id not normalized: %q", rec.PatientID)
	}
	if resp.SessionID == "" {
		t.Error("a new session id must be assigned")
	}
	if rec.SessionID != resp.SessionID {
		t.Errorf("record session = %q, response session = %q", rec.SessionID, resp.SessionID)
	}
	if rec.QAPairCount != 1 {
		t.Errorf("qa pair count = %d, want 1", rec.QAPairCount)
	}
	if rec.Response != "Keep an eye on it and rest." {
		t.Errorf("response = %q", rec.Response)
	}
	if resp.SentToDoctor {
		t.Error("low severity clinical exchange should not alert the doctor")
	}
	// both chat turns recorded
	if len(store.chat) != 2 {
		t.Errorf("chat turns = %d, want 2", len(store.chat))
	}
}

func TestChatEmergencyAlwaysNotifiesDoctor(t *testing.T) {
	store := &memStore{}
	notifier := &stubNotifier{}
	svc := newTestService(failingGen(), store, notifier)

	resp, err := svc.Chat(context.Background(), ChatRequest{
		PatientID: "alice@example.com",
		Message:   "I think I'm having a heart attack",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.SentToDoctor {
		t.Error("emergency must alert the doctor")
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != notification.TemplateEmergencyAlert {
		t.Errorf("notifier calls = %v, want one emergency alert", notifier.sent)
	}
	if !store.records[0].SentToDoctor {
		t.Error("record must carry sent_to_doctor")
	}
	if store.records[0].SentToPatient {
		t.Error("emergency record must not be marked sent to patient")
	}
}

func TestChatClinicalHighSeverityNotifies(t *testing.T) {
	store := &memStore{}
	notifier := &stubNotifier{}
	svc := newTestService(fixedGen("RESPONSE: See a clinician today.\nSEVERITY: high"), store, notifier)

	resp, err := svc.Chat(context.Background(), ChatRequest{
		PatientID: "alice@example.com",
		Message:   "the medication is causing a severe reaction",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.SentToDoctor {
		t.Error("high severity clinical exchange must alert the doctor")
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != notification.TemplateClinicalEscalation {
		t.Errorf("notifier calls = %v, want one clinical escalation", notifier.sent)
	}
}

func TestChatNotifyFailureDoesNotFailTurn(t *testing.T) {
	store := &memStore{}
	notifier := &stubNotifier{failure: errors.New("smtp down")}
	svc := newTestService(failingGen(), store, notifier)

	resp, err := svc.Chat(context.Background(), ChatRequest{
		PatientID: "alice@example.com",
		Message:   "severe bleeding everywhere",
	})
	if err != nil {
		t.Fatalf("Chat must not fail on alert failure: %v", err)
	}
	if resp.Response == "" {
		t.Error("patient still gets a response")
	}
	if len(store.records) != 1 {
		t.Errorf("exchange must still be persisted, records = %d", len(store.records))
	}
}

func TestChatCheckpointOfferReplacesBoundaryExchange(t *testing.T) {
	store := &memStore{}
	svc := newTestService(clinicalGen(), store, &stubNotifier{})
	ctx := context.Background()

	session := runExchanges(t, svc, 7, "medication question")

	resp, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", SessionID: session, Message: "one more question"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.CheckpointPending {
		t.Error("the message entering the boundary must get the checkpoint offer")
	}
	if !strings.Contains(resp.Response, "continue") || !strings.Contains(resp.Response, "end") {
		t.Errorf("offer missing choices: %q", resp.Response)
	}
	if strings.Contains(resp.Response, "Keep an eye on it") {
		t.Errorf("offer must replace the answer, got %q", resp.Response)
	}
	if len(store.records) != 7 {
		t.Errorf("records = %d, the offered turn must not be recorded as an exchange", len(store.records))
	}
	n, _ := store.CountQAPairs(ctx, "alice@example.com", session)
	if n != 7 {
		t.Errorf("qa pair count at the boundary = %d, want 7 unchanged", n)
	}

	// Until the patient replies, every message keeps getting the offer.
	resp, err = svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", SessionID: session, Message: "hello?"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.CheckpointPending {
		t.Error("offer must repeat until the checkpoint is resolved")
	}
}

func TestCheckpointReplyContinueResetsCounter(t *testing.T) {
	store := &memStore{}
	svc := newTestService(clinicalGen(), store, &stubNotifier{})
	ctx := context.Background()

	session := runExchanges(t, svc, 7, "medication question")
	if _, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", SessionID: session, Message: "more"}); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Chat(ctx, ChatRequest{
		PatientID:       "alice@example.com",
		SessionID:       session,
		CheckpointReply: "Continue",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.SummaryWritten {
		t.Error("continue must not write a summary")
	}
	if len(store.summaries()) != 0 {
		t.Errorf("summaries = %d, want 0", len(store.summaries()))
	}
	n, _ := store.CountQAPairs(ctx, "alice@example.com", session)
	if n != 0 {
		t.Errorf("qa pair count after continue = %d, want 0", n)
	}

	// The conversation proceeds normally for another loop.
	next, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", SessionID: session, Message: "medication question"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if next.CheckpointPending {
		t.Error("first exchange of the new loop must be answered, not offered")
	}
	if next.Response != "Keep an eye on it and rest." {
		t.Errorf("response = %q", next.Response)
	}
}

func TestCheckpointReplyEndWritesExactlyOneSummary(t *testing.T) {
	store := &memStore{}
	svc := newTestService(clinicalGen(), store, &stubNotifier{})
	ctx := context.Background()

	session := runExchanges(t, svc, 7, "medication question")

	resp, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", SessionID: session, CheckpointReply: "end"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.SummaryWritten {
		t.Error("end must write a summary")
	}

	summaries := store.summaries()
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want exactly 1", len(summaries))
	}
	if summaries[0].QAPairCount != 7 {
		t.Errorf("summary qa pair count = %d, want 7", summaries[0].QAPairCount)
	}
	if summaries[0].SessionID != session {
		t.Errorf("summary session = %q, want %q", summaries[0].SessionID, session)
	}

	// counter restarts after the summary
	n, _ := store.CountQAPairs(ctx, "alice@example.com", session)
	if n != 0 {
		t.Errorf("qa pair count after summary = %d, want 0", n)
	}
}

func TestSummaryCarriesConversationSeverityAndAgent(t *testing.T) {
	store := &memStore{}
	notifier := &stubNotifier{}
	svc := newTestService(fixedGen("RESPONSE: See a clinician today.\nSEVERITY: high"), store, notifier)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, ChatRequest{
		PatientID: "alice@example.com",
		Message:   "the medication is causing a severe reaction",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", SessionID: resp.SessionID, CheckpointReply: "end"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	summaries := store.summaries()
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
	sum := summaries[0]
	if sum.Severity != SeverityHigh {
		t.Errorf("summary severity = %q, want the conversation's high", sum.Severity)
	}
	if sum.AgentType != RouteClinical {
		t.Errorf("summary agent type = %q, want clinical", sum.AgentType)
	}
	if sum.SummarySource != communication.SummarySourceAIGenerated {
		t.Errorf("summary source = %q, want ai_generated", sum.SummarySource)
	}
}

func TestCheckpointReplyEndUsesFallbackWhenModelFails(t *testing.T) {
	store := &memStore{}
	svc := newTestService(failingGen(), store, &stubNotifier{})
	ctx := context.Background()

	resp, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", Message: "how do I store insulin"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", SessionID: resp.SessionID, CheckpointReply: "end"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	summaries := store.summaries()
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
	if summaries[0].SummarySource != communication.SummarySourceFallback {
		t.Errorf("summary source = %q, want fallback", summaries[0].SummarySource)
	}
	if !strings.Contains(summaries[0].Response, "how do I store insulin") {
		t.Errorf("fallback summary should list topics: %q", summaries[0].Response)
	}
}

func TestSessionsCountIndependently(t *testing.T) {
	store := &memStore{}
	svc := newTestService(clinicalGen(), store, &stubNotifier{})
	ctx := context.Background()

	first := runExchanges(t, svc, 7, "medication question")

	// A fresh session is not at the first session's boundary.
	resp, err := svc.Chat(ctx, ChatRequest{PatientID: "alice@example.com", Message: "medication question"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.SessionID == first {
		t.Fatal("a message without a session id must start a new session")
	}
	if resp.CheckpointPending {
		t.Error("new session must not inherit another session's checkpoint")
	}
	if resp.Response != "Keep an eye on it and rest." {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestChatValidation(t *testing.T) {
	svc := newTestService(clinicalGen(), &memStore{}, &stubNotifier{})
	ctx := context.Background()

	var ve *ValidationError
	if _, err := svc.Chat(ctx, ChatRequest{Message: "hi"}); !errors.As(err, &ve) {
		t.Errorf("missing patient_id: err = %v, want ValidationError", err)
	}
	if _, err := svc.Chat(ctx, ChatRequest{PatientID: "a@example.com"}); !errors.As(err, &ve) {
		t.Errorf("missing message: err = %v, want ValidationError", err)
	}
	if _, err := svc.Chat(ctx, ChatRequest{PatientID: "a@example.com", CheckpointReply: "end"}); !errors.As(err, &ve) {
		t.Errorf("checkpoint reply without session: err = %v, want ValidationError", err)
	}
	if _, err := svc.Chat(ctx, ChatRequest{PatientID: "a@example.com", SessionID: "s1", CheckpointReply: "maybe"}); !errors.As(err, &ve) {
		t.Errorf("bad checkpoint reply: err = %v, want ValidationError", err)
	}
}
