// Package notification delivers patient and doctor emails with template
// rendering, an in-memory delivery log, and a pluggable sender.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification represents a single outbound email.
type Notification struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Priority     string            `json:"priority"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Built-in template IDs.
const (
	TemplateEmergencyAlert      = "emergency-alert"
	TemplateClinicalEscalation  = "clinical-escalation"
	TemplateConversationSummary = "conversation-summary"
	TemplateAuditReport         = "audit-report"
)

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateEmergencyAlert,
			Name:    "Emergency Alert",
			Subject: "EMERGENCY: patient {{patient_id}} requires immediate attention",
			Body:    "Patient {{patient_id}} reported: {{query}}\n\nSeverity: {{severity}}\nLocation: {{location}}\nNearest facility: {{facility}}\n\nThis alert was generated automatically from the patient's latest message.",
		},
		{
			ID:      TemplateClinicalEscalation,
			Name:    "Clinical Escalation",
			Subject: "Clinical escalation for patient {{patient_id}} (severity: {{severity}})",
			Body:    "Patient {{patient_id}} asked: {{query}}\n\nAssistant response: {{response}}\nAssessed severity: {{severity}}\n\nPlease review and follow up with the patient.",
		},
		{
			ID:      TemplateConversationSummary,
			Name:    "Conversation Summary",
			Subject: "Conversation summary for {{patient_id}}",
			Body:    "Dear {{patient_name}}, here is a summary of your recent conversation:\n\n{{summary}}",
		},
		{
			ID:      TemplateAuditReport,
			Name:    "Audit Report",
			Subject: "Compliance audit completed: {{status}} ({{score}}%)",
			Body:    "Audit {{audit_id}} finished at {{completed_at}}.\n\nOverall score: {{score}}%\nStatus: {{status}}\nStandards: {{standards}}\n\nFindings:\n{{findings}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager orchestrates sending and keeps an in-memory delivery log so
// operators can inspect what went out and why.
type Manager struct {
	sender    EmailSender
	templates *TemplateEngine

	mu  sync.RWMutex
	log map[string]*Notification
}

func NewManager(sender EmailSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		sender:    sender,
		templates: tpl,
		log:       make(map[string]*Notification),
	}
}

// Send dispatches a notification, assigns an ID and timestamps, and records
// the outcome.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Priority == "" {
		n.Priority = "normal"
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := m.sender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.log[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get retrieves a logged notification by ID.
func (m *Manager) Get(id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.log[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// Stats returns counts of logged notifications grouped by status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.log {
		stats[n.Status]++
	}
	return stats
}
