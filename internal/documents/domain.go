package documents

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hinfinity/hrdesk/internal/sla"
)

// DocumentType identifies the requested document.
type DocumentType string

const (
	TypeOfferLetter            DocumentType = "offer_letter"
	TypeExperienceLetter       DocumentType = "experience_letter"
	TypeSalarySlip             DocumentType = "salary_slip"
	TypeEmploymentVerification DocumentType = "employment_verification"
	TypeRelievingLetter        DocumentType = "relieving_letter"
	TypeCustom                 DocumentType = "custom"
)

// Label renders the type for humans, e.g. "Salary Slip".
func (t DocumentType) Label() string {
	return humanize(string(t))
}

// Status is the stored lifecycle state of a request.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAutoGenerating   Status = "auto_generating"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusApproved         Status = "approved"
	StatusInProgress       Status = "in_progress"
	StatusCompleted        Status = "completed"
	StatusRejected         Status = "rejected"
	StatusChangesRequested Status = "changes_requested"
)

// StatusSLABreached is never stored. It is rendered for open requests past
// their deadline.
const StatusSLABreached Status = "sla_breached"

// Statuses lists the storable states.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusAutoGenerating, StatusAwaitingApproval, StatusApproved,
		StatusInProgress, StatusCompleted, StatusRejected, StatusChangesRequested,
	}
}

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.TrimSpace(raw))
	for _, candidate := range Statuses() {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Open reports whether the SLA clock still applies.
func (s Status) Open() bool {
	_, known := ParseStatus(string(s))
	return known && !s.Terminal()
}

// Label renders the status for humans.
func (s Status) Label() string {
	return humanize(string(s))
}

// Format is the rendered file format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// DeliveryMethod selects where the document is delivered.
type DeliveryMethod string

const (
	DeliveryPortal DeliveryMethod = "portal"
	DeliveryEmail  DeliveryMethod = "email"
	DeliveryBoth   DeliveryMethod = "both"
)

// Request is a document request tracked against an SLA.
type Request struct {
	ID                 uuid.UUID      `json:"id"`
	RequesterID        uuid.UUID      `json:"requester_id"`
	RequesterName      string         `json:"requester_name"`
	DocumentType       DocumentType   `json:"document_type"`
	Purpose            string         `json:"purpose"`
	Period             string         `json:"period,omitempty"`
	Format             Format         `json:"format"`
	DeliveryMethod     DeliveryMethod `json:"delivery_method"`
	Status             Status         `json:"status"`
	SLAHours           float64        `json:"sla_hours"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DueBy              time.Time      `json:"due_by"`
	EscalationLevel    int            `json:"escalation_level"`
	EscalationNotified bool           `json:"escalation_notified"`
	ApproverRole       string         `json:"approver_role,omitempty"`
	ApprovedBy         *uuid.UUID     `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time     `json:"approved_at,omitempty"`
	RejectionReason    string         `json:"rejection_reason,omitempty"`
	Comment            string         `json:"comment,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Version            int64          `json:"version"`
}

// Progress evaluates the SLA at now.
func (r Request) Progress(now time.Time) sla.Progress {
	return sla.CalculateProgress(r.CreatedAt, r.DueBy, now)
}

// Breached reports whether an open request is past its deadline.
func (r Request) Breached(now time.Time) bool {
	return r.Status.Open() && r.Progress(now).IsBreached
}

// HistoryEntry is an append-only record of a request mutation.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	RequestID  uuid.UUID `json:"request_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	Action     string    `json:"action"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	Note       string    `json:"note,omitempty"`
	Level      int       `json:"escalation_level"`
	At         time.Time `json:"at"`
}

// View is a request annotated with its SLA state for queue screens.
type View struct {
	Request
	TypeLabel     string       `json:"type_label"`
	StatusLabel   string       `json:"status_label"`
	DisplayStatus Status       `json:"display_status"`
	Progress      sla.Progress `json:"progress"`
	Health        sla.Health   `json:"health,omitempty"`
	Urgency       sla.Urgency  `json:"urgency,omitempty"`
	Breached      bool         `json:"breached"`
	TimeRemaining string       `json:"time_remaining,omitempty"`
}

// NewView computes the breach overlay at now.
func NewView(r Request, now time.Time) View {
	v := View{
		Request:       r,
		TypeLabel:     r.DocumentType.Label(),
		StatusLabel:   r.Status.Label(),
		DisplayStatus: r.Status,
	}
	if !r.Status.Open() {
		return v
	}
	v.Progress = r.Progress(now)
	v.Health = sla.Classify(v.Progress)
	v.Urgency = sla.UrgencyOf(v.Progress)
	v.Breached = v.Progress.IsBreached
	if v.Breached {
		v.DisplayStatus = StatusSLABreached
		v.StatusLabel = StatusSLABreached.Label()
	} else if !r.DueBy.IsZero() {
		v.TimeRemaining = sla.FormatDuration(v.Progress.HoursRemaining)
	}
	return v
}

func humanize(raw string) string {
	// Casers carry state and are not shared across goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(raw, "_", " "))
}
