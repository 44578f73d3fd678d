package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies a step in the opportunity pipeline.
type Stage string

const (
	StageNewEnquiry          Stage = "new_enquiry"
	StageCall1Scheduled      Stage = "call1_scheduled"
	StageCall1Complete       Stage = "call1_complete"
	StageCall2Scheduled      Stage = "call2_scheduled"
	StageDesignApproved      Stage = "design_approved"
	StageAwaitingDeposit     Stage = "awaiting_deposit"
	StageDepositPaid         Stage = "deposit_paid"
	StageOnboardingScheduled Stage = "onboarding_scheduled"
	StageInstallationBooked  Stage = "installation_booked"
	StageCompleted           Stage = "completed"
	StageLost                Stage = "lost"
)

// Valid reports whether the stage is a known pipeline stage.
func (s Stage) Valid() bool {
	switch s {
	case StageNewEnquiry, StageCall1Scheduled, StageCall1Complete,
		StageCall2Scheduled, StageDesignApproved, StageAwaitingDeposit,
		StageDepositPaid, StageOnboardingScheduled, StageInstallationBooked,
		StageCompleted, StageLost:
		return true
	}
	return false
}

// Lead is a person who enquired about a wardrobe installation.
type Lead struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// Opportunity tracks a lead's progress through the sales pipeline.
type Opportunity struct {
	ID            uuid.UUID
	LeadID        uuid.UUID
	Stage         Stage
	ProjectType   string
	ValueEstimate int64 // pence
	OwnerUserID   *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// User is an internal operator who owns opportunities and tasks.
type User struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "open"
	TaskStatusDone TaskStatus = "done"
)

// Task is an operational to-do attached to an opportunity.
type Task struct {
	ID            uuid.UUID
	OpportunityID uuid.UUID
	Type          string
	Description   string
	DueAt         time.Time
	OwnerUserID   *uuid.UUID
	Status        TaskStatus
	CreatedAt     time.Time
}

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Invoice carries the deposit request raised at awaiting_deposit.
type Invoice struct {
	ID                uuid.UUID
	OpportunityID     uuid.UUID
	AmountPence       int64
	DepositPence      int64
	Status            InvoiceStatus
	CheckoutSessionID string
	CheckoutURL       string
	CreatedAt         time.Time
}

// DepositPence computes the 30% deposit for an estimated project value.
func DepositPence(valueEstimate int64) int64 {
	return valueEstimate * 30 / 100
}
