package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/db"
	"github.com/practicehq/practice/internal/platform/gateway"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminal          = errors.New("claim is in a terminal state")
	ErrNotDraft          = errors.New("claim is no longer editable")
	ErrPatientInactive   = errors.New("patient is not active")
	ErrNoLines           = errors.New("claim has no lines")
	ErrAmountInvariant   = errors.New("amount violates adjudication bounds")
)

// statusTransitions is the claim lifecycle graph.
var statusTransitions = map[string][]string{
	StatusDraft:             {StatusSubmitted, StatusCancelled},
	StatusSubmitted:         {StatusInReview, StatusRejected},
	StatusInReview:          {StatusApproved, StatusPartiallyApproved, StatusDenied},
	StatusApproved:          {StatusSettled},
	StatusPartiallyApproved: {StatusSettled, StatusAppealed},
	StatusDenied:            {StatusAppealed},
	StatusAppealed:          {StatusInReview, StatusSettled},
}

func canTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PatientGate answers whether a patient may take on new activity.
type PatientGate interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// Clearinghouse submits claims to the payer network.
type Clearinghouse interface {
	SubmitClaim(ctx context.Context, sub gateway.ClaimSubmission) (*gateway.ClaimAck, error)
}

// EligibilityChecker verifies coverage with the payer network.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, payer, memberID string) (*gateway.Eligibility, error)
}

type Service struct {
	repo        Repository
	patients    PatientGate
	clearing    Clearinghouse
	eligibility EligibilityChecker
	runTx       db.TxFunc
	log         zerolog.Logger
}

func NewService(repo Repository, patients PatientGate, clearing Clearinghouse, runTx db.TxFunc, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		clearing: clearing,
		runTx:    runTx,
		log:      log.With().Str("component", "billing").Logger(),
	}
}

// SetEligibilityChecker attaches the payer eligibility verifier.
func (s *Service) SetEligibilityChecker(ec EligibilityChecker) {
	s.eligibility = ec
}

// VerifyCoverage asks the payer network whether the member's coverage
// is active.
func (s *Service) VerifyCoverage(ctx context.Context, payer, memberID string) (*gateway.Eligibility, error) {
	if payer == "" || memberID == "" {
		return nil, fmt.Errorf("payer and member_id are required")
	}
	if s.eligibility == nil {
		return nil, fmt.Errorf("eligibility checks are not configured")
	}
	return s.eligibility.CheckEligibility(ctx, payer, memberID)
}

// FormatClaimNumber renders a sequence value as a claim number for the
// given year.
func FormatClaimNumber(year int, seq int64) string {
	return fmt.Sprintf("CLM-%d-%06d", year, seq)
}

func (s *Service) Create(ctx context.Context, c *Claim) error {
	if c.PatientID == uuid.Nil || c.ProviderID == uuid.Nil {
		return fmt.Errorf("patient_id and provider_id are required")
	}
	if c.Payer == "" {
		return fmt.Errorf("payer is required")
	}
	if c.ServiceDate.IsZero() {
		return fmt.Errorf("service_date is required")
	}
	if c.Status != "" && c.Status != StatusDraft {
		return fmt.Errorf("new claims start as draft, got %s", c.Status)
	}
	c.Status = StatusDraft

	active, err := s.patients.IsActive(ctx, c.PatientID)
	if err != nil {
		return fmt.Errorf("checking patient: %w", err)
	}
	if !active {
		return ErrPatientInactive
	}

	seq, err := s.repo.NextClaimSeq(ctx)
	if err != nil {
		return fmt.Errorf("allocating claim number: %w", err)
	}
	c.ClaimNumber = FormatClaimNumber(c.ServiceDate.Year(), seq)
	c.BilledAmount = 0
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Claim, int, error) {
	return s.repo.List(ctx, params, sort, limit, offset)
}

func (s *Service) GetLines(ctx context.Context, claimID uuid.UUID) ([]*ClaimLine, error) {
	return s.repo.GetLines(ctx, claimID)
}

func (s *Service) GetPayments(ctx context.Context, claimID uuid.UUID) ([]*Payment, error) {
	return s.repo.GetPayments(ctx, claimID)
}

// UpdateDraft edits header fields on a draft claim. Lines go through
// AddLine and RemoveLine; amounts and status never change here.
func (s *Service) UpdateDraft(ctx context.Context, id uuid.UUID, payer string, serviceDate time.Time, appointmentID *uuid.UUID) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, ErrNotDraft
	}
	if payer != "" {
		c.Payer = payer
	}
	if !serviceDate.IsZero() {
		c.ServiceDate = serviceDate
	}
	if appointmentID != nil {
		c.AppointmentID = appointmentID
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddLine appends a service line to a draft claim and recomputes the
// billed total inside one transaction.
func (s *Service) AddLine(ctx context.Context, line *ClaimLine) error {
	if line.CPTCode == "" {
		return fmt.Errorf("cpt_code is required")
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if line.UnitPrice < 0 {
		return fmt.Errorf("unit_price cannot be negative")
	}
	line.Amount = float64(line.Quantity) * line.UnitPrice

	return s.runTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, line.ClaimID)
		if err != nil {
			return err
		}
		if c.Status != StatusDraft {
			return ErrNotDraft
		}
		existing, err := s.repo.GetLines(ctx, line.ClaimID)
		if err != nil {
			return err
		}
		line.Sequence = len(existing) + 1
		if err := s.repo.AddLine(ctx, line); err != nil {
			return err
		}
		return s.recomputeBilled(ctx, c)
	})
}

// RemoveLine deletes a line from a draft claim and recomputes the total.
func (s *Service) RemoveLine(ctx context.Context, claimID, lineID uuid.UUID) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, claimID)
		if err != nil {
			return err
		}
		if c.Status != StatusDraft {
			return ErrNotDraft
		}
		if err := s.repo.DeleteLine(ctx, claimID, lineID); err != nil {
			return err
		}
		return s.recomputeBilled(ctx, c)
	})
}

func (s *Service) recomputeBilled(ctx context.Context, c *Claim) error {
	lines, err := s.repo.GetLines(ctx, c.ID)
	if err != nil {
		return err
	}
	total := 0.0
	for _, l := range lines {
		total += l.Amount
	}
	c.BilledAmount = total
	return s.repo.Update(ctx, c)
}

// Submit sends a draft claim to the clearinghouse and moves it to
// submitted. A claim without lines cannot be submitted.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, patientMRN, providerNPI string) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusSubmitted)
	}
	lines, err := s.repo.GetLines(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	ack, err := s.clearing.SubmitClaim(ctx, gateway.ClaimSubmission{
		ClaimNumber:  c.ClaimNumber,
		PatientMRN:   patientMRN,
		ProviderNPI:  providerNPI,
		Payer:        c.Payer,
		BilledAmount: c.BilledAmount,
		ServiceDate:  c.ServiceDate.Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("clearinghouse submission: %w", err)
	}

	now := time.Now().UTC()
	c.Status = StatusSubmitted
	c.SubmittedAt = &now
	c.ExternalID = &ack.ExternalID
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Str("claim", c.ClaimNumber).Str("external_id", ack.ExternalID).Msg("claim submitted")
	return c, nil
}

// Adjudicate records the payer's decision. The allowed amount must stay
// within [0, billed]; approved means paid in full terms were allowed,
// denied means nothing was.
func (s *Service) Adjudicate(ctx context.Context, id uuid.UUID, outcome string, allowed float64, denialReason string) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, c.Status)
	}
	if !canTransition(c.Status, outcome) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, outcome)
	}

	switch outcome {
	case StatusApproved:
		if allowed <= 0 || allowed > c.BilledAmount {
			return nil, fmt.Errorf("%w: allowed %.2f, billed %.2f", ErrAmountInvariant, allowed, c.BilledAmount)
		}
	case StatusPartiallyApproved:
		if allowed <= 0 || allowed >= c.BilledAmount {
			return nil, fmt.Errorf("%w: partial approval requires 0 < allowed < billed", ErrAmountInvariant)
		}
	case StatusDenied:
		allowed = 0
		if denialReason == "" {
			return nil, fmt.Errorf("denial requires a reason")
		}
		c.DenialReason = &denialReason
	default:
		return nil, fmt.Errorf("%w: %s is not an adjudication outcome", ErrInvalidTransition, outcome)
	}

	c.Status = outcome
	c.AllowedAmount = allowed
	c.PatientResponsibility = allowed - c.PaidAmount
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MoveToReview acknowledges clearinghouse acceptance of a submitted or
// appealed claim.
func (s *Service) MoveToReview(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.transition(ctx, id, StatusInReview, "")
}

// Reject records a clearinghouse rejection of a submitted claim.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Claim, error) {
	if reason == "" {
		return nil, fmt.Errorf("rejection requires a reason")
	}
	return s.transition(ctx, id, StatusRejected, reason)
}

// Appeal contests a denial or partial approval.
func (s *Service) Appeal(ctx context.Context, id uuid.UUID, reason string) (*Claim, error) {
	if reason == "" {
		return nil, fmt.Errorf("appeal requires a reason")
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, c.Status)
	}
	if !canTransition(c.Status, StatusAppealed) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusAppealed)
	}
	c.Status = StatusAppealed
	c.AppealReason = &reason
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Cancel withdraws a draft claim.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.transition(ctx, id, StatusCancelled, "")
}

// Settle closes out the claim's financial lifecycle.
func (s *Service) Settle(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, c.Status)
	}
	if !canTransition(c.Status, StatusSettled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusSettled)
	}
	now := time.Now().UTC()
	c.Status = StatusSettled
	c.SettledAt = &now
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RecordPayment posts a payer payment against an adjudicated claim.
// Total paid may never exceed the allowed amount.
func (s *Service) RecordPayment(ctx context.Context, p *Payment) (*Claim, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	if p.Method == "" {
		p.Method = "eft"
	}
	if p.PostedAt.IsZero() {
		p.PostedAt = time.Now().UTC()
	}

	var claim *Claim
	err := s.runTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, p.ClaimID)
		if err != nil {
			return err
		}
		switch c.Status {
		case StatusApproved, StatusPartiallyApproved, StatusAppealed:
		default:
			return fmt.Errorf("%w: payments require an adjudicated claim, status is %s", ErrInvalidTransition, c.Status)
		}
		if c.PaidAmount+p.Amount > c.AllowedAmount {
			return fmt.Errorf("%w: paid %.2f + %.2f exceeds allowed %.2f",
				ErrAmountInvariant, c.PaidAmount, p.Amount, c.AllowedAmount)
		}
		if err := s.repo.AddPayment(ctx, p); err != nil {
			return err
		}
		c.PaidAmount += p.Amount
		c.PatientResponsibility = c.AllowedAmount - c.PaidAmount
		claim = c
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to, denialReason string) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, c.Status)
	}
	if !canTransition(c.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	if denialReason != "" {
		c.DenialReason = &denialReason
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
