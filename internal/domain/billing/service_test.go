package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/gateway"
)

type mockRepo struct {
	claims   map[uuid.UUID]*Claim
	lines    map[uuid.UUID][]*ClaimLine
	payments map[uuid.UUID][]*Payment
	seq      int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		claims:   make(map[uuid.UUID]*Claim),
		lines:    make(map[uuid.UUID][]*ClaimLine),
		payments: make(map[uuid.UUID][]*Payment),
	}
}

func (m *mockRepo) Create(_ context.Context, c *Claim) error {
	c.ID = uuid.New()
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) GetByNumber(_ context.Context, number string) (*Claim, error) {
	for _, c := range m.claims {
		if c.ClaimNumber == number {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockRepo) Update(_ context.Context, c *Claim) error {
	if _, ok := m.claims[c.ID]; !ok {
		return errors.New("not found")
	}
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, _ map[string]string, _ string, _, _ int) ([]*Claim, int, error) {
	var items []*Claim
	for _, c := range m.claims {
		items = append(items, c)
	}
	return items, len(items), nil
}

func (m *mockRepo) NextClaimSeq(_ context.Context) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockRepo) AddLine(_ context.Context, line *ClaimLine) error {
	line.ID = uuid.New()
	m.lines[line.ClaimID] = append(m.lines[line.ClaimID], line)
	return nil
}

func (m *mockRepo) DeleteLine(_ context.Context, claimID, lineID uuid.UUID) error {
	lines := m.lines[claimID]
	for i, l := range lines {
		if l.ID == lineID {
			m.lines[claimID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (m *mockRepo) GetLines(_ context.Context, claimID uuid.UUID) ([]*ClaimLine, error) {
	return m.lines[claimID], nil
}

func (m *mockRepo) AddPayment(_ context.Context, p *Payment) error {
	p.ID = uuid.New()
	m.payments[p.ClaimID] = append(m.payments[p.ClaimID], p)
	return nil
}

func (m *mockRepo) GetPayments(_ context.Context, claimID uuid.UUID) ([]*Payment, error) {
	return m.payments[claimID], nil
}

type allowGate struct{ active bool }

func (g allowGate) IsActive(context.Context, uuid.UUID) (bool, error) { return g.active, nil }

type fakeClearinghouse struct {
	submissions []gateway.ClaimSubmission
	fail        bool
}

func (f *fakeClearinghouse) SubmitClaim(_ context.Context, sub gateway.ClaimSubmission) (*gateway.ClaimAck, error) {
	if f.fail {
		return nil, errors.New("clearinghouse unavailable")
	}
	f.submissions = append(f.submissions, sub)
	return &gateway.ClaimAck{ExternalID: "ext-" + sub.ClaimNumber, Accepted: true}, nil
}

func passthroughTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

func newTestService(repo *mockRepo, ch Clearinghouse) *Service {
	return NewService(repo, allowGate{true}, ch, passthroughTx, zerolog.Nop())
}

func newTestClaim() *Claim {
	return &Claim{
		PatientID:   uuid.New(),
		ProviderID:  uuid.New(),
		Payer:       "Acme Health",
		ServiceDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

// draftWithLine creates a claim carrying one line worth the given amount.
func draftWithLine(t *testing.T, svc *Service, amount float64) *Claim {
	t.Helper()
	ctx := context.Background()
	c := newTestClaim()
	if err := svc.Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	line := &ClaimLine{ClaimID: c.ID, CPTCode: "99213", Description: "office visit", Quantity: 1, UnitPrice: amount}
	if err := svc.AddLine(ctx, line); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

// adjudicated walks a claim to the given outcome.
func adjudicated(t *testing.T, svc *Service, outcome string, billed, allowed float64) *Claim {
	t.Helper()
	ctx := context.Background()
	c := draftWithLine(t, svc, billed)
	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MoveToReview(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Adjudicate(ctx, c.ID, outcome, allowed, "not covered")
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestCreateAssignsClaimNumber(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	c := newTestClaim()
	if err := svc.Create(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if c.ClaimNumber != "CLM-2026-000001" {
		t.Errorf("claim number = %q, want CLM-2026-000001", c.ClaimNumber)
	}
	if c.Status != StatusDraft {
		t.Errorf("status = %q, want draft", c.Status)
	}
}

func TestCreateRejectsInactivePatient(t *testing.T) {
	svc := NewService(newMockRepo(), allowGate{false}, &fakeClearinghouse{}, passthroughTx, zerolog.Nop())
	err := svc.Create(context.Background(), newTestClaim())
	if !errors.Is(err, ErrPatientInactive) {
		t.Errorf("expected ErrPatientInactive, got %v", err)
	}
}

func TestAddLineRecomputesBilled(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeClearinghouse{})
	ctx := context.Background()

	c := newTestClaim()
	if err := svc.Create(ctx, c); err != nil {
		t.Fatal(err)
	}

	if err := svc.AddLine(ctx, &ClaimLine{ClaimID: c.ID, CPTCode: "99213", Quantity: 1, UnitPrice: 150}); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddLine(ctx, &ClaimLine{ClaimID: c.ID, CPTCode: "36415", Quantity: 2, UnitPrice: 25}); err != nil {
		t.Fatal(err)
	}

	got, _ := repo.GetByID(ctx, c.ID)
	if got.BilledAmount != 200 {
		t.Errorf("billed = %.2f, want 200.00", got.BilledAmount)
	}

	lines, _ := repo.GetLines(ctx, c.ID)
	if err := svc.RemoveLine(ctx, c.ID, lines[1].ID); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.GetByID(ctx, c.ID)
	if got.BilledAmount != 150 {
		t.Errorf("billed after removal = %.2f, want 150.00", got.BilledAmount)
	}
}

func TestAddLineRejectsNonDraft(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := draftWithLine(t, svc, 100)
	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); err != nil {
		t.Fatal(err)
	}

	err := svc.AddLine(ctx, &ClaimLine{ClaimID: c.ID, CPTCode: "99214", Quantity: 1, UnitPrice: 50})
	if !errors.Is(err, ErrNotDraft) {
		t.Errorf("expected ErrNotDraft, got %v", err)
	}
}

func TestSubmitRequiresLines(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := newTestClaim()
	if err := svc.Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); !errors.Is(err, ErrNoLines) {
		t.Errorf("expected ErrNoLines, got %v", err)
	}
}

func TestSubmitRecordsExternalID(t *testing.T) {
	ch := &fakeClearinghouse{}
	svc := newTestService(newMockRepo(), ch)
	ctx := context.Background()

	c := draftWithLine(t, svc, 250)
	got, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusSubmitted {
		t.Errorf("status = %q, want submitted", got.Status)
	}
	if got.ExternalID == nil || *got.ExternalID != "ext-"+c.ClaimNumber {
		t.Errorf("external id = %v", got.ExternalID)
	}
	if got.SubmittedAt == nil {
		t.Error("submitted_at not set")
	}
	if len(ch.submissions) != 1 || ch.submissions[0].BilledAmount != 250 {
		t.Errorf("clearinghouse submission = %+v", ch.submissions)
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeClearinghouse{fail: true})
	ctx := context.Background()

	c := draftWithLine(t, svc, 100)
	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); err == nil {
		t.Fatal("expected error")
	}
	got, _ := repo.GetByID(ctx, c.ID)
	if got.Status != StatusDraft {
		t.Errorf("status after failed submit = %q, want draft", got.Status)
	}
}

func TestAdjudicateInvariants(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := draftWithLine(t, svc, 200)
	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MoveToReview(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	// Allowed above billed is rejected.
	if _, err := svc.Adjudicate(ctx, c.ID, StatusApproved, 250, ""); !errors.Is(err, ErrAmountInvariant) {
		t.Errorf("expected ErrAmountInvariant, got %v", err)
	}
	// Partial approval must be strictly below billed.
	if _, err := svc.Adjudicate(ctx, c.ID, StatusPartiallyApproved, 200, ""); !errors.Is(err, ErrAmountInvariant) {
		t.Errorf("expected ErrAmountInvariant for partial at billed, got %v", err)
	}

	got, err := svc.Adjudicate(ctx, c.ID, StatusPartiallyApproved, 120, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.AllowedAmount != 120 {
		t.Errorf("allowed = %.2f, want 120.00", got.AllowedAmount)
	}
	if got.PatientResponsibility != 120 {
		t.Errorf("patient responsibility = %.2f, want 120.00", got.PatientResponsibility)
	}
}

func TestAdjudicateDeniedRequiresReason(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := draftWithLine(t, svc, 200)
	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MoveToReview(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Adjudicate(ctx, c.ID, StatusDenied, 0, ""); err == nil {
		t.Error("expected error for denial without reason")
	}
	got, err := svc.Adjudicate(ctx, c.ID, StatusDenied, 0, "not covered")
	if err != nil {
		t.Fatal(err)
	}
	if got.AllowedAmount != 0 {
		t.Errorf("denied claim allowed = %.2f, want 0", got.AllowedAmount)
	}
}

func TestTransitionGraph(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	// Draft cannot be adjudicated directly.
	c := draftWithLine(t, svc, 100)
	if _, err := svc.Adjudicate(ctx, c.ID, StatusApproved, 100, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	// Cancelled is terminal.
	if _, err := svc.Cancel(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition after cancel, got %v", err)
	}
}

func TestAppealFromDenied(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := adjudicated(t, svc, StatusDenied, 200, 0)
	if _, err := svc.Appeal(ctx, c.ID, ""); err == nil {
		t.Error("expected error for appeal without reason")
	}
	got, err := svc.Appeal(ctx, c.ID, "coding corrected")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusAppealed {
		t.Errorf("status = %q, want appealed", got.Status)
	}

	// Appeal can return to review for re-adjudication.
	if _, err := svc.MoveToReview(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Adjudicate(ctx, c.ID, StatusApproved, 200, ""); err != nil {
		t.Fatal(err)
	}
}

func TestRecordPaymentBounds(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := adjudicated(t, svc, StatusApproved, 200, 200)

	got, err := svc.RecordPayment(ctx, &Payment{ClaimID: c.ID, Amount: 150})
	if err != nil {
		t.Fatal(err)
	}
	if got.PaidAmount != 150 {
		t.Errorf("paid = %.2f, want 150.00", got.PaidAmount)
	}
	if got.PatientResponsibility != 50 {
		t.Errorf("patient responsibility = %.2f, want 50.00", got.PatientResponsibility)
	}

	// Overpaying past the allowed amount is rejected.
	if _, err := svc.RecordPayment(ctx, &Payment{ClaimID: c.ID, Amount: 100}); !errors.Is(err, ErrAmountInvariant) {
		t.Errorf("expected ErrAmountInvariant, got %v", err)
	}

	// Paying the remainder and settling closes the claim.
	if _, err := svc.RecordPayment(ctx, &Payment{ClaimID: c.ID, Amount: 50}); err != nil {
		t.Fatal(err)
	}
	settled, err := svc.Settle(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if settled.Status != StatusSettled || settled.SettledAt == nil {
		t.Errorf("settle: status=%q settled_at=%v", settled.Status, settled.SettledAt)
	}
	if _, err := svc.RecordPayment(ctx, &Payment{ClaimID: c.ID, Amount: 1}); err == nil {
		t.Error("expected error paying a settled claim")
	}
}

func TestPaymentRequiresAdjudication(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := draftWithLine(t, svc, 100)
	if _, err := svc.RecordPayment(ctx, &Payment{ClaimID: c.ID, Amount: 50}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFormatClaimNumber(t *testing.T) {
	if got := FormatClaimNumber(2026, 42); got != "CLM-2026-000042" {
		t.Errorf("FormatClaimNumber = %q", got)
	}
}

type fakeEligibility struct {
	payer, member string
}

func (f *fakeEligibility) CheckEligibility(_ context.Context, payer, memberID string) (*gateway.Eligibility, error) {
	f.payer, f.member = payer, memberID
	return &gateway.Eligibility{Eligible: true, PlanName: "Gold PPO", CopayAmount: 25}, nil
}

func TestVerifyCoverage(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	if _, err := svc.VerifyCoverage(ctx, "acme-health", "M123"); err == nil {
		t.Error("expected error when no eligibility checker is configured")
	}

	ec := &fakeEligibility{}
	svc.SetEligibilityChecker(ec)

	if _, err := svc.VerifyCoverage(ctx, "", "M123"); err == nil {
		t.Error("expected error for empty payer")
	}
	if _, err := svc.VerifyCoverage(ctx, "acme-health", ""); err == nil {
		t.Error("expected error for empty member id")
	}

	elig, err := svc.VerifyCoverage(ctx, "acme-health", "M123")
	if err != nil {
		t.Fatal(err)
	}
	if !elig.Eligible || elig.PlanName != "Gold PPO" {
		t.Errorf("eligibility = %+v", elig)
	}
	if ec.payer != "acme-health" || ec.member != "M123" {
		t.Errorf("checker saw payer=%q member=%q", ec.payer, ec.member)
	}
}

func TestUpdateDraftOnlyWhileDraft(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeClearinghouse{})
	ctx := context.Background()

	c := draftWithLine(t, svc, 100)
	newDate := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	apptID := uuid.New()
	got, err := svc.UpdateDraft(ctx, c.ID, "Umbrella Ins", newDate, &apptID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Payer != "Umbrella Ins" || !got.ServiceDate.Equal(newDate) {
		t.Errorf("update: payer=%q service_date=%v", got.Payer, got.ServiceDate)
	}
	if got.AppointmentID == nil || *got.AppointmentID != apptID {
		t.Errorf("appointment_id = %v", got.AppointmentID)
	}
	if got.BilledAmount != 100 {
		t.Errorf("billed amount changed to %v", got.BilledAmount)
	}

	if _, err := svc.Submit(ctx, c.ID, "P-00000001", "1234567893"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateDraft(ctx, c.ID, "Other", time.Time{}, nil); !errors.Is(err, ErrNotDraft) {
		t.Errorf("expected ErrNotDraft, got %v", err)
	}
}
