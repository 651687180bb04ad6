package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client talks to the clearinghouse that accepts claims, forwards
// referrals to external providers, and answers eligibility checks.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return &Client{
		http: http,
		log:  log.With().Str("component", "gateway").Logger(),
	}
}

// ClaimSubmission is the payload sent to the clearinghouse when a claim
// moves to submitted.
type ClaimSubmission struct {
	ClaimNumber   string  `json:"claim_number"`
	PatientMRN    string  `json:"patient_mrn"`
	ProviderNPI   string  `json:"provider_npi"`
	Payer         string  `json:"payer"`
	BilledAmount  float64 `json:"billed_amount"`
	ServiceDate   string  `json:"service_date"`
	DiagnosisCode string  `json:"diagnosis_code,omitempty"`
}

// ClaimAck is the clearinghouse acknowledgement of a submission.
type ClaimAck struct {
	ExternalID string `json:"external_id"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
}

func (c *Client) SubmitClaim(ctx context.Context, sub ClaimSubmission) (*ClaimAck, error) {
	var ack ClaimAck
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sub).
		SetResult(&ack).
		Post("/claims")
	if err != nil {
		return nil, fmt.Errorf("submitting claim %s: %w", sub.ClaimNumber, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("submitting claim %s: clearinghouse returned %d", sub.ClaimNumber, resp.StatusCode())
	}
	c.log.Info().Str("claim", sub.ClaimNumber).Str("external_id", ack.ExternalID).Msg("claim submitted")
	return &ack, nil
}

// ReferralTransmission carries a referral to the receiving provider's
// network.
type ReferralTransmission struct {
	ReferralID   string `json:"referral_id"`
	PatientMRN   string `json:"patient_mrn"`
	FromNPI      string `json:"from_npi"`
	ToNPI        string `json:"to_npi"`
	Specialty    string `json:"specialty"`
	Reason       string `json:"reason"`
	UrgencyLevel string `json:"urgency_level"`
}

type ReferralAck struct {
	ExternalID string `json:"external_id"`
	Delivered  bool   `json:"delivered"`
}

func (c *Client) TransmitReferral(ctx context.Context, tr ReferralTransmission) (*ReferralAck, error) {
	var ack ReferralAck
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(tr).
		SetResult(&ack).
		Post("/referrals")
	if err != nil {
		return nil, fmt.Errorf("transmitting referral %s: %w", tr.ReferralID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("transmitting referral %s: gateway returned %d", tr.ReferralID, resp.StatusCode())
	}
	return &ack, nil
}

// Eligibility is the payer's answer to a coverage check.
type Eligibility struct {
	Eligible      bool    `json:"eligible"`
	PlanName      string  `json:"plan_name"`
	CopayAmount   float64 `json:"copay_amount"`
	DeductibleMet bool    `json:"deductible_met"`
}

func (c *Client) CheckEligibility(ctx context.Context, payer, memberID string) (*Eligibility, error) {
	var elig Eligibility
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("payer", payer).
		SetQueryParam("member_id", memberID).
		SetResult(&elig).
		Get("/eligibility")
	if err != nil {
		return nil, fmt.Errorf("checking eligibility with %s: %w", payer, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("checking eligibility with %s: gateway returned %d", payer, resp.StatusCode())
	}
	return &elig, nil
}
