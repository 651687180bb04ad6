package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSMSSender stands in for an SMS provider integration. It records the
// message instead of delivering it, which is the behavior we want in
// development and in tenants that have not enabled SMS.
type LogSMSSender struct {
	log zerolog.Logger
}

func NewLogSMSSender(log zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{log: log.With().Str("component", "sms").Logger()}
}

func (s *LogSMSSender) Send(_ context.Context, n Notification) error {
	s.log.Info().Str("to", n.Recipient).Str("body", n.Body).Msg("sms (log only)")
	return nil
}
