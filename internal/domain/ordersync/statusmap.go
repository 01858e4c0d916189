package ordersync

import "github.com/rs/zerolog"

// risToLocal translates RIS order statuses into the local study lifecycle.
// The RIS vocabulary is wider than ours; anything unrecognized falls back to
// "scheduled" so an order is never dropped over a vocabulary gap.
var risToLocal = map[string]string{
	"ordered":     "scheduled",
	"scheduled":   "scheduled",
	"in-progress": "in-progress",
	"completed":   "completed",
	"reported":    "reported",
	"cancelled":   "cancelled",
}

var localToRIS = map[string]string{
	"scheduled":   "scheduled",
	"in-progress": "in-progress",
	"completed":   "completed",
	"reported":    "reported",
	"cancelled":   "cancelled",
}

// StatusMapper translates between the RIS status vocabulary and the local
// one. The tables are not symmetric: several RIS statuses collapse onto
// "scheduled", so a round trip through ToLocal and ToRIS is identity only for
// statuses both sides share.
type StatusMapper struct {
	logger zerolog.Logger
}

func NewStatusMapper(logger zerolog.Logger) *StatusMapper {
	return &StatusMapper{logger: logger.With().Str("component", "statusmap").Logger()}
}

func (m *StatusMapper) ToLocal(risStatus string) string {
	if local, ok := risToLocal[risStatus]; ok {
		return local
	}
	m.logger.Warn().Str("ris_status", risStatus).Msg("unmapped ris status, defaulting to scheduled")
	return "scheduled"
}

func (m *StatusMapper) ToRIS(localStatus string) string {
	if remote, ok := localToRIS[localStatus]; ok {
		return remote
	}
	m.logger.Warn().Str("local_status", localStatus).Msg("unmapped local status, defaulting to scheduled")
	return "scheduled"
}
