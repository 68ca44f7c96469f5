package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// BroadcastConfigVersion is the layout version written by this binary.
// Version 0 documents predate the version field and are normalized on read.
const BroadcastConfigVersion = 1

const DefaultBroadcastBatchSize = 20

// BroadcastConfig is the persisted broadcast configuration of a campaign.
// It is created by scheduling a broadcast and mutated only by the scheduler.
type BroadcastConfig struct {
	Version      int           `json:"version"`
	TemplateID   *int64        `json:"templateId"`
	FilterStatus []LeadStatus  `json:"filterStatus"`
	Limit        *int          `json:"limit"`
	Batch        BatchSettings `json:"batch"`
	DurationMs   *int64        `json:"durationMs"`
	Pacing       *PacingState  `json:"pacing"`
}

type BatchSettings struct {
	Size       int   `json:"size"`
	IntervalMs int64 `json:"intervalMs"`
}

// PacingState tracks progress through a pacing window [StartAt, EndAt).
type PacingState struct {
	StartAt      time.Time `json:"startAt"`
	EndAt        time.Time `json:"endAt"`
	InitialTotal *int      `json:"initialTotal"`
	Sent         int       `json:"sent"`
	Completed    bool      `json:"completed"`
}

func (b *BroadcastConfig) Paced() bool {
	return b.DurationMs != nil && b.Pacing != nil
}

func (b *BroadcastConfig) Throttle() time.Duration {
	return time.Duration(b.Batch.IntervalMs) * time.Millisecond
}

// Filter returns the lead statuses the broadcast sends to.
func (b *BroadcastConfig) Filter() []LeadStatus {
	if len(b.FilterStatus) == 0 {
		return []LeadStatus{LeadQueued}
	}
	return b.FilterStatus
}

// Clone returns a deep copy so callers can mutate pacing without aliasing.
func (b *BroadcastConfig) Clone() *BroadcastConfig {
	if b == nil {
		return nil
	}
	out := *b
	out.FilterStatus = slices.Clone(b.FilterStatus)
	if b.TemplateID != nil {
		id := *b.TemplateID
		out.TemplateID = &id
	}
	if b.Limit != nil {
		limit := *b.Limit
		out.Limit = &limit
	}
	if b.DurationMs != nil {
		d := *b.DurationMs
		out.DurationMs = &d
	}
	if b.Pacing != nil {
		p := b.Pacing.Clone()
		out.Pacing = &p
	}
	return &out
}

func (p PacingState) Clone() PacingState {
	out := p
	if p.InitialTotal != nil {
		total := *p.InitialTotal
		out.InitialTotal = &total
	}
	return out
}

// normalize upgrades older layouts in place.
func (b *BroadcastConfig) normalize() error {
	if b.Version > BroadcastConfigVersion {
		return Validationf("broadcast config version %d is newer than supported version %d",
			b.Version, BroadcastConfigVersion)
	}
	if len(b.FilterStatus) == 0 {
		b.FilterStatus = []LeadStatus{LeadQueued}
	}
	if b.Batch.Size <= 0 {
		b.Batch.Size = DefaultBroadcastBatchSize
	}
	if b.Batch.IntervalMs < 0 {
		b.Batch.IntervalMs = 0
	}
	if b.DurationMs == nil {
		b.Pacing = nil
	}
	b.Version = BroadcastConfigVersion
	return nil
}

func (b BroadcastConfig) Value() (driver.Value, error) {
	b.Version = BroadcastConfigVersion
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal broadcast config: %w", err)
	}
	return string(data), nil
}

func (b *BroadcastConfig) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("broadcast config: %w", err)
	}
	*b = BroadcastConfig{}
	if len(data) == 0 {
		return b.normalize()
	}
	if err := json.Unmarshal(data, b); err != nil {
		return fmt.Errorf("failed to unmarshal broadcast config: %w", err)
	}
	return b.normalize()
}
