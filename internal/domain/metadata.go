package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// TatState is the persisted pause state of a ticket's resolution countdown.
type TatState struct {
	PausedAt       time.Time `json:"paused_at"`
	RemainingHours float64   `json:"remaining_hours"`
	PausedStatus   string    `json:"paused_status"`
}

// ExtensionRecord is one entry of a ticket's deadline extension history.
type ExtensionRecord struct {
	ExtendedAt       time.Time  `json:"extended_at"`
	ExtendedBy       string     `json:"extended_by"`
	PreviousDeadline *time.Time `json:"previous_deadline,omitempty"`
	NewDeadline      time.Time  `json:"new_deadline"`
	Reason           string     `json:"reason,omitempty"`
}

// TicketRating is the creator's feedback on a finished ticket.
type TicketRating struct {
	Score    int       `json:"score"`
	Feedback string    `json:"feedback,omitempty"`
	RatedAt  time.Time `json:"rated_at"`
}

const (
	metaTAT                  = "tat"
	metaExtensions           = "extensions"
	metaExtensionsUnparsed   = "extensions_unparsed"
	metaLastEscalationAt     = "last_escalation_at"
	metaEscalatedForDeadline = "escalated_for_deadline"
	metaRating               = "rating"
	metaFields               = "fields"
)

// TicketMetadata is the typed view of the tickets.metadata JSONB column.
//
// Keys are decoded one by one. A key that fails to decode, and any key this
// service does not know, is kept as raw JSON and written back unchanged.
type TicketMetadata struct {
	TAT                  *TatState
	Extensions           []ExtensionRecord
	LastEscalationAt     *time.Time
	EscalatedForDeadline *time.Time
	Rating               *TicketRating
	Fields               map[string]any

	preserved map[string]json.RawMessage
	// storedExtensions is the extension list as read; Extensions[extensionsRead:]
	// are records appended since.
	storedExtensions []json.RawMessage
	extensionsRead   int
	// unreadable holds a document that is not a JSON object. It is never rewritten.
	unreadable []byte
}

var errInvalidTatState = errors.New("invalid tat state")

// IsPaused reports whether the resolution countdown is currently paused.
func (m TicketMetadata) IsPaused() bool {
	return m.TAT != nil && !m.TAT.PausedAt.IsZero()
}

// TATMalformed reports whether stored pause state exists but could not be
// used. Such a countdown must be treated as stopped.
func (m TicketMetadata) TATMalformed() bool {
	if m.unreadable != nil {
		return true
	}
	_, ok := m.preserved[metaTAT]
	return ok && m.TAT == nil
}

// SalvageTAT recovers the remaining hours from malformed pause state when
// they are present. Missing pause time or status are left zero.
func (m TicketMetadata) SalvageTAT() (TatState, bool) {
	raw, ok := m.preserved[metaTAT]
	if !ok {
		return TatState{}, false
	}
	var partial struct {
		PausedAt       *time.Time `json:"paused_at"`
		RemainingHours *float64   `json:"remaining_hours"`
		PausedStatus   *string    `json:"paused_status"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil || partial.RemainingHours == nil {
		return TatState{}, false
	}
	if math.IsNaN(*partial.RemainingHours) || math.IsInf(*partial.RemainingHours, 0) {
		return TatState{}, false
	}
	state := TatState{RemainingHours: *partial.RemainingHours}
	if partial.PausedAt != nil {
		state.PausedAt = *partial.PausedAt
	}
	if partial.PausedStatus != nil {
		state.PausedStatus = *partial.PausedStatus
	}
	return state, true
}

// SetTAT stores a new pause state, replacing any malformed one.
func (m *TicketMetadata) SetTAT(state *TatState) {
	m.TAT = state
	m.drop(metaTAT)
}

// ClearTAT removes the pause state, including a malformed one.
func (m *TicketMetadata) ClearTAT() {
	m.SetTAT(nil)
}

// ResetEscalation forgets the last escalation and the breach marker.
func (m *TicketMetadata) ResetEscalation() {
	m.LastEscalationAt = nil
	m.EscalatedForDeadline = nil
	m.drop(metaLastEscalationAt)
	m.drop(metaEscalatedForDeadline)
}

// drop removes a preserved key without touching maps shared with copies.
func (m *TicketMetadata) drop(key string) {
	if _, ok := m.preserved[key]; !ok {
		return
	}
	kept := make(map[string]json.RawMessage, len(m.preserved))
	for k, v := range m.preserved {
		if k != key {
			kept[k] = v
		}
	}
	m.preserved = kept
}

func (m *TicketMetadata) preserve(key string, raw json.RawMessage) {
	kept := make(map[string]json.RawMessage, len(m.preserved)+1)
	for k, v := range m.preserved {
		kept[k] = v
	}
	kept[key] = append(json.RawMessage(nil), raw...)
	m.preserved = kept
}

// Validate checks invariants of the typed sub-structs.
func (m TicketMetadata) Validate() error {
	if m.TAT != nil {
		if err := validateTAT(m.TAT); err != nil {
			return err
		}
	}
	if m.Rating != nil {
		return validateRating(m.Rating)
	}
	return nil
}

func validateTAT(state *TatState) error {
	if state.PausedAt.IsZero() {
		return fmt.Errorf("%w: paused_at missing", errInvalidTatState)
	}
	if state.PausedStatus == "" {
		return fmt.Errorf("%w: paused_status missing", errInvalidTatState)
	}
	if math.IsNaN(state.RemainingHours) || math.IsInf(state.RemainingHours, 0) {
		return fmt.Errorf("%w: remaining_hours not finite", errInvalidTatState)
	}
	return nil
}

func validateRating(rating *TicketRating) error {
	if rating.Score < 1 || rating.Score > 5 {
		return fmt.Errorf("rating score %d out of range", rating.Score)
	}
	return nil
}

func decodeInto[T any](raw json.RawMessage, dst *T) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// DecodeMetadata parses the raw column value. Every key is decoded on its own,
// so one bad value never hides the others; the returned error lists what could
// not be decoded, and the metadata is still usable.
func DecodeMetadata(raw []byte) (TicketMetadata, error) {
	var meta TicketMetadata
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return meta, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		meta.unreadable = append([]byte(nil), raw...)
		return meta, fmt.Errorf("decode ticket metadata: %w", err)
	}

	var errs []error
	for key, value := range doc {
		var err error
		switch key {
		case metaTAT:
			err = decodeInto(value, &meta.TAT)
			if err == nil && meta.TAT != nil {
				if err = validateTAT(meta.TAT); err != nil {
					meta.TAT = nil
				}
			}
		case metaExtensions:
			var unreadable []error
			if unreadable, err = meta.decodeExtensions(value); err == nil {
				errs = append(errs, unreadable...)
			}
		case metaLastEscalationAt:
			err = decodeInto(value, &meta.LastEscalationAt)
		case metaEscalatedForDeadline:
			err = decodeInto(value, &meta.EscalatedForDeadline)
		case metaRating:
			err = decodeInto(value, &meta.Rating)
			if err == nil && meta.Rating != nil {
				if err = validateRating(meta.Rating); err != nil {
					meta.Rating = nil
				}
			}
		case metaFields:
			err = decodeInto(value, &meta.Fields)
		default:
			meta.preserve(key, value)
			continue
		}
		if err != nil {
			meta.preserve(key, value)
			errs = append(errs, fmt.Errorf("metadata %s: %w", key, err))
		}
	}
	return meta, errors.Join(errs...)
}

// decodeExtensions keeps every stored record as raw JSON and decodes the
// readable ones. Unreadable records stay in place when written back and are
// reported in the returned slice; err is set only when the list itself is bad.
func (m *TicketMetadata) decodeExtensions(value json.RawMessage) (unreadable []error, err error) {
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		return nil, err
	}
	for i, item := range items {
		var record ExtensionRecord
		if err := json.Unmarshal(item, &record); err != nil {
			unreadable = append(unreadable, fmt.Errorf("metadata extensions[%d]: %w", i, err))
			continue
		}
		m.Extensions = append(m.Extensions, record)
	}
	m.storedExtensions = items
	m.extensionsRead = len(m.Extensions)
	return unreadable, nil
}

// Encode serialises metadata for storage. Preserved raw values are written
// back unless a typed value replaced them.
func (m TicketMetadata) Encode() ([]byte, error) {
	if m.unreadable != nil {
		return m.unreadable, nil
	}
	doc := make(map[string]any, len(m.preserved)+6)
	for k, v := range m.preserved {
		doc[k] = v
	}
	if m.TAT != nil {
		doc[metaTAT] = m.TAT
	}
	if ext := m.encodeExtensions(); len(ext) > 0 {
		if raw, ok := m.preserved[metaExtensions]; ok {
			doc[metaExtensionsUnparsed] = raw
		}
		doc[metaExtensions] = ext
	}
	if m.LastEscalationAt != nil {
		doc[metaLastEscalationAt] = m.LastEscalationAt
	}
	if m.EscalatedForDeadline != nil {
		doc[metaEscalatedForDeadline] = m.EscalatedForDeadline
	}
	if m.Rating != nil {
		doc[metaRating] = m.Rating
	}
	if len(m.Fields) > 0 {
		doc[metaFields] = m.Fields
	}
	return json.Marshal(doc)
}

func (m TicketMetadata) encodeExtensions() []any {
	out := make([]any, 0, len(m.storedExtensions)+len(m.Extensions))
	for _, item := range m.storedExtensions {
		out = append(out, item)
	}
	start := m.extensionsRead
	if start > len(m.Extensions) {
		start = len(m.Extensions)
	}
	for _, record := range m.Extensions[start:] {
		out = append(out, record)
	}
	return out
}
