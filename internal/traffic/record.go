// Package traffic defines simulated firewall records and the synthesizer
// that produces them.
package traffic

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Status is the firewall verdict attached to a record.
type Status string

const (
	StatusAllowed    Status = "ALLOWED"
	StatusBlocked    Status = "BLOCKED"
	StatusSuspicious Status = "SUSPICIOUS"
)

// IsValid checks if the status is a valid value.
func (s Status) IsValid() bool {
	switch s {
	case StatusAllowed, StatusBlocked, StatusSuspicious:
		return true
	}
	return false
}

// Protocol is the transport kind of a record.
type Protocol string

const (
	ProtocolTCP  Protocol = "TCP"
	ProtocolUDP  Protocol = "UDP"
	ProtocolICMP Protocol = "ICMP"
	ProtocolHTTP Protocol = "HTTP"
)

// Port and size bounds, inclusive.
const (
	MaxPort = 65535
	MaxSize = 1500
)

// Record is one simulated traffic event. Records are immutable once built.
type Record struct {
	ID          uuid.UUID `json:"id" validate:"required"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	SourceIP    string    `json:"source_ip" validate:"required,ip"`
	DestIP      string    `json:"dest_ip" validate:"required,ip"`
	Protocol    Protocol  `json:"protocol" validate:"required,oneof=TCP UDP ICMP HTTP"`
	Port        int       `json:"port" validate:"min=0,max=65535"`
	Size        int       `json:"size" validate:"min=0,max=1500"`
	Status      Status    `json:"status" validate:"required,oneof=ALLOWED BLOCKED SUSPICIOUS"`
	PayloadHash string    `json:"payload_hash" validate:"required,startswith=0x"`
	Signature   string    `json:"signature" validate:"required,startswith=0x"`

	// Simulated inclusion block; nil when the record was never stamped.
	BlockNumber *uint64 `json:"block_number,omitempty"`
}

var recordValidator = validator.New()

// Validate checks the record against its field constraints.
func (r *Record) Validate() error {
	if err := recordValidator.Struct(r); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return nil
}

// Flagged reports whether the record counts against the blocked series.
func (r *Record) Flagged() bool {
	return r.Status != StatusAllowed
}
