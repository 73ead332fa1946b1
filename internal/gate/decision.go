package gate

import (
	"fmt"
	"math"
	"time"

	"campusgate/internal/attendance"
	"campusgate/internal/directory"
)

// Reason is the machine-readable cause of a decision.
type Reason string

const (
	ReasonGranted         Reason = "Granted"
	ReasonUnknownFace     Reason = "UnknownFace"
	ReasonTooSoon         Reason = "TooSoon"
	ReasonNoApprovedPass  Reason = "NoApprovedPass"
	ReasonPassUnavailable Reason = "PassUnavailable"
)

// Scan is one detected face at a terminal.
type Scan struct {
	TerminalID string
	Descriptor directory.Vector
	// At is the capture time. Zero means now.
	At time.Time
}

// Decision is the answer returned to the terminal.
type Decision struct {
	Status           attendance.Result    `json:"status"`
	Reason           Reason               `json:"reason"`
	Message          string               `json:"message"`
	Identity         *directory.Identity  `json:"identity,omitempty"`
	Direction        attendance.Direction `json:"direction,omitempty"`
	Distance         float64              `json:"distance,omitempty"`
	Confidence       float64              `json:"confidence,omitempty"`
	Remaining        time.Duration        `json:"-"`
	RemainingSeconds int                  `json:"remaining_seconds,omitempty"`
	PassRequestID    string               `json:"pass_request_id,omitempty"`
	LogEntryID       string               `json:"log_entry_id,omitempty"`
	Record           *attendance.Record   `json:"record,omitempty"`
}

// Granted reports whether the gate should open.
func (d Decision) Granted() bool {
	return d.Status == attendance.Granted
}

func (d *Decision) grant() {
	d.Status = attendance.Granted
	d.Reason = ReasonGranted
	verb := "Entry"
	if d.Direction == attendance.Out {
		verb = "Exit"
	}
	d.Message = fmt.Sprintf("%s granted: %s, %s", verb, d.Identity.Name, d.Identity.Department)
}

func (d *Decision) deny(reason Reason, message string) {
	d.Status = attendance.Denied
	d.Reason = reason
	d.Message = message
}

func unknownFace() Decision {
	var d Decision
	d.deny(ReasonUnknownFace, "Face not recognized")
	return d
}

func (d *Decision) tooSoon(left time.Duration) {
	secs := int(math.Ceil(left.Seconds()))
	d.Remaining = left
	d.RemainingSeconds = secs
	d.deny(ReasonTooSoon, fmt.Sprintf("Please wait %d seconds", secs))
}
