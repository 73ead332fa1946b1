package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"campusgate/internal/attendance"
	"campusgate/internal/cooldown"
	"campusgate/internal/directory"
	"campusgate/internal/metrics"
	"campusgate/internal/pass"
)

// DefaultAttempts bounds how often a scan is re-resolved after losing a
// record update to another gate.
const DefaultAttempts = 3

// RecordReader loads the stored attendance record for a day.
type RecordReader interface {
	Today(ctx context.Context, personID string, role directory.Role, day string) (*attendance.Record, error)
}

// Recorder journals a decision.
type Recorder interface {
	Record(ctx context.Context, o attendance.Outcome) (attendance.AccessLogEntry, error)
}

// Approver checks hosteller exit passes.
type Approver interface {
	IsExitApproved(ctx context.Context, personID string) (bool, *pass.Request, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Source   directory.Source
	Matcher  *directory.Matcher
	Cooldown cooldown.Tracker
	Records  RecordReader
	Writer   Recorder
	Approver Approver
	Location *time.Location
	Logger   *log.Logger
	Metrics  *metrics.Gate
	Now      func() time.Time
	Attempts int
	// Window is the minimum gap between two transitions of one record.
	// Defaults to cooldown.DefaultWindow.
	Window time.Duration
	// MaxSkew replaces capture times further than this from the server
	// clock with the server time. Zero trusts the capture time.
	MaxSkew time.Duration
}

// Engine turns scans into decisions. It is safe for concurrent use; scans
// from the same terminal are handled one at a time.
type Engine struct {
	source   directory.Source
	matcher  *directory.Matcher
	cooldown cooldown.Tracker
	records  RecordReader
	writer   Recorder
	approver Approver
	loc      *time.Location
	logger   *log.Logger
	metrics  *metrics.Gate
	now      func() time.Time
	attempts int
	window   time.Duration
	maxSkew  time.Duration

	mu        sync.Mutex
	terminals map[string]*sync.Mutex
}

// NewEngine wires an engine from its dependencies.
func NewEngine(d Deps) *Engine {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Attempts <= 0 {
		d.Attempts = DefaultAttempts
	}
	if d.Window <= 0 {
		d.Window = cooldown.DefaultWindow
	}
	return &Engine{
		source:    d.Source,
		matcher:   d.Matcher,
		cooldown:  d.Cooldown,
		records:   d.Records,
		writer:    d.Writer,
		approver:  d.Approver,
		loc:       d.Location,
		logger:    d.Logger,
		metrics:   d.Metrics,
		now:       d.Now,
		attempts:  d.Attempts,
		window:    d.Window,
		maxSkew:   d.MaxSkew,
		terminals: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) terminalLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.terminals[id]
	if !ok {
		l = &sync.Mutex{}
		e.terminals[id] = l
	}
	return l
}

func cooldownKey(id directory.Identity) string {
	return string(id.Role) + ":" + id.ID
}

// Decide runs one scan through match, cooldown, attendance state and pass
// approval, then journals the outcome. Only invalid input, a cancelled
// context, directory load failures and storage failures are returned as
// errors; everything else is a Decision.
func (e *Engine) Decide(ctx context.Context, scan Scan) (Decision, error) {
	start := time.Now()
	defer e.metrics.Observe(start)

	if now := e.now(); scan.At.IsZero() {
		scan.At = now
	} else if e.maxSkew > 0 && (scan.At.Sub(now) > e.maxSkew || now.Sub(scan.At) > e.maxSkew) {
		e.logger.Printf("terminal %s: capture time %s is off by more than %s, using server time", scan.TerminalID, scan.At.Format(time.RFC3339), e.maxSkew)
		scan.At = now
	}
	if err := e.matcher.Validate(scan.Descriptor); err != nil {
		return Decision{}, err
	}

	lock := e.terminalLock(scan.TerminalID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("directory snapshot: %w", err)
	}
	m, found, err := e.matcher.Match(ctx, scan.Descriptor, snap)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		e.logger.Printf("terminal %s: unknown face", scan.TerminalID)
		e.metrics.Decision(string(attendance.Denied), string(ReasonUnknownFace))
		return unknownFace(), nil
	}
	e.metrics.Matched(m.Distance)

	id := m.Identity
	base := Decision{
		Identity:   &id,
		Distance:   m.Distance,
		Confidence: directory.Confidence(m.Distance),
	}

	left, err := e.cooldown.Remaining(ctx, cooldownKey(id), scan.At)
	if err != nil {
		e.logger.Printf("cooldown lookup for %s failed, continuing: %v", id.ID, err)
		left = 0
	}
	if left > 0 {
		d := base
		d.tooSoon(left)
		e.metrics.Decision(string(d.Status), string(d.Reason))
		return d, nil
	}

	var d Decision
	for attempt := 1; ; attempt++ {
		d, err = e.resolveAndRecord(ctx, scan, base)
		if err == nil {
			break
		}
		if errors.Is(err, attendance.ErrConflict) && attempt < e.attempts {
			e.metrics.Conflict()
			// Another gate may have processed the same person meanwhile.
			if left, cerr := e.cooldown.Remaining(ctx, cooldownKey(id), scan.At); cerr == nil && left > 0 {
				d = base
				d.tooSoon(left)
				break
			}
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Decision{}, err
		}
		if errors.Is(err, attendance.ErrConflict) {
			err = fmt.Errorf("%w: %w", attendance.ErrPersistence, err)
		}
		e.metrics.PersistenceFailure()
		e.logger.Printf("ERROR terminal %s: decision for %s %s not stored: %v", scan.TerminalID, id.Role, id.ID, err)
		return Decision{}, err
	}

	if d.Reason == ReasonTooSoon {
		e.logger.Printf("terminal %s: %s %s already processed at another gate", scan.TerminalID, id.Role, id.ID)
		e.metrics.Decision(string(d.Status), string(d.Reason))
		return d, nil
	}

	// A pass lookup failure is journaled, but the person may retry at once.
	if d.Reason != ReasonPassUnavailable {
		if err := e.cooldown.MarkSeen(context.WithoutCancel(ctx), cooldownKey(id), scan.At); err != nil {
			e.logger.Printf("cooldown mark for %s failed: %v", id.ID, err)
		}
	}

	e.metrics.Decision(string(d.Status), string(d.Reason))
	e.logger.Printf("terminal %s: %s %s %s %s (%s)", scan.TerminalID, id.ID, d.Direction, d.Status, d.Reason, id.EffectiveMode())
	return d, nil
}

// resolveAndRecord reads today's record, applies the mode policy and pass
// check, and writes the outcome. A record changed within the window is
// answered with TooSoon and nothing is written. The write is not cancelled
// once started.
func (e *Engine) resolveAndRecord(ctx context.Context, scan Scan, base Decision) (Decision, error) {
	id := *base.Identity
	day := attendance.DayOf(scan.At, e.loc)

	current, err := e.records.Today(ctx, id.ID, id.Role, day)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Decision{}, ctxErr
		}
		return Decision{}, fmt.Errorf("%w: read record: %w", attendance.ErrPersistence, err)
	}
	if latest := current.Latest(); !latest.IsZero() {
		if left := cooldown.Left(latest, scan.At, e.window); left > 0 {
			d := base
			d.tooSoon(left)
			return d, nil
		}
	}
	dir, next := attendance.Resolve(id, current, day, scan.At)

	d := base
	d.Direction = dir
	outcome := attendance.Outcome{
		Identity:   id,
		TerminalID: scan.TerminalID,
		Direction:  dir,
		At:         scan.At,
		Distance:   d.Distance,
		Confidence: d.Confidence,
	}

	granted := true
	if id.EffectiveMode() == directory.ModeHosteller && dir == attendance.Out {
		approved, req, err := e.approver.IsExitApproved(ctx, id.ID)
		if req != nil {
			d.PassRequestID = req.ID
		}
		switch {
		case err != nil:
			e.logger.Printf("pass lookup for %s failed: %v", id.ID, err)
			d.deny(ReasonPassUnavailable, "Exit denied: pass approval could not be verified")
			granted = false
		case !approved:
			msg := "Exit denied: no approved outing or home visit pass"
			if req != nil {
				msg = fmt.Sprintf("Exit denied: latest pass request is %s", req.Status)
			}
			d.deny(ReasonNoApprovedPass, msg)
			granted = false
		}
	}

	if granted {
		d.grant()
		outcome.Granted = true
		outcome.Record = &next
		outcome.ExpectedVersion = next.Version
	}
	outcome.Reason = string(d.Reason)
	outcome.PassRequestID = d.PassRequestID

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	entry, err := e.writer.Record(context.WithoutCancel(ctx), outcome)
	if err != nil {
		return Decision{}, err
	}
	d.LogEntryID = entry.ID
	if granted {
		stored := next
		stored.Version++
		d.Record = &stored
	}
	return d, nil
}
