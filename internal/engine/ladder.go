// Package engine implements the per-strategy trigger/state machine: the
// trigger ladder, the position tracker, and the tick decision loop.
package engine

import (
	"fmt"
	"time"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
	"straddle-runner/pkg/utils"
)

// Ladder tracks re-entry eligibility. It arms one level above and one below
// an anchor price; consuming a level expires its sibling and arms a fresh
// pair around the consumed level. Consumed levels are never reused within a
// session.
type Ladder struct {
	initialGap    float64
	subsequentGap float64
	policy        models.RearmPolicy

	up, down       float64
	hasUp, hasDown bool

	// Blocked sides were armed while spot was already beyond them; under
	// the hold policy they stay silent until spot retreats across the level.
	upBlocked, downBlocked bool

	consumed map[float64]bool

	lastSpot float64
	hasLast  bool

	clock func() time.Time
}

// NewLadder creates a ladder. Non-positive gaps are a configuration error,
// not a silent always-armed ladder.
func NewLadder(initialGap, subsequentGap float64, policy models.RearmPolicy) (*Ladder, error) {
	if initialGap <= 0 {
		return nil, apperrors.Wrapf(apperrors.ErrConfigInvalid, "initial trigger gap %.2f", initialGap)
	}
	if subsequentGap <= 0 {
		return nil, apperrors.Wrapf(apperrors.ErrConfigInvalid, "subsequent trigger gap %.2f", subsequentGap)
	}
	if policy == "" {
		policy = models.RearmHold
	}
	return &Ladder{
		initialGap:    initialGap,
		subsequentGap: subsequentGap,
		policy:        policy,
		consumed:      make(map[float64]bool),
		clock:         time.Now,
	}, nil
}

// Activate (re)builds the armed pair anchored at the reference price. The
// anchor snaps down to the initial-gap grid; the down level is the anchor,
// the up level one gap above. Previously armed levels are expired. Returns
// the audit events in transition order.
func (l *Ladder) Activate(reference float64) []models.TriggerEvent {
	now := l.clock()
	var events []models.TriggerEvent

	events = append(events, l.disarm(now)...)

	base := utils.RoundToGrid(reference, l.initialGap)
	events = append(events, l.arm(now, base+l.initialGap, base, l.initialGap)...)

	l.block(reference)
	l.lastSpot = reference
	l.hasLast = true
	return events
}

// Evaluate reports whether an armed level is crossed by the given spot.
// Crossing is directional: the up level fires on spot at or above it, the
// down level on spot at or below it. A fired level keeps firing every
// evaluation until it is consumed. Under the hold policy a side that was
// armed while spot was already beyond it stays silent until spot retreats
// across the level and crosses it afresh.
func (l *Ladder) Evaluate(spot float64) (level float64, dir models.TriggerDirection, hit bool) {
	l.lastSpot = spot
	l.hasLast = true

	if l.hasUp && spot < l.up {
		l.upBlocked = false
	}
	if l.hasDown && spot > l.down {
		l.downBlocked = false
	}

	if l.hasUp && spot >= l.up && !l.upBlocked {
		return l.up, models.DirectionUp, true
	}
	if l.hasDown && spot <= l.down && !l.downBlocked {
		return l.down, models.DirectionDown, true
	}
	return 0, "", false
}

// block silences sides the reference price has already passed; under the
// hold policy those need a fresh cross before they fire.
func (l *Ladder) block(reference float64) {
	l.upBlocked, l.downBlocked = false, false
	if l.policy != models.RearmHold {
		return
	}
	l.upBlocked = l.hasUp && reference >= l.up
	l.downBlocked = l.hasDown && reference <= l.down
}

// Consume marks a level used for the rest of the session, expires its armed
// sibling and arms a fresh pair at level ± subsequent gap. Consuming the same
// level twice is an invariant violation.
func (l *Ladder) Consume(level float64) ([]models.TriggerEvent, error) {
	if l.consumed[level] {
		return nil, apperrors.Wrapf(apperrors.ErrLevelConsumed, "level %.2f", level)
	}
	if (!l.hasUp || l.up != level) && (!l.hasDown || l.down != level) {
		return nil, fmt.Errorf("level %.2f is not armed", level)
	}

	now := l.clock()
	l.consumed[level] = true

	var events []models.TriggerEvent
	events = append(events, models.TriggerEvent{
		Timestamp: now,
		Level:     level,
		Status:    models.TriggerConsumed,
	})

	// Expire the sibling; a new pair replaces both.
	if l.hasUp && l.up != level {
		events = append(events, models.TriggerEvent{
			Timestamp: now, Level: l.up, Status: models.TriggerExpired, Direction: models.DirectionUp,
		})
	}
	if l.hasDown && l.down != level {
		events = append(events, models.TriggerEvent{
			Timestamp: now, Level: l.down, Status: models.TriggerExpired, Direction: models.DirectionDown,
		})
	}
	l.hasUp, l.hasDown = false, false

	events = append(events, l.arm(now, level+l.subsequentGap, level-l.subsequentGap, l.subsequentGap)...)
	if l.hasLast {
		l.block(l.lastSpot)
	}
	return events, nil
}

// arm sets the armed pair, stepping consumed levels outward so a used level
// is never re-armed.
func (l *Ladder) arm(now time.Time, up, down, step float64) []models.TriggerEvent {
	for l.consumed[up] {
		up += step
	}
	for l.consumed[down] {
		down -= step
	}

	l.up, l.down = up, down
	l.hasUp, l.hasDown = true, true
	l.upBlocked, l.downBlocked = false, false

	return []models.TriggerEvent{
		{Timestamp: now, Level: up, Status: models.TriggerArmed, Direction: models.DirectionUp},
		{Timestamp: now, Level: down, Status: models.TriggerArmed, Direction: models.DirectionDown},
	}
}

func (l *Ladder) disarm(now time.Time) []models.TriggerEvent {
	var events []models.TriggerEvent
	if l.hasUp {
		events = append(events, models.TriggerEvent{
			Timestamp: now, Level: l.up, Status: models.TriggerExpired, Direction: models.DirectionUp,
		})
	}
	if l.hasDown {
		events = append(events, models.TriggerEvent{
			Timestamp: now, Level: l.down, Status: models.TriggerExpired, Direction: models.DirectionDown,
		})
	}
	l.hasUp, l.hasDown = false, false
	return events
}

// Armed returns the currently armed levels; a zero value with false means no
// level is armed on that side.
func (l *Ladder) Armed() (up float64, hasUp bool, down float64, hasDown bool) {
	return l.up, l.hasUp, l.down, l.hasDown
}

// IsConsumed reports whether a level has been used this session.
func (l *Ladder) IsConsumed(level float64) bool {
	return l.consumed[level]
}
