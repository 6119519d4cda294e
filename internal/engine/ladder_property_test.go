package engine

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
	"straddle-runner/pkg/utils"
)

// Property: activating a ladder always arms exactly one pair, anchored to the
// initial-gap grid: the down level is spot snapped down to the grid, the up
// level exactly one gap above it, and both bracket the anchor.
func TestProperty_ActivateArmsGridAlignedPair(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Activate arms a grid-aligned pair around spot", prop.ForAll(
		func(spot float64, gapUnits int) bool {
			gap := float64(gapUnits)
			ladder, err := NewLadder(gap, gap, models.RearmHold)
			if err != nil {
				return false
			}

			ladder.Activate(spot)
			up, hasUp, down, hasDown := ladder.Armed()

			if !hasUp || !hasDown {
				return false
			}
			if down != utils.RoundToGrid(spot, gap) {
				return false
			}
			if up != down+gap {
				return false
			}
			// The pair brackets the anchor.
			return down <= spot && spot < up
		},
		gen.Float64Range(1000, 30000),
		gen.IntRange(5, 500),
	))

	properties.TestingRun(t)
}

// Property: a consumed level can never be consumed again within a session,
// and the arm step never re-arms a consumed level, whatever sequence of
// crossings the market produces.
func TestProperty_ConsumedLevelsNeverReused(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("No level is consumed twice across random spot walks", prop.ForAll(
		func(start float64, steps []int) bool {
			ladder, err := NewLadder(50, 50, models.RearmImmediate)
			if err != nil {
				return false
			}
			ladder.Activate(start)

			seen := make(map[float64]bool)
			spot := start
			for _, s := range steps {
				spot += float64(s)
				level, _, hit := ladder.Evaluate(spot)
				if !hit {
					continue
				}
				if seen[level] {
					return false
				}
				if _, err := ladder.Consume(level); err != nil {
					return false
				}
				seen[level] = true

				// A second consume of the same level must be rejected.
				if _, err := ladder.Consume(level); !apperrors.Is(err, apperrors.ErrLevelConsumed) {
					return false
				}

				// The freshly armed pair must avoid every consumed level.
				up, hasUp, down, hasDown := ladder.Armed()
				if hasUp && seen[up] {
					return false
				}
				if hasDown && seen[down] {
					return false
				}
			}
			return true
		},
		gen.Float64Range(15000, 25000),
		gen.SliceOfN(40, gen.IntRange(-120, 120)),
	))

	properties.TestingRun(t)
}

// Property: a level that fired without being consumed keeps firing on every
// evaluation while spot stays beyond it, under both policies.
func TestProperty_UnconsumedLevelKeepsFiring(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Pinned spot beyond an unconsumed level fires every evaluation", prop.ForAll(
		func(anchor float64, repeats int) bool {
			for _, policy := range []models.RearmPolicy{models.RearmHold, models.RearmImmediate} {
				ladder, err := NewLadder(50, 50, policy)
				if err != nil {
					return false
				}
				ladder.Activate(anchor)
				up, _, _, _ := ladder.Armed()

				pinned := up + 10
				for i := 0; i < repeats; i++ {
					level, _, hit := ladder.Evaluate(pinned)
					if !hit || level != up {
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(15000, 25000),
		gen.IntRange(2, 20),
	))

	properties.TestingRun(t)
}

// Property: when a consume overshoots the next armed level, hold keeps that
// level silent until spot retreats across it, while immediate fires it on
// the very next evaluation.
func TestProperty_HoldRequiresRetreatAfterOvershoot(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Overshot replacement level needs a retreat under hold only", prop.ForAll(
		func(anchor float64, subUnits, extraUnits int) bool {
			subGap := float64(subUnits)
			for _, policy := range []models.RearmPolicy{models.RearmHold, models.RearmImmediate} {
				ladder, err := NewLadder(50, subGap, policy)
				if err != nil {
					return false
				}
				ladder.Activate(anchor)
				up, _, _, _ := ladder.Armed()

				// One sample carries spot past the armed level and past its
				// replacement in the same move.
				overshoot := up + subGap + float64(extraUnits)
				level, _, hit := ladder.Evaluate(overshoot)
				if !hit || level != up {
					return false
				}
				if _, err := ladder.Consume(up); err != nil {
					return false
				}
				newUp, _, _, _ := ladder.Armed()
				if newUp != up+subGap {
					return false
				}

				_, _, hit = ladder.Evaluate(overshoot)
				switch policy {
				case models.RearmHold:
					if hit {
						return false
					}
					// Retreating below the replacement re-arms it.
					if _, _, h := ladder.Evaluate(up); h {
						return false
					}
					if level, _, h := ladder.Evaluate(overshoot); !h || level != newUp {
						return false
					}
				case models.RearmImmediate:
					if !hit {
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(15000, 25000),
		gen.IntRange(10, 200),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// Property: consuming a level expires its sibling and arms a new pair spaced
// by the subsequent gap around the consumed level.
func TestProperty_ConsumeRearmsAroundConsumedLevel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("New pair sits one subsequent gap around the consumed level", prop.ForAll(
		func(anchor float64, initUnits, subUnits int) bool {
			initGap := float64(initUnits)
			subGap := float64(subUnits)
			ladder, err := NewLadder(initGap, subGap, models.RearmImmediate)
			if err != nil {
				return false
			}
			ladder.Activate(anchor)
			oldUp, _, oldDown, _ := ladder.Armed()

			events, err := ladder.Consume(oldUp)
			if err != nil {
				return false
			}

			// Event order: consumed, sibling expired, new pair armed.
			var sawConsumed, sawExpired bool
			for _, ev := range events {
				switch ev.Status {
				case models.TriggerConsumed:
					sawConsumed = ev.Level == oldUp
				case models.TriggerExpired:
					sawExpired = ev.Level == oldDown
				}
			}
			if !sawConsumed || !sawExpired {
				return false
			}

			up, hasUp, down, hasDown := ladder.Armed()
			if !hasUp || !hasDown {
				return false
			}
			return up == oldUp+subGap && down == oldUp-subGap
		},
		gen.Float64Range(15000, 25000),
		gen.IntRange(10, 200),
		gen.IntRange(10, 200),
	))

	properties.TestingRun(t)
}
