/*
split.go - Splitting a load at a stop

PURPOSE:
  Splitting hands a load off between drivers mid-route. The original leg is
  truncated to end at the split stop and a new leg starts there, so the
  split stop appears in BOTH stop ranges - it is the physical handoff point.

RULES:
  - The split stop must be interior to the leg's range (not its first or
    last stop); splitting at an endpoint would create an empty leg.
  - The new leg starts unassigned; dispatch assigns its driver afterwards.
  - Splitting is atomic from the caller's perspective: it either returns
    both legs or an error, never a half-modified load.

MEASURED FACTS AFTER A SPLIT:
  Mileage/time facts belong to whoever measured them. The split cannot
  apportion them reliably, so the truncated leg keeps its measurements and
  the new leg starts at zero; dispatch records the new leg's facts when the
  second driver runs it.
*/
package load

import (
	"errors"
	"fmt"

	"github.com/linehaul/pay-engine/pay"
)

// ErrInvalidSplitPoint is returned when the split stop is not interior to
// the leg's stop range.
var ErrInvalidSplitPoint = errors.New("split stop must be between the leg's first and last stop")

// Split truncates the given leg at splitStopSeq and returns the new second
// leg. The load's Legs slice is updated in place; the caller persists both
// legs in one transaction.
func Split(ld *Load, legID pay.LegID, splitStopSeq int, newLegID pay.LegID) (*DispatchLeg, error) {
	leg := ld.LegByID(legID)
	if leg == nil {
		return nil, fmt.Errorf("leg %s: %w", legID, pay.ErrMissingDispatchLeg)
	}

	if splitStopSeq <= leg.FirstStopSeq || splitStopSeq >= leg.LastStopSeq {
		return nil, fmt.Errorf("stop %d on leg [%d,%d]: %w",
			splitStopSeq, leg.FirstStopSeq, leg.LastStopSeq, ErrInvalidSplitPoint)
	}

	second := DispatchLeg{
		ID:           newLegID,
		LoadID:       ld.ID,
		FirstStopSeq: splitStopSeq, // shared handoff stop
		LastStopSeq:  leg.LastStopSeq,
	}
	leg.LastStopSeq = splitStopSeq

	ld.Legs = append(ld.Legs, second)
	return &ld.Legs[len(ld.Legs)-1], nil
}
