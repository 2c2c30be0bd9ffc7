/*
Package load provides the load/leg/stop domain model.

PURPOSE:
  A Load is the unit of freight: an ordered stop sequence with revenue.
  Dispatch splits it into one or more DispatchLegs, each driven by a single
  driver/truck/trailer over a contiguous stop range. The pay engine consumes
  legs, not loads - every pay calculation is per leg.

KEY CONCEPTS:
  LoadStop:     One pickup or delivery, ordered by sequence number.
  DispatchLeg:  A driver-assigned segment [FirstStopSeq, LastStopSeq] with
                the measured facts pay is computed from.
  Split:        Creating a second leg at a stop. The split stop is SHARED:
                it ends the first leg and starts the second (the handoff
                point where driver B takes over from driver A).

FACTS:
  Each leg carries the measured quantities the evaluator needs (miles,
  hours, stops, attribute flags). Facts() converts them to pay.LegFacts;
  MissingFacts() names the ones a given pay basis needs but the leg lacks,
  so recalculation can warn instead of silently paying zero.

SEE ALSO:
  - pay/evaluator.go: consumes pay.LegFacts
  - load/split.go:    the split operation
*/
package load

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/linehaul/pay-engine/pay"
)

// =============================================================================
// STOPS
// =============================================================================

type StopType string

const (
	StopPickup   StopType = "pickup"
	StopDelivery StopType = "delivery"
)

// LoadStop is one stop in a load's ordered sequence.
type LoadStop struct {
	ID       string
	LoadID   pay.LoadID
	Sequence int
	Type     StopType
	Name     string
	City     string
	State    string

	ScheduledAt time.Time
}

// =============================================================================
// DISPATCH LEG
// =============================================================================

// DispatchLeg is one driver/truck/trailer-assigned segment of a load.
// Stop ranges of consecutive legs share their boundary stop.
type DispatchLeg struct {
	ID     pay.LegID
	LoadID pay.LoadID

	// References. Empty DriverID means the leg is unassigned and its pay
	// state is unassigned regardless of stored items.
	DriverID  pay.SubjectID
	TruckID   string
	TrailerID string

	// Stop range, inclusive on both ends.
	FirstStopSeq int
	LastStopSeq  int

	// Measured facts for pay evaluation.
	LoadedMiles   decimal.Decimal
	EmptyMiles    decimal.Decimal
	DurationHours decimal.Decimal
	WaitingHours  decimal.Decimal

	CreatedAt time.Time
}

// StopCount returns the number of stops the leg covers.
func (l DispatchLeg) StopCount() int {
	if l.LastStopSeq < l.FirstStopSeq {
		return 0
	}
	return l.LastStopSeq - l.FirstStopSeq + 1
}

// HasDriver reports whether the leg can enter pay calculation at all.
func (l DispatchLeg) HasDriver() bool {
	return l.DriverID != ""
}

// =============================================================================
// LOAD
// =============================================================================

// Load is the freight order: stops, legs, revenue, and attribute flags.
type Load struct {
	ID        pay.LoadID
	OrgID     pay.OrgID
	Reference string // customer/PRO reference

	Stops []LoadStop    // ordered by Sequence
	Legs  []DispatchLeg // ordered by FirstStopSeq

	RevenueAmount decimal.Decimal
	Hazmat        bool
	TarpRequired  bool

	// ContractMiles is the rate-confirmation mileage, when imported from a
	// contract lane. Used only for divergence warnings.
	ContractMiles *decimal.Decimal

	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// Facts assembles the pay.LegFacts for one of the load's legs. Load-level
// facts (revenue, attributes, contract miles) combine with leg-level
// measurements.
func (ld Load) Facts(leg DispatchLeg) pay.LegFacts {
	return pay.LegFacts{
		LoadedMiles:   leg.LoadedMiles,
		EmptyMiles:    leg.EmptyMiles,
		DurationHours: leg.DurationHours,
		WaitingHours:  leg.WaitingHours,
		StopCount:     leg.StopCount(),
		Hazmat:        ld.Hazmat,
		TarpRequired:  ld.TarpRequired,
		RevenueAmount: ld.RevenueAmount,
		ContractMiles: ld.ContractMiles,
	}
}

// MissingFacts names the measurements a pay basis needs but the leg lacks.
// Used by recalculation to warn about substituted zeros.
func (ld Load) MissingFacts(leg DispatchLeg, basis pay.PayBasis) []string {
	var missing []string
	switch basis {
	case pay.BasisMileage:
		if leg.LoadedMiles.IsZero() && leg.EmptyMiles.IsZero() {
			missing = append(missing, "miles")
		}
	case pay.BasisHourly:
		if leg.DurationHours.IsZero() && leg.WaitingHours.IsZero() {
			missing = append(missing, "hours")
		}
	case pay.BasisPercentage:
		if ld.RevenueAmount.IsZero() {
			missing = append(missing, "revenue")
		}
	}
	return missing
}

// PrimaryLeg returns the first leg, or nil when the load has none. Loads
// without a dispatch leg cannot enter pay calculation.
func (ld Load) PrimaryLeg() *DispatchLeg {
	if len(ld.Legs) == 0 {
		return nil
	}
	return &ld.Legs[0]
}

// LegByID finds a leg on the load.
func (ld Load) LegByID(id pay.LegID) *DispatchLeg {
	for i := range ld.Legs {
		if ld.Legs[i].ID == id {
			return &ld.Legs[i]
		}
	}
	return nil
}
