package ledger

import (
	"sort"
	"time"

	"tradejournal/pkg/db"
)

// Recomputer implements the recomputation algorithm of §4.3.2: walk the
// event stream chronologically and emit one capital history point per
// calendar day from the anchor date through max(today, last event date).
// Dates are calendar dates in a single fixed reporting timezone chosen at
// startup; trade timestamps themselves remain UTC.
type Recomputer struct {
	loc *time.Location
}

// NewRecomputer builds a recomputer that samples days in loc.
func NewRecomputer(loc *time.Location) *Recomputer {
	if loc == nil {
		loc = time.UTC
	}
	return &Recomputer{loc: loc}
}

func (r *Recomputer) dateOnly(t time.Time) time.Time {
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
}

// Compute derives the daily capital history series for one strategy. trades
// must already exclude soft-deleted rows. now anchors "today" for the
// upper bound of the sampled range, so tests can hold it fixed.
func (r *Recomputer) Compute(trades []db.TradeEvent, anchor db.CapitalAnchor, now time.Time) []db.CapitalHistoryPoint {
	d0 := r.dateOnly(anchor.Date)

	events := r.buildEvents(trades, d0)
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		if events[i].kind != events[j].kind {
			return events[i].kind == eventOpen // OPEN before CLOSE
		}
		return events[i].tradeID < events[j].tradeID
	})

	lastEventDate := d0
	if len(events) > 0 {
		last := r.dateOnly(events[len(events)-1].at)
		if last.After(lastEventDate) {
			lastEventDate = last
		}
	}
	today := r.dateOnly(now)
	endDate := lastEventDate
	if today.After(endDate) {
		endDate = today
	}

	availableFunds := anchor.Amount
	openLots := make(map[string]float64) // tradeID -> open_price * remaining_shares

	var points []db.CapitalHistoryPoint
	idx := 0
	for d := d0; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		nextDayStart := d.AddDate(0, 0, 1)
		for idx < len(events) && events[idx].at.Before(nextDayStart) {
			e := events[idx]
			availableFunds += e.cashDelta
			switch e.kind {
			case eventOpen:
				openLots[e.tradeID] = e.price * e.shares
			case eventClose:
				delete(openLots, e.tradeID)
			}
			idx++
		}

		positionValue := 0.0
		for _, v := range openLots {
			positionValue += v
		}

		points = append(points, db.CapitalHistoryPoint{
			StrategyID:     anchor.StrategyID,
			UserID:         anchor.UserID,
			Date:           d,
			AvailableFunds: availableFunds,
			PositionValue:  positionValue,
			TotalAssets:    availableFunds + positionValue,
		})
	}

	return points
}

// buildEvents emits OPEN/CLOSE logical events per trade. Partial-close
// children produce their own OPEN/CLOSE pair; the parent's OPEN uses its
// live `shares` field, which already reflects the remainder after any
// partial closes (the algorithm reads the live field, it does not
// reconstruct history from child counts).
func (r *Recomputer) buildEvents(trades []db.TradeEvent, d0 time.Time) []ledgerEvent {
	var events []ledgerEvent
	for _, t := range trades {
		openAt := t.OpenTime
		if openAt.Before(d0) {
			openAt = d0
		}
		cost := t.OpenPrice*t.Shares + t.CommissionBuy
		events = append(events, ledgerEvent{
			kind: eventOpen, at: openAt, tradeID: t.ID, code: t.Code,
			cashDelta: -cost, shares: t.Shares, price: t.OpenPrice,
		})

		if t.Status == "closed" && t.CloseTime != nil && t.ClosePrice != nil {
			proceeds := *t.ClosePrice*t.Shares - t.CommissionSell
			events = append(events, ledgerEvent{
				kind: eventClose, at: *t.CloseTime, tradeID: t.ID, code: t.Code,
				cashDelta: proceeds, shares: t.Shares, price: t.OpenPrice,
			})
		}
	}
	return events
}
