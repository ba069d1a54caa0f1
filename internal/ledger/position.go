package ledger

import "tradejournal/pkg/db"

// Positions derives the read-time-only Position View for a strategy: one
// entry per open, non-child trade, with its partial-close children attached.
// It never touches the database itself — callers pass in the already-loaded
// open parents and a lookup of children keyed by parent id.
func Positions(openParents []db.TradeEvent, childrenByParent map[string][]db.TradeEvent) []PositionView {
	views := make([]PositionView, 0, len(openParents))
	for _, p := range openParents {
		children := childrenByParent[p.ID]

		var closedShares float64
		for _, c := range children {
			closedShares += c.Shares
		}

		views = append(views, PositionView{
			TradeID:         p.ID,
			Code:            p.Code,
			DisplayName:     p.DisplayName,
			RemainingShares: p.Shares,
			AvgOpenPrice:    p.OpenPrice,
			OpenedShares:    p.Shares + closedShares,
			ClosedShares:    closedShares,
			StopLossPrice:   p.StopLossPrice,
			TakeProfitPrice: p.TakeProfitPrice,
			StopLossAlert:   p.StopLossAlert,
			TakeProfitAlert: p.TakeProfitAlert,
			Children:        children,
		})
	}
	return views
}
