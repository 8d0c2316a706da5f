package engine

import (
	"fmt"
	"time"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/gateway/notifier"

	"github.com/shopspring/decimal"
)

// formatter renders every lifecycle notification with a local timestamp.
type formatter struct {
	loc *time.Location
	now func() time.Time
}

func (f formatter) render(icon, title string, fields ...notifier.Field) string {
	return notifier.Message{
		Icon:      icon,
		Title:     title,
		Fields:    fields,
		Timestamp: f.now(),
		Location:  f.loc,
	}.RenderMarkdown()
}

func field(label string, value any) notifier.Field {
	switch v := value.(type) {
	case decimal.Decimal:
		return notifier.Field{Label: label, Value: v.String()}
	case error:
		return notifier.Field{Label: label, Value: v.Error()}
	default:
		return notifier.Field{Label: label, Value: fmt.Sprint(v)}
	}
}

func (f formatter) entryPlaced(o EntryOrder, orderID int64) string {
	return f.render("📥", "Stop-limit placed",
		field("Symbol", o.Symbol),
		field("Side", o.Side),
		field("Qty", o.Qty),
		field("Stop", o.StopPrice),
		field("Limit", o.LimitPrice),
		field("Order", orderID),
	)
}

func (f formatter) entryAttemptFailed(o EntryOrder, attempt, max int, err error) string {
	return f.render("⚠️", fmt.Sprintf("Stop-limit attempt %d/%d failed", attempt, max),
		field("Symbol", o.Symbol),
		field("Side", o.Side),
		field("Error", err),
	)
}

func (f formatter) entryFailed(o EntryOrder, attempts int, err error) string {
	return f.render("❌", "Stop-limit not placed",
		field("Symbol", o.Symbol),
		field("Attempts", attempts),
		field("Error", err),
	)
}

func (f formatter) entryTimedOut(s PositionState, waited time.Duration) string {
	return f.render("⌛", "Stop-limit cancelled by timeout",
		field("Symbol", s.Symbol),
		field("Side", s.Side),
		field("Order", s.EntryOrderID),
		field("Waited", waited.Round(time.Second)),
	)
}

func (f formatter) entryFilled(s PositionState) string {
	return f.render("🚀", "Entry filled, bracket armed",
		field("Symbol", s.Symbol),
		field("Side", s.Side),
		field("Entry", s.FillPrice),
		field("Take profit", s.TakeProfitPrice),
		field("Stop loss", s.StopLossPrice),
		field("Size", s.Qty),
		field("Leverage", fmt.Sprintf("%dx", s.Leverage)),
		field("Risk", s.RiskPercent.String()+"%"),
	)
}

func (f formatter) bracketFailed(s PositionState, err error) string {
	return f.render("🛑", "Bracket placement failed, position force-closed",
		field("Symbol", s.Symbol),
		field("Side", s.Side),
		field("Error", err),
	)
}

func (f formatter) exitReport(s PositionState, exit Exit, balance decimal.Decimal, quote string) string {
	icon, title := "✅", "Take profit hit"
	if exit.Kind == ExitStopLoss {
		icon, title = "🔻", "Stop loss hit"
	}
	return f.render(icon, title,
		field("Symbol", s.Symbol),
		field("Side", s.Side),
		field("PnL", exit.PnL.StringFixed(4)+" "+quote),
		field("Commission", exit.Commission.StringFixed(4)+" "+quote),
		field("Balance", balance.StringFixed(2)+" "+quote),
	)
}

func (f formatter) unprotected(p exchange.Position) string {
	return f.render("🚨", "Unprotected position found, forcing close",
		field("Symbol", p.Symbol),
		field("Amount", p.Amount),
		field("Entry", p.EntryPrice),
	)
}

func (f formatter) forceCloseFailed(symbol string, err error) string {
	return f.render("🆘", "Force close failed, manual action required",
		field("Symbol", symbol),
		field("Error", err),
	)
}

func (f formatter) manualClose(p exchange.Position, orderID int64) string {
	return f.render("🔒", "Position closed on CLOSE signal",
		field("Symbol", p.Symbol),
		field("Amount", p.Amount),
		field("Order", orderID),
	)
}
