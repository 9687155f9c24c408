// Package notification delivers alerts about run lifecycle and rejected
// orders to external channels (log, webhook).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	RunID   string     `json:"run_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AlertFor maps an event to an alert. Ticks and trades produce none.
func AlertFor(ev model.Event) (Alert, bool) {
	switch ev.Type {
	case model.EventRejected:
		if ev.Rejection == nil {
			return Alert{}, false
		}
		return Alert{
			Level:   AlertWarning,
			Title:   fmt.Sprintf("%s order rejected", ev.Rejection.Side),
			Message: ev.Rejection.Reason,
			RunID:   ev.RunID,
		}, true

	case model.EventLifecycle:
		lc := ev.Lifecycle
		if lc == nil {
			return Alert{}, false
		}
		a := Alert{RunID: ev.RunID, Level: AlertInfo}
		switch lc.State {
		case model.StateRunning:
			a.Title = fmt.Sprintf("%s run started", lc.Mode)
			a.Message = fmt.Sprintf("%s on %s", lc.Strategy, lc.Symbol)
		case model.StateStopped:
			a.Title = fmt.Sprintf("%s run stopped", lc.Mode)
			a.Message = summaryLine(lc)
		case model.StateFailed:
			a.Level = AlertCritical
			a.Title = fmt.Sprintf("%s run failed", lc.Mode)
			a.Message = lc.Error
		default:
			return Alert{}, false
		}
		return a, true
	}
	return Alert{}, false
}

func summaryLine(lc *model.LifecycleEvent) string {
	s := lc.Summary
	if s == nil {
		return fmt.Sprintf("%s on %s", lc.Strategy, lc.Symbol)
	}
	return fmt.Sprintf("%s on %s: %d ticks, %d trades, balance %s, equity %s, realized P&L %s, ROI %s%%",
		lc.Strategy, lc.Symbol, s.Ticks, s.Trades, s.FinalBalance.StringFixed(2),
		s.Equity.StringFixed(2), s.RealizedPnL.StringFixed(2), s.ROIPct.StringFixed(2))
}

// Run sends an alert for every qualifying event on ch until ctx is done or
// ch is closed. Delivery errors are logged, never fatal.
func Run(ctx context.Context, ch <-chan model.Event, n Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			alert, ok := AlertFor(ev)
			if !ok {
				continue
			}
			if err := n.Send(ctx, alert); err != nil {
				log.Printf("[notify] delivery failed: %v", err)
			}
		}
	}
}
