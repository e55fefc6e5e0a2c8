// Package marketclock reports whether an exchange segment is currently
// open, driving the option chain cache's live-vs-closing bootstrap choice.
// It lives outside internal/core because it depends on internal/repository,
// which itself depends (transitively, through internal/execution) on
// internal/core; keeping it separate avoids a package import cycle.
package marketclock

import (
	"context"
	"time"

	"dhancore/internal/repository"
)

var istLocation = time.FixedZone("IST", 5*60*60+30*60)

const (
	marketOpenHour    = 9
	marketOpenMinute  = 15
	marketCloseHour   = 15
	marketCloseMinute = 30
)

// Clock implements optionchain.MarketClock, consulting the admin settings
// row for a per-exchange override before falling back to the standard
// NSE/BSE Mon-Fri 09:15-15:30 IST session. IST is a fixed +5:30 offset, not
// looked up from the system's tzdata, so this behaves identically on a
// minimal container image that carries no timezone database.
type Clock struct {
	settings *repository.SettingsRepository
}

// New builds a Clock.
func New(settings *repository.SettingsRepository) *Clock {
	return &Clock{settings: settings}
}

// IsExchangeOpen reports whether exchange is currently open for trading.
func (c *Clock) IsExchangeOpen(exchange string) bool {
	if c.settings != nil {
		if s, err := c.settings.Get(context.Background()); err == nil {
			if forced, ok := s.MarketHoursOverride[exchange]; ok {
				return forced
			}
		}
	}
	return isWithinStandardSession(time.Now().In(istLocation))
}

func isWithinStandardSession(now time.Time) bool {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(now.Year(), now.Month(), now.Day(), marketOpenHour, marketOpenMinute, 0, 0, now.Location())
	closeAt := time.Date(now.Year(), now.Month(), now.Day(), marketCloseHour, marketCloseMinute, 0, 0, now.Location())
	return !now.Before(open) && !now.After(closeAt)
}
