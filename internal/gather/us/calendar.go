package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// sessionSettledHour is the ET hour after which a trading day's
// extended-hours data is considered final.
const sessionSettledHour = 20

// LatestFinishedTradingDay returns the most recent trading day whose data
// is complete: either a past trading day, or today once the extended
// session has settled (after 20:05 ET). It consults the Alpaca trading
// calendar so weekends and market holidays are skipped.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now := time.Now().In(et)

	calendar, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(calendar) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	cutoff := time.Date(now.Year(), now.Month(), now.Day(), sessionSettledHour, 5, 0, 0, et)
	today := now.Format("2006-01-02")

	for i := len(calendar) - 1; i >= 0; i-- {
		date := calendar[i].Date
		if date == today && !now.After(cutoff) {
			// Today's session has not settled yet; fall back to the
			// previous trading day.
			continue
		}
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if day.Before(now) || date == today {
			return day, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
