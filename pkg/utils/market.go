package utils

import "time"

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// NowIST returns the current wall-clock time in the market timezone.
func NowIST() time.Time {
	return time.Now().In(IndiaLocation)
}

// IsMarketOpen returns true during the NSE normal session (9:15-15:30 IST,
// weekdays).
func IsMarketOpen(now time.Time) bool {
	now = now.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 555 && minutes < 930
}

// RoundToGrid snaps a price down to the nearest multiple of step.
func RoundToGrid(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	n := int64(price / step)
	return float64(n) * step
}
