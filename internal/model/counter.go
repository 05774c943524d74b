package model

// DateLayout is the calendar-day key format for daily counters.
const DateLayout = "2006-01-02"

// DailyCount is the net number of completing toggles for one owner on one
// calendar day. Exactly one record exists per (owner, date).
type DailyCount struct {
	Owner     string `json:"owner"`
	Date      string `json:"date"`
	Completed int    `json:"completed"`
}
