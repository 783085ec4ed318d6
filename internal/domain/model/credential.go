package model

import (
	"fmt"
	"time"
)

// Credential is one set of provider secret material with its own quota and
// failure accounting. Counters are owned by the key pool; callers receive copies.
type Credential struct {
	ID                  string // public identifier (Kling access key, "gemini-2", ...)
	KeyMaterial         string // secret used for signing or as the API key
	DailyQuota          int
	UsedToday           int
	ConsecutiveFailures int
	TotalFailures       int
	Excluded            bool
	LastReset           time.Time // UTC midnight of the day UsedToday counts
}

func NewCredential(id, keyMaterial string, dailyQuota int, now time.Time) *Credential {
	return &Credential{
		ID:          id,
		KeyMaterial: keyMaterial,
		DailyQuota:  dailyQuota,
		LastReset:   DayOf(now),
	}
}

// Remaining is the quota left for the current day.
func (c Credential) Remaining() int {
	if r := c.DailyQuota - c.UsedToday; r > 0 {
		return r
	}
	return 0
}

// String never prints key material.
func (c Credential) String() string {
	return fmt.Sprintf("credential(%s used=%d/%d failures=%d excluded=%t)",
		c.ID, c.UsedToday, c.DailyQuota, c.ConsecutiveFailures, c.Excluded)
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
