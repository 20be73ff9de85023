package models

import "encoding/json"

// DefaultTimerMinutes is used when no duration has been configured or the
// configured value is not a positive number.
const DefaultTimerMinutes = 30

// TimerRecord is the wire shape stored under sessions/{id}/timer.
// Timestamps are epoch milliseconds on the store's server clock.
type TimerRecord struct {
	Duration       int    `json:"duration"`  // minutes
	Remaining      int    `json:"remaining"` // seconds
	IsRunning      bool   `json:"isRunning"`
	IsPaused       bool   `json:"isPaused"`
	StartTime      *int64 `json:"startTime,omitempty"`
	LastUpdateTime int64  `json:"lastUpdateTime"`
	EndTime        *int64 `json:"endTime,omitempty"`
}

// DecodeTimerRecord parses a timer payload, clamping nonsense values so the
// invariants duration > 0 and remaining >= 0 hold regardless of sender.
func DecodeTimerRecord(data []byte) (TimerRecord, error) {
	var rec TimerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TimerRecord{}, err
	}
	if rec.Duration <= 0 {
		rec.Duration = DefaultTimerMinutes
	}
	if rec.Remaining < 0 {
		rec.Remaining = 0
	}
	if rec.IsRunning && rec.IsPaused {
		// Running wins; a paused timer never carries isRunning.
		rec.IsPaused = false
	}
	return rec, nil
}
