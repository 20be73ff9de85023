package models

import "encoding/json"

// PresenceRecord is the wire shape stored under sessions/{id}/users/{userId}.
// The store removes it automatically when the owning client disconnects.
type PresenceRecord struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// DecodePresenceRecord parses a presence payload.
func DecodePresenceRecord(data []byte) (PresenceRecord, error) {
	var rec PresenceRecord
	err := json.Unmarshal(data, &rec)
	return rec, err
}
