package models

import "encoding/json"

// RevealMode controls which item text is visible on the board.
type RevealMode string

const (
	// RevealModeAll hides every item's text.
	RevealModeAll RevealMode = "all"
	// RevealModeOthers hides only text written by other participants.
	RevealModeOthers RevealMode = "others"
	// RevealModeNone shows everything.
	RevealModeNone RevealMode = "none"
)

// Valid reports whether m is a known reveal mode.
func (m RevealMode) Valid() bool {
	switch m {
	case RevealModeAll, RevealModeOthers, RevealModeNone:
		return true
	}
	return false
}

// Describe returns the user-facing notice text for a mode change.
func (m RevealMode) Describe() string {
	switch m {
	case RevealModeAll:
		return "Card text is now hidden for everyone"
	case RevealModeOthers:
		return "Card text from other participants is now hidden"
	default:
		return "Card text is now visible to everyone"
	}
}

// RevealRecord is the wire shape stored under sessions/{id}/reveal.
type RevealRecord struct {
	IsTextHidden bool       `json:"isTextHidden"`
	HideMode     RevealMode `json:"hideMode"`
	LastUpdated  int64      `json:"lastUpdated"`
}

// DecodeRevealRecord parses a reveal payload. Records written before the
// three-way mode existed carry only isTextHidden; they map to all/none.
func DecodeRevealRecord(data []byte) (RevealRecord, error) {
	var rec RevealRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RevealRecord{}, err
	}
	if !rec.HideMode.Valid() {
		if rec.IsTextHidden {
			rec.HideMode = RevealModeAll
		} else {
			rec.HideMode = RevealModeNone
		}
	}
	rec.IsTextHidden = rec.HideMode == RevealModeAll
	return rec, nil
}
