package models

import "encoding/json"

// Category identifies one of the three fixed retro board columns.
type Category string

const (
	CategoryWentWell     Category = "went-well"
	CategoryCouldImprove Category = "could-improve"
	CategoryAction       Category = "action"
)

// Categories returns all board categories in display order.
func Categories() []Category {
	return []Category{CategoryWentWell, CategoryCouldImprove, CategoryAction}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryWentWell, CategoryCouldImprove, CategoryAction:
		return true
	}
	return false
}

// Title returns the human heading for a category.
func (c Category) Title() string {
	switch c {
	case CategoryWentWell:
		return "What Went Well"
	case CategoryCouldImprove:
		return "What Could Be Improved"
	case CategoryAction:
		return "Action Items"
	default:
		return string(c)
	}
}

// Author records who created an item. Items written before authorship
// tracking existed have no author and stay editable by anyone.
type Author struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	IsHost    bool   `json:"isHost"`
}

// Item is a single card on the board.
type Item struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"createdAt"`
	Votes     int     `json:"votes"`
	Author    *Author `json:"author,omitempty"`
}

// Board is the full retrospective document.
type Board struct {
	SprintName  string              `json:"sprintName"`
	SprintDate  string              `json:"sprintDate"`
	Items       map[Category][]Item `json:"items"`
	TeamMembers []string            `json:"teamMembers"`
}

// NewBoard returns an empty board with every collection initialized.
func NewBoard() Board {
	b := Board{}
	b.Normalize()
	return b
}

// Normalize fills every missing nested collection with its empty default.
// Remote payloads from older clients may omit entire categories.
func (b *Board) Normalize() {
	if b.Items == nil {
		b.Items = make(map[Category][]Item, 3)
	}
	for _, c := range Categories() {
		if b.Items[c] == nil {
			b.Items[c] = []Item{}
		}
	}
	if b.TeamMembers == nil {
		b.TeamMembers = []string{}
	}
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := Board{
		SprintName:  b.SprintName,
		SprintDate:  b.SprintDate,
		Items:       make(map[Category][]Item, len(b.Items)),
		TeamMembers: append([]string{}, b.TeamMembers...),
	}
	for c, items := range b.Items {
		cp := make([]Item, len(items))
		copy(cp, items)
		for i := range cp {
			if cp[i].Author != nil {
				a := *cp[i].Author
				cp[i].Author = &a
			}
		}
		out.Items[c] = cp
	}
	out.Normalize()
	return out
}

// Empty reports whether the board carries no user data at all.
func (b Board) Empty() bool {
	if b.SprintName != "" || len(b.TeamMembers) > 0 {
		return false
	}
	for _, items := range b.Items {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// ItemCount returns the number of items in the named category.
func (b Board) ItemCount(c Category) int {
	return len(b.Items[c])
}

// BoardEnvelope is the wire shape stored under sessions/{id}/data.
type BoardEnvelope struct {
	RetroData   Board `json:"retroData"`
	LastUpdated int64 `json:"lastUpdated"`
}

// DecodeBoardEnvelope parses a data payload from the replicated store,
// defaulting every missing collection. Payload shape is never trusted.
func DecodeBoardEnvelope(data []byte) (BoardEnvelope, error) {
	var env BoardEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return BoardEnvelope{}, err
	}
	env.RetroData.Normalize()
	return env, nil
}

// DecodeBoard parses a bare serialized board, as stored in the local cache.
func DecodeBoard(data []byte) (Board, error) {
	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		return Board{}, err
	}
	b.Normalize()
	return b, nil
}
