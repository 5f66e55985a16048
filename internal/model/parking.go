package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LayoutCell is one position of a facility layout grid.
type LayoutCell string

const (
	CellSlot     LayoutCell = "P"
	CellRoad     LayoutCell = "ROAD"
	CellDoor     LayoutCell = "DOOR"
	CellEntrance LayoutCell = "IN"
	CellExit     LayoutCell = "EXIT"
	CellEmpty    LayoutCell = "EMPTY"
)

// Valid reports whether c is one of the known cell kinds.
func (c LayoutCell) Valid() bool {
	switch c {
	case CellSlot, CellRoad, CellDoor, CellEntrance, CellExit, CellEmpty:
		return true
	}
	return false
}

// IsMarker reports whether the cell is a fixed structural marker that is drawn with a label.
func (c LayoutCell) IsMarker() bool {
	return c == CellDoor || c == CellEntrance || c == CellExit
}

// UnmarshalJSON decodes unknown kinds as CellEmpty so a single bad cell does
// not fail the whole facility payload.
func (c *LayoutCell) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("layout cell: %w", err)
	}
	cell := LayoutCell(raw)
	if !cell.Valid() {
		cell = CellEmpty
	}
	*c = cell
	return nil
}

// SlotStatus is the server-side availability of a slot.
type SlotStatus string

const (
	SlotAvailable    SlotStatus = "AVAILABLE"
	SlotBooked       SlotStatus = "BOOKED"
	SlotNotAvailable SlotStatus = "NOT_AVAILABLE"
)

// Slot is one reservable parking space.
type Slot struct {
	ID         int64      `json:"id"`
	ParkingID  int64      `json:"parking_id"`
	Name       string     `json:"name"`
	Status     SlotStatus `json:"status"`
	Fee        int64      `json:"fee"`
	Row        int        `json:"row"`
	Col        int        `json:"col"`
	PreviewURL string     `json:"preview_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsAvailable reports whether the slot can be selected.
func (s *Slot) IsAvailable() bool {
	return s.Status == SlotAvailable
}

// Parking is a facility as returned by the API. The client never mutates it.
type Parking struct {
	ID         int64          `json:"id"`
	AuthorID   int64          `json:"author_id,omitempty"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	DefaultFee int64          `json:"default_fee"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Layout     [][]LayoutCell `json:"layout,omitempty"`
	Slots      []Slot         `json:"slots,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MapsURL returns the external map link for the facility location.
func (p *Parking) MapsURL() string {
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", p.Latitude, p.Longitude)
}
