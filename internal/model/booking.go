package model

import "time"

// BookingStatus is owned by the server; the client only observes it.
type BookingStatus string

const (
	BookingUnpaid    BookingStatus = "UNPAID"
	BookingPaid      BookingStatus = "PAID"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Booking is a reservation of one slot for a time window.
type Booking struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"user_id"`
	User             *User         `json:"user,omitempty"`
	ParkingID        int64         `json:"parking_id"`
	Parking          *Parking      `json:"parking,omitempty"`
	SlotID           int64         `json:"slot_id"`
	Slot             *Slot         `json:"slot,omitempty"`
	PlateNumber      string        `json:"plate_number"`
	StartAt          time.Time     `json:"start_at"`
	EndAt            time.Time     `json:"end_at"`
	TotalHours       int           `json:"total_hours"`
	TotalFee         int64         `json:"total_fee"`
	PaymentReference string        `json:"payment_reference"`
	PaymentLink      string        `json:"payment_link"`
	PaymentExpiredAt time.Time     `json:"payment_expired_at"`
	Status           BookingStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	DeletedAt        *time.Time    `json:"deleted_at,omitempty"`
}

// ParkingSlug returns the slug of the embedded facility snapshot, if any.
func (b *Booking) ParkingSlug() string {
	if b.Parking == nil {
		return ""
	}
	return b.Parking.Slug
}

// BookingRequest is the body of POST /v1/bookings.
type BookingRequest struct {
	PlateNumber string `json:"plate_number"`
	StartAt     string `json:"start_at"`
	EndAt       string `json:"end_at"`
	ParkingID   int64  `json:"parking_id"`
	SlotID      int64  `json:"slot_id"`
}
