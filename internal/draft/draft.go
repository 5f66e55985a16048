package draft

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"parkingo-client/internal/model"
)

// MinDurationHours is the shortest bookable window.
const MinDurationHours = 3

// MaxDurationHours is the longest window whose end time still fits in a time.Duration.
const MaxDurationHours = math.MaxInt64 / int64(time.Hour)

// DefaultEntryOffset is how far ahead of now the entry time starts out.
const DefaultEntryOffset = 30 * time.Minute

// isoLayout matches the millisecond UTC timestamps the API expects.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Input is the raw booking form.
type Input struct {
	PlateNumber string
	Duration    string
	// EntryTime carries the chosen time of day; its date is ignored.
	EntryTime time.Time
}

// Draft is a validated booking ready for submission.
type Draft struct {
	PlateNumber   string
	StartAt       time.Time
	EndAt         time.Time
	DurationHours int
	Fee           int64
	ParkingID     int64
	SlotID        int64
}

// Request builds the submission payload.
func (d *Draft) Request() model.BookingRequest {
	return model.BookingRequest{
		PlateNumber: d.PlateNumber,
		StartAt:     FormatTime(d.StartAt),
		EndAt:       FormatTime(d.EndAt),
		ParkingID:   d.ParkingID,
		SlotID:      d.SlotID,
	}
}

// FormatTime renders t as an ISO-8601 UTC timestamp with milliseconds.
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseDuration parses the duration field and enforces the minimum.
func ParseDuration(raw string) (int, error) {
	hours, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number of hours", ErrInvalidDuration, raw)
	}
	if hours < MinDurationHours {
		return 0, ErrInvalidDuration
	}
	if int64(hours) > MaxDurationHours {
		return 0, fmt.Errorf("%w: %d hours is out of range", ErrInvalidDuration, hours)
	}
	return hours, nil
}

// Fee is the price of a booking: the facility default fee times the hours, without rounding.
func Fee(defaultFee int64, hours int) (int64, error) {
	if defaultFee > 0 && int64(hours) > math.MaxInt64/defaultFee {
		return 0, fmt.Errorf("%w: fee for %d hours is out of range", ErrInvalidDuration, hours)
	}
	return defaultFee * int64(hours), nil
}

// Preview computes the fee shown next to the form for the raw duration field.
func Preview(defaultFee int64, rawDuration string) (int64, error) {
	hours, err := ParseDuration(rawDuration)
	if err != nil {
		return 0, err
	}
	return Fee(defaultFee, hours)
}

// DefaultEntryTime is the entry time the form opens with.
func DefaultEntryTime(now time.Time) time.Time {
	return now.Add(DefaultEntryOffset)
}

// StartOn places the time of day of entry on the calendar date of now.
func StartOn(now, entry time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), entry.Hour(), entry.Minute(), 0, 0, now.Location())
}

// ChooseStartTime is the time-picker check: the picked time of day, on today's
// date, must be strictly after now.
func ChooseStartTime(picked, now time.Time) (time.Time, error) {
	start := StartOn(now, picked)
	if !start.After(now) {
		return time.Time{}, ErrInvalidStartTime
	}
	return start, nil
}

// Validator turns form input into a Draft.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a validator reading the current time from now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate checks the plate, then the duration, then the start time, and
// returns the first violation.
func (v *Validator) Validate(parking *model.Parking, slot *model.Slot, in Input) (*Draft, error) {
	if parking == nil || slot == nil {
		return nil, ErrMissingTarget
	}

	plate := strings.TrimSpace(in.PlateNumber)
	if plate == "" {
		return nil, ErrInvalidPlate
	}

	hours, err := ParseDuration(in.Duration)
	if err != nil {
		return nil, err
	}

	fee, err := Fee(parking.DefaultFee, hours)
	if err != nil {
		return nil, err
	}

	start, err := ChooseStartTime(in.EntryTime, v.now())
	if err != nil {
		return nil, err
	}

	return &Draft{
		PlateNumber:   plate,
		StartAt:       start,
		EndAt:         start.Add(time.Duration(hours) * time.Hour),
		DurationHours: hours,
		Fee:           fee,
		ParkingID:     parking.ID,
		SlotID:        slot.ID,
	}, nil
}
