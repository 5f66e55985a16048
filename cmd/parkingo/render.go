package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/skip2/go-qrcode"

	"parkingo-client/internal/layout"
	"parkingo-client/internal/model"
	"parkingo-client/internal/tracker"
)

const cellWidth = 6

// formatFee renders an amount in rupiah with dot thousands separators.
func formatFee(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-Rp" + b.String()
	}
	return "Rp" + b.String()
}

func renderParkings(w io.Writer, parkings []model.Parking) error {
	if len(parkings) == 0 {
		_, err := fmt.Fprintln(w, "No parking facilities found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tADDRESS\tFEE/HOUR")
	for _, p := range parkings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Slug, p.Name, p.Address, formatFee(p.DefaultFee))
	}
	return tw.Flush()
}

func renderParking(w io.Writer, p *model.Parking) {
	fmt.Fprintf(w, "%s (%s)\n%s\n%s per hour\nMap: %s\n\n", p.Name, p.Slug, p.Address, formatFee(p.DefaultFee), p.MapsURL())
	renderGrid(w, layout.FromParking(p), 0)

	available := 0
	for _, s := range p.Slots {
		if s.IsAvailable() {
			available++
		}
	}
	fmt.Fprintf(w, "\n%d of %d slots available. Legend: [##] booked, [--] unavailable, ?? unresolved\n", available, len(p.Slots))
}

// renderGrid draws the layout row by row, one fixed-width column per cell.
// The slot with id mark, if any, is drawn as [**].
func renderGrid(w io.Writer, g *layout.Grid, mark int64) {
	if g.Rows() == 0 {
		fmt.Fprintln(w, "(no layout)")
		return
	}
	var line strings.Builder
	lastRow := 0
	g.Walk(func(row, col int, cell model.LayoutCell, slot *model.Slot) {
		for lastRow < row {
			fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
			line.Reset()
			lastRow++
		}
		label := cellLabel(cell, slot)
		if slot != nil && mark != 0 && slot.ID == mark {
			label = "[**]"
		}
		fmt.Fprintf(&line, "%-*s", cellWidth, label)
	})
	fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
}

func cellLabel(cell model.LayoutCell, slot *model.Slot) string {
	switch cell {
	case model.CellSlot:
		if slot == nil {
			return "??"
		}
		switch slot.Status {
		case model.SlotAvailable:
			return slot.Name
		case model.SlotBooked:
			return "[##]"
		default:
			return "[--]"
		}
	case model.CellRoad:
		return "."
	case model.CellDoor, model.CellEntrance, model.CellExit:
		return string(cell)
	default:
		return ""
	}
}

func renderBookings(w io.Writer, bookings []model.Booking, loc *time.Location) error {
	if len(bookings) == 0 {
		_, err := fmt.Fprintln(w, "You have no bookings")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REFERENCE\tPARKING\tSLOT\tPLATE\tSTART\tEND\tFEE\tSTATUS")
	for _, b := range bookings {
		parking, slot := "-", "-"
		if b.Parking != nil {
			parking = b.Parking.Name
		}
		if b.Slot != nil {
			slot = b.Slot.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.PaymentReference, parking, slot, b.PlateNumber,
			b.StartAt.In(loc).Format("Jan 2 15:04"), b.EndAt.In(loc).Format("Jan 2 15:04"),
			formatFee(b.TotalFee), b.Status)
	}
	return tw.Flush()
}

func renderBooking(w io.Writer, s tracker.Snapshot, loc *time.Location) {
	b := s.Booking
	fmt.Fprintf(w, "Booking %s\n", b.PaymentReference)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if s.Parking != nil {
		fmt.Fprintf(tw, "Parking\t%s, %s\n", s.Parking.Name, s.Parking.Address)
	} else if b.Parking != nil {
		fmt.Fprintf(tw, "Parking\t%s\n", b.Parking.Name)
	}
	if slot, ok := s.BookedSlot(); ok {
		fmt.Fprintf(tw, "Slot\t%s (row %d, col %d)\n", slot.Name, slot.Row, slot.Col)
	} else if b.Slot != nil {
		fmt.Fprintf(tw, "Slot\t%s\n", b.Slot.Name)
	}
	fmt.Fprintf(tw, "Plate\t%s\n", b.PlateNumber)
	fmt.Fprintf(tw, "Start\t%s\n", b.StartAt.In(loc).Format("Mon Jan 2 15:04"))
	fmt.Fprintf(tw, "End\t%s\n", b.EndAt.In(loc).Format("Mon Jan 2 15:04"))
	fmt.Fprintf(tw, "Duration\t%d hours\n", b.TotalHours)
	fmt.Fprintf(tw, "Total\t%s\n", formatFee(b.TotalFee))
	fmt.Fprintf(tw, "Status\t%s\n", b.Status)
	switch {
	case b.Status == model.BookingUnpaid && s.Expired:
		fmt.Fprintf(tw, "Payment\texpired\n")
	case b.Status == model.BookingUnpaid:
		fmt.Fprintf(tw, "Payment\tdue in %s\n", s.Countdown)
	}
	tw.Flush()

	if s.ParkingErr != nil {
		fmt.Fprintf(w, "(facility details unavailable: %v)\n", s.ParkingErr)
	} else if s.Grid != nil {
		fmt.Fprintln(w)
		renderGrid(w, s.Grid, b.SlotID)
		fmt.Fprintln(w, "Your slot is marked [**]")
	}

	fmt.Fprintln(w, "\nBooking QR Code")
	renderQR(w, b.PaymentReference)
	fmt.Fprintln(w, "Show this QR code when leaving the parking area")
}

// renderQR prints content as a QR code made of half-block characters. An
// encoding failure is printed in place of the code.
func renderQR(w io.Writer, content string) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Failed to load QR Code: %v\n", err)
		return
	}
	fmt.Fprint(w, q.ToSmallString(false))
}
