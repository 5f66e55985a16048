package payment

import (
	"errors"
	"log"
	"sync"
)

var (
	// ErrPaymentExpired blocks opening a checkout for an expired booking.
	ErrPaymentExpired = errors.New("this payment has expired, please make a new booking")

	// ErrNoPaymentLink is returned when the booking carries no checkout URL.
	ErrNoPaymentLink = errors.New("payment: booking has no payment link")
)

// CloseReason records how a session ended.
type CloseReason int

const (
	NotClosed CloseReason = iota
	ClosedBySuccess
	ClosedByUser
	Abandoned
)

func (r CloseReason) String() string {
	switch r {
	case ClosedBySuccess:
		return "success"
	case ClosedByUser:
		return "user"
	case Abandoned:
		return "abandoned"
	default:
		return "open"
	}
}

// Session is one embedded checkout against a booking's payment link.
type Session struct {
	link     string
	detector Detector
	onClose  func(CloseReason)

	mu     sync.Mutex
	reason CloseReason
}

// Open starts a checkout. onClose runs at most once, for success or manual
// close; it does not run when the session is abandoned.
func Open(link string, expired bool, detector Detector, onClose func(CloseReason)) (*Session, error) {
	if expired {
		return nil, ErrPaymentExpired
	}
	if link == "" {
		return nil, ErrNoPaymentLink
	}
	return &Session{link: link, detector: detector, onClose: onClose}, nil
}

// Link is the checkout URL to load.
func (s *Session) Link() string {
	return s.link
}

// IsOpen reports whether the session still accepts navigation events.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason == NotClosed
}

// Reason returns how the session ended, or NotClosed.
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Navigate inspects a navigation inside the checkout. It closes the session on
// the first success indicator and reports whether it did.
func (s *Session) Navigate(navURL string) bool {
	if !s.detector.IsSuccess(navURL, s.link) {
		return false
	}
	if !s.close(ClosedBySuccess) {
		return false
	}
	log.Printf("Payment success detected at %s, closing checkout", navURL)
	return true
}

// Close ends the session by user action.
func (s *Session) Close() bool {
	return s.close(ClosedByUser)
}

// Abandon ends the session without notifying, used when the owner is torn down.
func (s *Session) Abandon() {
	s.close(Abandoned)
}

func (s *Session) close(reason CloseReason) bool {
	s.mu.Lock()
	if s.reason != NotClosed {
		s.mu.Unlock()
		return false
	}
	s.reason = reason
	s.mu.Unlock()

	if reason != Abandoned && s.onClose != nil {
		s.onClose(reason)
	}
	return true
}
