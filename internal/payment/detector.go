package payment

import (
	"net/url"
	"strings"
)

// DefaultMarkers are URL fragments that signal a finished checkout.
var DefaultMarkers = []string{
	"payment-success",
	"payment/success",
	"payment_success",
	"status=success",
	"status=paid",
	"transaction_status=settlement",
	"transaction_status=capture",
	"callback_status=success",
	"payment_status=paid",
	"parkingo.agil.zip",
}

// DefaultAppDomain is the fragment identifying the app's own hosts.
const DefaultAppDomain = "parkingo"

// Detector decides whether a checkout navigation means the payment flow is over.
type Detector struct {
	Markers   []string
	AppDomain string
}

// NewDetector builds a detector, falling back to the defaults for empty values.
func NewDetector(markers []string, appDomain string) Detector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	if appDomain == "" {
		appDomain = DefaultAppDomain
	}
	return Detector{Markers: markers, AppDomain: appDomain}
}

// IsSuccess reports whether navURL completes the checkout that started at paymentLink.
// Loading the payment link itself never counts.
func (d Detector) IsSuccess(navURL, paymentLink string) bool {
	if navURL == "" || navURL == paymentLink {
		return false
	}

	lower := strings.ToLower(navURL)
	for _, m := range d.Markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}

	return d.returnsToApp(navURL, paymentLink)
}

// returnsToApp matches a redirect back to the app domain on a different host or path than the link.
func (d Detector) returnsToApp(navURL, paymentLink string) bool {
	if d.AppDomain == "" {
		return false
	}
	domain := strings.ToLower(d.AppDomain)

	nav, err := url.Parse(navURL)
	if err != nil || nav.Host == "" {
		return strings.Contains(strings.ToLower(navURL), domain)
	}
	if !strings.Contains(strings.ToLower(nav.Host), domain) {
		return false
	}

	link, err := url.Parse(paymentLink)
	if err != nil {
		return true
	}
	return !strings.EqualFold(nav.Host, link.Host) || nav.Path != link.Path
}
