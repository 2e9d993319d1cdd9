package view

import (
	"strings"

	"github.com/chromedp/cdproto/fetch"
)

// DefaultUserAgent is sent by every tab. It deliberately carries no shell or
// platform-specific product token.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// DefaultContentPolicy is appended to every document response loaded in a tab.
// Multiple policies are all enforced by the browser, so appending can only
// tighten whatever the site itself declares.
const DefaultContentPolicy = "object-src 'none'; base-uri 'self'; frame-ancestors 'none'; form-action 'self' https:; upgrade-insecure-requests"

const cspHeader = "Content-Security-Policy"

// deniedPermissions are set to "denied" in every tab's browser context so
// permission prompts never reach the user.
var deniedPermissions = []string{
	"geolocation",
	"notifications",
	"midi",
	"midiSysex",
	"audioCapture",
	"videoCapture",
	"backgroundSync",
	"sensors",
	"clipboardReadWrite",
	"clipboardSanitizedWrite",
	"paymentHandler",
	"idleDetection",
	"wakeLockScreen",
	"wakeLockSystem",
	"displayCapture",
	"storageAccess",
	"windowManagement",
	"localFonts",
	"nfc",
	"durableStorage",
}

// withContentPolicy returns the response headers with policy appended as an
// additional Content-Security-Policy entry. An identical existing entry is
// not duplicated.
func withContentPolicy(headers []*fetch.HeaderEntry, policy string) []*fetch.HeaderEntry {
	out := make([]*fetch.HeaderEntry, 0, len(headers)+1)
	for _, h := range headers {
		if h == nil {
			continue
		}
		if strings.EqualFold(h.Name, cspHeader) && h.Value == policy {
			continue
		}
		out = append(out, h)
	}
	return append(out, &fetch.HeaderEntry{Name: cspHeader, Value: policy})
}

// goneHints mark errors from a target or context that the browser already
// tore down; disposal treats them as success.
var goneHints = []string{
	"target closed",
	"session closed",
	"no target with given id",
	"no session with given id",
	"failed to find browser context",
	"connection closed",
	"not connected",
}

func isGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range goneHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
