// Package checkin builds and renders the event check-in code a participant
// shows at the venue.
package checkin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Scheme is the URI scheme of check-in codes.
const Scheme = "meeple"

// ErrMalformed is returned by Parse for anything that is not a check-in URI.
var ErrMalformed = errors.New("checkin: malformed code")

// URI returns meeple://checkin/<event>/<user>.
func URI(eventID, userID string) string {
	return Scheme + "://checkin/" + url.PathEscape(eventID) + "/" + url.PathEscape(userID)
}

// Parse extracts the event and user from a check-in URI.
func Parse(raw string) (eventID, userID string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != Scheme || u.Host != "checkin" {
		return "", "", ErrMalformed
	}
	parts := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	if len(parts) != 2 {
		return "", "", ErrMalformed
	}
	if eventID, err = url.PathUnescape(parts[0]); err != nil {
		return "", "", ErrMalformed
	}
	if userID, err = url.PathUnescape(parts[1]); err != nil {
		return "", "", ErrMalformed
	}
	if eventID == "" || userID == "" {
		return "", "", ErrMalformed
	}
	return eventID, userID, nil
}

// Render converts content to a compact QR code using Unicode half-block
// characters. Two bitmap rows become one terminal line.
func Render(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	qr.DisableBorder = false

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
