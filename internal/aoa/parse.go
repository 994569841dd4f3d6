package aoa

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// UUDFPrefix starts every anchor angle report.
const UUDFPrefix = "+UUDF:"

// uudfMinFields is the number of comma separated fields after the prefix
// needed to reach the anchor id.
const uudfMinFields = 7

// Field positions inside a +UUDF report.
const (
	fieldTagID     = 0
	fieldRSSI1     = 1
	fieldAzimuth   = 2
	fieldElevation = 3
	fieldRSSI2     = 4
	fieldChannel   = 5
	fieldPeerID    = 6
)

// Report is a decoded +UUDF angle report.
type Report struct {
	// PeerID identifies the reporting anchor; readings are keyed on it.
	PeerID       string
	TagID        string
	AzimuthDeg   int
	ElevationDeg int
	// RSSI1, RSSI2 and Channel are informational. They are zero when the
	// anchor sends something that is not an integer.
	RSSI1   int
	RSSI2   int
	Channel int
}

// ParseUUDF decodes a single anchor datagram. Any problem yields an error
// wrapping ErrMalformedDatagram.
func ParseUUDF(payload []byte) (Report, error) {
	if !utf8.Valid(payload) {
		return Report{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedDatagram)
	}
	msg := string(bytes.TrimSpace(payload))
	if !strings.HasPrefix(msg, UUDFPrefix) {
		return Report{}, fmt.Errorf("%w: missing %s prefix", ErrMalformedDatagram, UUDFPrefix)
	}

	parts := strings.Split(msg[len(UUDFPrefix):], ",")
	if len(parts) < uudfMinFields {
		return Report{}, fmt.Errorf("%w: %d fields, need at least %d", ErrMalformedDatagram, len(parts), uudfMinFields)
	}

	az, err := strconv.Atoi(strings.TrimSpace(parts[fieldAzimuth]))
	if err != nil {
		return Report{}, fmt.Errorf("%w: azimuth %q: %v", ErrMalformedDatagram, parts[fieldAzimuth], err)
	}
	el, err := strconv.Atoi(strings.TrimSpace(parts[fieldElevation]))
	if err != nil {
		return Report{}, fmt.Errorf("%w: elevation %q: %v", ErrMalformedDatagram, parts[fieldElevation], err)
	}

	return Report{
		PeerID:       unquote(parts[fieldPeerID]),
		TagID:        unquote(parts[fieldTagID]),
		AzimuthDeg:   az,
		ElevationDeg: el,
		RSSI1:        lenientInt(parts[fieldRSSI1]),
		RSSI2:        lenientInt(parts[fieldRSSI2]),
		Channel:      lenientInt(parts[fieldChannel]),
	}, nil
}

// FormatUUDF renders a report in wire form. Fields the parser ignores are
// filled from r as well so captures look like real anchor output.
func FormatUUDF(r Report) string {
	return fmt.Sprintf("%s%s,%d,%d,%d,%d,%d,\"%s\"",
		UUDFPrefix, r.TagID, r.RSSI1, r.AzimuthDeg, r.ElevationDeg, r.RSSI2, r.Channel, r.PeerID)
}

func unquote(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

func lenientInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
