package timecodec

import (
	"regexp"
	"strings"
	"time"
)

// LocalLayout is the naive thermostat-local timestamp format the vendor
// expects on end-time fields: second precision, no fraction, no zone suffix.
const LocalLayout = "2006-01-02T15:04:05"

// Offsets beyond a day are garbage from the vendor; treat as UTC-as-local.
const maxOffsetSeconds = 24 * 60 * 60

// Codec converts between absolute instants and thermostat-local naive time,
// given a per-device fixed UTC offset in seconds. No DST table: the offset is
// whatever the vendor reports for the device.
type Codec struct {
	// Correction is added to every encoded end time. The vendor's timing
	// contract for outgoing end times is ambiguous, so this stays a single
	// configured knob (cloud.end_time_correction) rather than a baked-in guess.
	Correction time.Duration
}

var (
	zoneSuffixRe = regexp.MustCompile(`(?:Z|z|[+-]\d{2}:?\d{2})$`)
	naiveRe      = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ](\d{2}):(\d{2})(?::(\d{2}))?`)
)

// layouts tried for inputs carrying an explicit zone marker.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05Z07:00",
}

func sanitizeOffset(offsetSeconds int) int {
	if offsetSeconds < -maxOffsetSeconds || offsetSeconds > maxOffsetSeconds {
		return 0
	}
	return offsetSeconds
}

// DecodeToLocal converts a raw vendor end-time value to the naive local form.
// A value with an explicit zone marker is parsed as an absolute instant and
// shifted by the device offset. A value without one is treated as already
// local: the sub-second fraction and any stray suffix are stripped, and a
// missing seconds field defaults to "00". Empty or unparseable input yields "".
func (c Codec) DecodeToLocal(raw string, offsetSeconds int) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if zoneSuffixRe.MatchString(raw) {
		for _, layout := range zonedLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				off := sanitizeOffset(offsetSeconds)
				return t.UTC().Add(time.Duration(off) * time.Second).Format(LocalLayout)
			}
		}
		// Marker present but the value is not a full zoned timestamp;
		// fall through and read it as naive with a stray suffix.
	}

	m := naiveRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	sec := m[4]
	if sec == "" {
		sec = "00"
	}
	return m[1] + "T" + m[2] + ":" + m[3] + ":" + sec
}

// EncodeFutureLocal formats "now + minutesFromNow" as thermostat-local naive
// time. The device offset is applied exactly once, here: computing now in UTC
// keeps the arithmetic zone-free, so the result cannot pick up the host zone
// and the offset a second time.
func (c Codec) EncodeFutureLocal(now time.Time, minutesFromNow int, offsetSeconds int) string {
	off := sanitizeOffset(offsetSeconds)
	end := now.UTC().
		Add(time.Duration(minutesFromNow) * time.Minute).
		Add(c.Correction).
		Add(time.Duration(off) * time.Second)
	return end.Format(LocalLayout)
}
