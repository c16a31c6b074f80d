package timecodec

import (
	"testing"
	"time"
)

func TestDecodeToLocal_NaiveInputs(t *testing.T) {
	var c Codec
	cases := []struct {
		name   string
		raw    string
		offset int
		want   string
	}{
		{"plain", "2024-03-10T08:30:00", 3600, "2024-03-10T08:30:00"},
		{"space separator", "2024-03-10 08:30:00", 3600, "2024-03-10T08:30:00"},
		{"missing seconds", "2024-03-10T08:30", 0, "2024-03-10T08:30:00"},
		{"fraction stripped", "2024-03-10T08:30:00.1234567", -7200, "2024-03-10T08:30:00"},
		{"empty", "", 0, ""},
		{"garbage", "not a time", 0, ""},
		{"date only", "2024-03-10", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.DecodeToLocal(tc.raw, tc.offset); got != tc.want {
				t.Fatalf("DecodeToLocal(%q, %d) = %q, want %q", tc.raw, tc.offset, got, tc.want)
			}
		})
	}
}

func TestDecodeToLocal_ZonedInputShiftsByDeviceOffset(t *testing.T) {
	var c Codec
	// 10:00Z at UTC+2 is 12:00 local.
	got := c.DecodeToLocal("2024-03-10T10:00:00Z", 7200)
	if got != "2024-03-10T12:00:00" {
		t.Fatalf("got %q, want 2024-03-10T12:00:00", got)
	}
	// Numeric offset input: 12:00+02:00 is 10:00Z, i.e. 05:00 at UTC-5.
	got = c.DecodeToLocal("2024-03-10T12:00:00+02:00", -18000)
	if got != "2024-03-10T05:00:00" {
		t.Fatalf("got %q, want 2024-03-10T05:00:00", got)
	}
}

func TestDecodeToLocal_ZonedAndNaiveAgree(t *testing.T) {
	var c Codec
	// Both inputs describe the same local wall-clock instant at UTC+2.
	zoned := c.DecodeToLocal("2024-03-10T10:00:00Z", 7200)
	naive := c.DecodeToLocal("2024-03-10T12:00:00", 7200)
	if zoned != naive {
		t.Fatalf("zoned %q != naive %q", zoned, naive)
	}
}

func TestDecodeToLocal_InsaneOffsetTreatedAsUTC(t *testing.T) {
	var c Codec
	got := c.DecodeToLocal("2024-03-10T10:00:00Z", 999999999)
	if got != "2024-03-10T10:00:00" {
		t.Fatalf("got %q, want offset ignored", got)
	}
}

func TestEncodeFutureLocal_OffsetAppliedExactlyOnce(t *testing.T) {
	// Regression for the double-offset defect ("need 2h to get 1h"): encoding
	// then decoding must land exactly minutes ahead of now in device-local
	// wall-clock time, for any offset.
	var c Codec
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	for _, minutes := range []int{1, 60, 180, 720, 1440} {
		for _, offset := range []int{-43200, -18000, 0, 3600, 7200, 50400} {
			enc := c.EncodeFutureLocal(now, minutes, offset)
			dec := c.DecodeToLocal(enc, offset)
			if enc != dec {
				t.Fatalf("encode %q decodes to %q (minutes=%d offset=%d)", enc, dec, minutes, offset)
			}
			want := now.Add(time.Duration(minutes) * time.Minute).
				Add(time.Duration(sanitizeOffset(offset)) * time.Second).
				Format(LocalLayout)
			if enc != want {
				t.Fatalf("EncodeFutureLocal(minutes=%d offset=%d) = %q, want %q", minutes, offset, enc, want)
			}
		}
	}
}

func TestEncodeFutureLocal_HostZoneDoesNotLeakIn(t *testing.T) {
	var c Codec
	// Same instant expressed in a non-UTC zone must encode identically.
	utc := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	shifted := utc.In(time.FixedZone("X", 3*3600))
	if a, b := c.EncodeFutureLocal(utc, 60, 7200), c.EncodeFutureLocal(shifted, 60, 7200); a != b {
		t.Fatalf("encoding depends on input zone: %q vs %q", a, b)
	}
}

func TestEncodeFutureLocal_Correction(t *testing.T) {
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	plain := Codec{}.EncodeFutureLocal(now, 60, 0)
	if plain != "2024-03-10T11:00:00" {
		t.Fatalf("zero correction: got %q", plain)
	}

	corrected := Codec{Correction: time.Hour}.EncodeFutureLocal(now, 60, 0)
	if corrected != "2024-03-10T12:00:00" {
		t.Fatalf("1h correction: got %q", corrected)
	}
}
