package util

import "testing"

func TestFormatISK(t *testing.T) {
	cases := map[int64]string{
		0:           "0",
		999:         "999",
		1000:        "1.000",
		50030000:    "50.030.000",
		20000000000: "20.000.000.000",
	}
	for in, want := range cases {
		if got := FormatISK(in); got != want {
			t.Fatalf("FormatISK(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatVolume(t *testing.T) {
	if got := FormatVolume(351000); got != "351.000 m³" {
		t.Fatalf("unexpected volume %q", got)
	}
}

func TestFormatCountdown(t *testing.T) {
	cases := map[int64]string{
		0:       "00:00",
		-5:      "00:00",
		1:       "00:01",
		59_000:  "00:59",
		60_000:  "01:00",
		299_500: "05:00",
		300_000: "05:00",
		61_200:  "01:02",
	}
	for in, want := range cases {
		if got := FormatCountdown(in); got != want {
			t.Fatalf("FormatCountdown(%d) = %q, want %q", in, got, want)
		}
	}
}
