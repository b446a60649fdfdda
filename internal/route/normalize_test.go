package route

import (
	"testing"
	"time"

	"github.com/bdrail/matrixsched/pkg/models"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("02-Jan-2006", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestParseClockMinutes(t *testing.T) {
	cases := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"12:00 am", 0, true},
		{"12:00 pm", 12 * 60, true},
		{"00:05 am", 5, true},
		{"01:05 am BST", 65, true},
		{"11:59 pm", 23*60 + 59, true},
		{"", 0, false},
		{"garbage", 0, false},
		{"13:00 am", 0, false},
	}
	for _, c := range cases {
		got, ok := parseClockMinutes(c.in)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Errorf("parseClockMinutes(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
}

func TestCorrectHaltRecomputesOutOfRangeValues(t *testing.T) {
	stop := models.RouteStop{ArrivalTime: "10:00 am", DepartureTime: "10:05 am", Halt: "999"}
	correctHalt(&stop)
	if stop.Halt != "5" {
		t.Errorf("Halt = %q, want \"5\"", stop.Halt)
	}
}

func TestCorrectHaltLeavesPlausibleValueAlone(t *testing.T) {
	stop := models.RouteStop{ArrivalTime: "10:00 am", DepartureTime: "10:05 am", Halt: "2"}
	correctHalt(&stop)
	if stop.Halt != "2" {
		t.Errorf("Halt = %q, want unchanged \"2\"", stop.Halt)
	}
}

func TestCorrectHaltWrapsMidnightWithLiteralZeroHour(t *testing.T) {
	stop := models.RouteStop{ArrivalTime: "11:50 pm BST", DepartureTime: "00:05 am BST", Halt: "180"}
	correctHalt(&stop)
	if stop.Halt != "15" {
		t.Errorf("Halt = %q, want \"15\" (00:05 am must parse as hour 0, not be rejected)", stop.Halt)
	}
}

func TestCorrectHaltWrapsMidnight(t *testing.T) {
	stop := models.RouteStop{ArrivalTime: "11:55 pm", DepartureTime: "12:02 am", Halt: "500"}
	correctHalt(&stop)
	if stop.Halt != "7" {
		t.Errorf("Halt = %q, want \"7\" (wrapped)", stop.Halt)
	}
}

func TestCorrectHaltSkipsUnparseableTimes(t *testing.T) {
	stop := models.RouteStop{ArrivalTime: "", DepartureTime: "10:05 am", Halt: "999"}
	correctHalt(&stop)
	if stop.Halt != "999" {
		t.Errorf("Halt = %q, want left unchanged when a time is unparseable", stop.Halt)
	}
}

func TestNormalizeDerivesDatesAcrossMidnight(t *testing.T) {
	journeyDate := mustDate(t, "15-Nov-2024")
	raw := []models.RouteStop{
		{City: "Dhaka", DepartureTime: "11:00 pm"},
		{City: "Bhairab", ArrivalTime: "11:30 pm", DepartureTime: "11:35 pm"},
		{City: "Chittagong", ArrivalTime: "02:00 am"},
	}

	stops, dates := Normalize(raw, journeyDate)

	if dates["Dhaka"] != "2024-11-15" {
		t.Errorf("Dhaka date = %s, want 2024-11-15", dates["Dhaka"])
	}
	if dates["Chittagong"] != "2024-11-16" {
		t.Errorf("Chittagong date = %s, want 2024-11-16 (past midnight)", dates["Chittagong"])
	}
	if len(stops) != len(raw) {
		t.Fatalf("Normalize returned %d stops, want %d", len(stops), len(raw))
	}
}

func TestNormalizeDoesNotRollOverOnLargeBackwardGap(t *testing.T) {
	journeyDate := mustDate(t, "15-Nov-2024")
	raw := []models.RouteStop{
		{City: "A", DepartureTime: "08:00 pm"},
		{City: "B", ArrivalTime: "07:00 pm"},
	}
	_, dates := Normalize(raw, journeyDate)
	if dates["B"] != "2024-11-15" {
		t.Errorf("B date = %s, want same-day (gap too large to be a midnight rollover)", dates["B"])
	}
}
