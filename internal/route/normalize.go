// Package route normalizes a train's raw stop list: correcting halt
// durations and deriving each station's local calendar date across
// midnight boundaries (Component B, spec.md §4.B).
package route

import (
	"strconv"
	"strings"
	"time"

	"github.com/bdrail/matrixsched/pkg/models"
)

const maxReasonableGapHours = 12

// parseClockMinutes parses a stop time of the form "HH:MM am/pm BST"
// (the "BST" suffix and surrounding space are optional) into minutes
// since local midnight. Returns ok=false for anything it can't parse,
// matching spec.md §4.B's "unparseable times leave state unchanged".
func parseClockMinutes(raw string) (minutes int, ok bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "BST")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, false
	}
	hourMin, ampm := fields[0], strings.ToLower(fields[1])
	if ampm != "am" && ampm != "pm" {
		return 0, false
	}

	parts := strings.SplitN(hourMin, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	if hour < 0 || hour > 12 || minute < 0 || minute > 59 {
		return 0, false
	}

	if ampm == "pm" && hour != 12 {
		hour += 12
	} else if ampm == "am" && hour == 12 {
		hour = 0
	}
	return hour*60 + minute, true
}

// haltMinutes parses a raw halt string (commonly numeric, but upstream
// sometimes sends garbage) into minutes. ok is false when the value is
// missing or non-numeric.
func haltMinutes(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// correctHalt recomputes a stop's halt from arrival/departure when the
// original is non-numeric or outside [0, 120] minutes (spec.md §4.B).
func correctHalt(stop *models.RouteStop) {
	arrMin, arrOK := parseClockMinutes(stop.ArrivalTime)
	depMin, depOK := parseClockMinutes(stop.DepartureTime)
	if !arrOK || !depOK {
		return
	}

	recomputed := depMin - arrMin
	if recomputed < 0 {
		recomputed += 24 * 60
	}

	original, originalOK := haltMinutes(stop.Halt)
	if !originalOK || original < 0 || original > 120 {
		stop.Halt = strconv.Itoa(recomputed)
	}
}

// Normalize applies halt correction and per-station local-date
// derivation to a raw route, returning the normalized stops and a
// city->ISO-date map. journeyDate is the base date (the user's
// requested travel date).
func Normalize(rawRoutes []models.RouteStop, journeyDate time.Time) (stops []models.RouteStop, stationDates map[string]string) {
	stops = make([]models.RouteStop, len(rawRoutes))
	copy(stops, rawRoutes)
	stationDates = make(map[string]string, len(stops))

	for i := range stops {
		correctHalt(&stops[i])
	}

	currentDate := journeyDate
	havePrevious := false
	previousMinutes := 0

	for i := range stops {
		timeStr := stops[i].DepartureTime
		if timeStr == "" {
			timeStr = stops[i].ArrivalTime
		}

		minutes, ok := parseClockMinutes(timeStr)
		if !ok {
			stationDates[stops[i].City] = currentDate.Format("2006-01-02")
			continue
		}

		if havePrevious && minutes < previousMinutes {
			gapHours := float64((minutes+24*60)-previousMinutes) / 60.0
			if gapHours < maxReasonableGapHours {
				stops[i-1].DisplayDate = currentDate.Format("02 Jan")
				currentDate = currentDate.AddDate(0, 0, 1)
				stops[i].DisplayDate = currentDate.Format("02 Jan")
			}
		}

		stationDates[stops[i].City] = currentDate.Format("2006-01-02")
		previousMinutes = minutes
		havePrevious = true
	}

	return stops, stationDates
}
