// Package matrix implements the Matrix Engine (Component C, spec.md
// §4.C): orchestrating the Upstream Client and Route Normalizer, fanning
// out pair-wise availability lookups, and assembling the fare matrix.
package matrix

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bdrail/matrixsched/internal/route"
	"github.com/bdrail/matrixsched/internal/upstream"
	"github.com/bdrail/matrixsched/pkg/models"
	"golang.org/x/time/rate"
)

// fanOutWidth bounds concurrent pair-wise availability calls per matrix
// (spec.md §4.C step 5, §5: "a bounded worker pool of size 10").
const fanOutWidth = 10

// berthSurcharge is added to the fare of AC_B and F_BERTH seat types
// (spec.md §4.C step 6).
const berthSurcharge = 50

var berthSeatTypes = map[string]bool{"AC_B": true, "F_BERTH": true}

// Engine computes fare-and-availability matrices. One Engine is shared
// across all requests; it holds no per-request state.
type Engine struct {
	upstream *upstream.Client
	// limiter paces the fan-out against the upstream API — a single
	// limiter shared across a matrix's ~N²/2 pair-wise calls, in the
	// style of attacker.Engine.Attack's per-run rate.Limiter
	// (SPEC_FULL.md §6), sized generously since the fixed fanOutWidth
	// worker pool already bounds true concurrency.
	limiter *rate.Limiter
}

// New builds an Engine over the given upstream client.
func New(client *upstream.Client) *Engine {
	return &Engine{
		upstream: client,
		limiter:  rate.NewLimiter(rate.Limit(20), fanOutWidth),
	}
}

// Compute runs the full algorithm of spec.md §4.C and returns the
// assembled Matrix, or a descriptive error (including the exact
// AUTH_* sentinels and no-data/weekday-mismatch messages the front-end
// matches on verbatim).
func (e *Engine) Compute(ctx context.Context, params models.MatrixParams) (*models.Matrix, error) {
	journeyDate, err := time.Parse("02-Jan-2006", params.JourneyDateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid journey date %q: %w", params.JourneyDateStr, err)
	}

	route_, err := e.upstream.FetchTrainData(ctx, params.TrainModel, params.APIDateFormat)
	if err != nil {
		return nil, err
	}
	if route_.TrainName == "" || len(route_.Routes) == 0 {
		return nil, fmt.Errorf("No information found for this train.")
	}

	rawStops := make([]models.RouteStop, len(route_.Routes))
	for i, s := range route_.Routes {
		rawStops[i] = models.RouteStop{
			City:          s.City,
			ArrivalTime:   s.ArrivalTime,
			DepartureTime: s.DepartureTime,
			Halt:          haltToString(s.Halt),
		}
	}

	normalizedStops, stationDates := route.Normalize(rawStops, journeyDate)

	weekdayShort := journeyDate.Format("Mon")
	if !contains(route_.Days, weekdayShort) {
		return nil, fmt.Errorf("%s does not run on %s.", route_.TrainName, journeyDate.Format("Monday"))
	}

	stations := make([]string, len(normalizedStops))
	for i, s := range normalizedStops {
		stations[i] = s.City
	}

	if params.AuthToken == "" || params.DeviceKey == "" {
		return nil, fmt.Errorf(upstream.SentinelAuthCredentialsRequired)
	}
	auth := upstream.Auth{Token: params.AuthToken, DeviceKey: params.DeviceKey}

	fareMatrices := make(map[string]map[string]map[string]models.SeatRecord, len(models.SeatTypes))
	for _, seatType := range models.SeatTypes {
		fareMatrices[seatType] = make(map[string]map[string]models.SeatRecord, len(stations))
		for _, from := range stations {
			fareMatrices[seatType][from] = make(map[string]models.SeatRecord, len(stations))
		}
	}
	hasData := make(map[string]bool, len(models.SeatTypes))
	for _, seatType := range models.SeatTypes {
		hasData[seatType] = false
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, fanOutWidth)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var propagate error

	for i := 0; i < len(stations); i++ {
		for j := i + 1; j < len(stations); j++ {
			from, to := stations[i], stations[j]
			wg.Add(1)
			go func(from, to string) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
				case <-fanCtx.Done():
					return
				}
				defer func() { <-sem }()

				if err := e.limiter.Wait(fanCtx); err != nil {
					return
				}

				journeyDateForPair := isoToDDMMMYYYY(stationDates[from])
				trips, err := e.upstream.FetchTrip(fanCtx, from, to, journeyDateForPair, "SHULOV", auth)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					if shouldPropagate(err) && propagate == nil {
						propagate = err
						cancel()
					}
					return
				}

				record := extractSeatRecords(trips, params.TrainModel)
				for seatType, r := range record {
					fareMatrices[seatType][from][to] = r
					if r.Online+r.Offline > 0 {
						hasData[seatType] = true
					}
				}
			}(from, to)
		}
	}
	wg.Wait()

	if propagate != nil {
		return nil, propagate
	}

	anyData := false
	for _, v := range hasData {
		if v {
			anyData = true
			break
		}
	}
	if !anyData {
		return nil, fmt.Errorf("No seats available for the selected train and date. Please try a different date or train.")
	}

	stationDatesFormatted := make(map[string]string, len(stationDates))
	uniqueDates := make(map[string]bool, len(stationDates))
	for city, iso := range stationDates {
		stationDatesFormatted[city] = isoToDDMMMYYYY(iso)
		uniqueDates[iso] = true
	}
	hasSegmented := len(uniqueDates) > 1

	var nextDayStr, prevDayStr string
	if hasSegmented {
		nextDayStr = journeyDate.AddDate(0, 0, 1).Format("02-Jan-2006")
		prevDayStr = journeyDate.AddDate(0, 0, -1).Format("02-Jan-2006")
	}

	return &models.Matrix{
		TrainModel:            params.TrainModel,
		TrainName:             route_.TrainName,
		Date:                  params.JourneyDateStr,
		Stations:              stations,
		SeatTypes:             models.SeatTypes,
		FareMatrices:          fareMatrices,
		HasDataMap:            hasData,
		Routes:                normalizedStops,
		Days:                  route_.Days,
		TotalDuration:         route_.TotalDuration,
		StationDates:          stationDates,
		StationDatesFormatted: stationDatesFormatted,
		HasSegmentedDates:     hasSegmented,
		NextDayStr:            nextDayStr,
		PrevDayStr:            prevDayStr,
	}, nil
}

// shouldPropagate reports whether a per-pair fetch failure must fail
// the whole matrix (auth sentinels, always) or bubble out to let the
// scheduler's retry envelope retry the whole computation (rate-limit /
// forbidden), as opposed to being swallowed into a zero record
// (spec.md §4.C step 6, §4.C "Auth propagation").
func shouldPropagate(err error) bool {
	e, ok := upstream.AsError(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case upstream.KindAuthTokenExpired, upstream.KindAuthDeviceKeyExpired:
		return true
	case upstream.KindRateLimited, upstream.KindForbidden:
		return true
	default:
		return false
	}
}

// extractSeatRecords finds the trip matching trainModel and converts
// its seat_types into the fixed, ordered SeatRecord map, applying the
// berth surcharge (spec.md §4.C step 6). Unknown/missing seat types are
// left as the zero record.
func extractSeatRecords(trips []upstream.TripOption, trainModel string) map[string]models.SeatRecord {
	out := make(map[string]models.SeatRecord, len(models.SeatTypes))
	for _, seatType := range models.SeatTypes {
		out[seatType] = models.SeatRecord{}
	}

	for _, trip := range trips {
		if trip.TrainModel != trainModel {
			continue
		}
		for _, seat := range trip.SeatTypes {
			if _, known := out[seat.Type]; !known {
				continue
			}
			fare := seat.Fare
			if berthSeatTypes[seat.Type] {
				fare += berthSurcharge
			}
			out[seat.Type] = models.SeatRecord{
				Online:    seat.SeatCounts.Online,
				Offline:   seat.SeatCounts.Offline,
				Fare:      fare,
				VATAmount: seat.VATAmount,
			}
		}
		break
	}
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func isoToDDMMMYYYY(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format("02-Jan-2006")
}

func haltToString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
