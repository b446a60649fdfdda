package matrix

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bdrail/matrixsched/internal/upstream"
	"github.com/bdrail/matrixsched/pkg/models"
)

// fakeUpstream serves a two-station route and a single priced trip for
// every station pair, standing in for the real railway API.
func fakeUpstream(t *testing.T, trainName string, days []string, sparse bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/train-routes", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"train_name":     trainName,
				"days":           days,
				"total_duration": "05:00",
				"routes": []map[string]interface{}{
					{"city": "Dhaka", "arrival_time": "", "departure_time": "10:00 am", "halt": "0"},
					{"city": "Chittagong", "arrival_time": "03:00 pm", "departure_time": "", "halt": "0"},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/bookings/search-trips-v2", func(w http.ResponseWriter, r *http.Request) {
		if sparse {
			json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"trains": []interface{}{}}})
			return
		}
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"trains": []map[string]interface{}{
					{
						"train_model": "726",
						"trip_number": "1",
						"seat_types": []map[string]interface{}{
							{"type": "AC_B", "fare": 500.0, "vat_amount": 30.0, "seat_counts": map[string]int{"online": 4, "offline": 1}},
							{"type": "S_CHAIR", "fare": 300.0, "vat_amount": 10.0, "seat_counts": map[string]int{"online": 10, "offline": 0}},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	return httptest.NewServer(mux)
}

func baseParams(server *httptest.Server) models.MatrixParams {
	return models.MatrixParams{
		TrainModel:     "726",
		JourneyDateStr: "15-Nov-2024",
		APIDateFormat:  "2024-11-15",
		AuthToken:      "tok",
		DeviceKey:      "dev",
	}
}

func TestComputeAppliesBerthSurcharge(t *testing.T) {
	server := fakeUpstream(t, "Sundarban Express", []string{"Fri"}, false)
	defer server.Close()

	client := upstream.New().WithBaseURL(server.URL)
	engine := New(client)

	m, err := engine.Compute(t.Context(), baseParams(server))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	rec := m.FareMatrices["AC_B"]["Dhaka"]["Chittagong"]
	if rec.Fare != 550 {
		t.Errorf("AC_B fare = %v, want 550 (500 + 50 surcharge)", rec.Fare)
	}
	plain := m.FareMatrices["S_CHAIR"]["Dhaka"]["Chittagong"]
	if plain.Fare != 300 {
		t.Errorf("S_CHAIR fare = %v, want 300 (no surcharge)", plain.Fare)
	}
}

func TestComputeRejectsWrongWeekday(t *testing.T) {
	server := fakeUpstream(t, "Sundarban Express", []string{"Mon"}, false)
	defer server.Close()

	client := upstream.New().WithBaseURL(server.URL)
	engine := New(client)

	_, err := engine.Compute(t.Context(), baseParams(server))
	if err == nil {
		t.Fatal("Compute: expected weekday-mismatch error, got nil")
	}
}

func TestComputeRequiresAuth(t *testing.T) {
	server := fakeUpstream(t, "Sundarban Express", []string{"Fri"}, false)
	defer server.Close()

	client := upstream.New().WithBaseURL(server.URL)
	engine := New(client)

	params := baseParams(server)
	params.AuthToken = ""

	_, err := engine.Compute(t.Context(), params)
	if err == nil || err.Error() != upstream.SentinelAuthCredentialsRequired {
		t.Fatalf("Compute error = %v, want %s", err, upstream.SentinelAuthCredentialsRequired)
	}
}

func TestComputeFailsWhenNoSeatsAvailable(t *testing.T) {
	server := fakeUpstream(t, "Sundarban Express", []string{"Fri"}, true)
	defer server.Close()

	client := upstream.New().WithBaseURL(server.URL)
	engine := New(client)

	_, err := engine.Compute(t.Context(), baseParams(server))
	if err == nil {
		t.Fatal("Compute: expected no-seats error, got nil")
	}
}

func TestExtractSeatRecordsIgnoresUnmatchedTrip(t *testing.T) {
	trips := []upstream.TripOption{{TrainModel: "999"}}
	out := extractSeatRecords(trips, "726")
	for _, seatType := range models.SeatTypes {
		if out[seatType] != (models.SeatRecord{}) {
			t.Errorf("seat type %s should be zero-value when no trip matches the requested model", seatType)
		}
	}
}

func TestShouldPropagateDistinguishesAuthFromOtherErrors(t *testing.T) {
	if shouldPropagate(nil) {
		t.Error("shouldPropagate(nil) = true, want false")
	}
	if !shouldPropagate(&upstream.Error{Kind: upstream.KindAuthTokenExpired}) {
		t.Error("auth-token-expired should propagate")
	}
	if !shouldPropagate(&upstream.Error{Kind: upstream.KindRateLimited}) {
		t.Error("rate-limited should propagate (lets the scheduler's retry envelope see it)")
	}
	if shouldPropagate(&upstream.Error{Kind: upstream.KindHTTP}) {
		t.Error("a generic HTTP error should degrade to a zero record, not propagate")
	}
}
