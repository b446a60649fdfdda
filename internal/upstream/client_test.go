package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func jsonHandler(status int, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

func TestDoWithStatusMappingRateLimited(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusTooManyRequests, map[string]interface{}{
		"error": map[string]interface{}{"messages": []string{"Too many requests."}},
	}))
	defer server.Close()

	client := New().WithBaseURL(server.URL)
	_, err := client.FetchTrainData(t.Context(), "726", "2024-11-15")
	e, ok := AsError(err)
	if !ok || e.Kind != KindRateLimited {
		t.Fatalf("err = %v, want KindRateLimited", err)
	}
	if !IsRetryable(err) {
		t.Error("rate-limited errors must be retryable")
	}
}

func TestClassifyUnauthorizedTokenExpiredTakesPrecedence(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"messages": []string{"not authorized", "Invalid User Access Token!"},
		},
	})
	err := classifyUnauthorized(body)
	e, _ := AsError(err)
	if e.Kind != KindAuthTokenExpired {
		t.Errorf("Kind = %v, want KindAuthTokenExpired (token-expired phrase wins)", e.Kind)
	}
}

func TestClassifyUnauthorizedDeviceKeyFallback(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"messages": []string{"Please login first"},
		},
	})
	err := classifyUnauthorized(body)
	e, _ := AsError(err)
	if e.Kind != KindAuthDeviceKeyExpired {
		t.Errorf("Kind = %v, want KindAuthDeviceKeyExpired", e.Kind)
	}
}

func TestClassifyUnauthorizedDefaultsToTokenExpired(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{"error": map[string]interface{}{"messages": []string{}}})
	err := classifyUnauthorized(body)
	e, _ := AsError(err)
	if e.Kind != KindAuthTokenExpired {
		t.Errorf("Kind = %v, want KindAuthTokenExpired (default)", e.Kind)
	}
}

func TestDoWithStatusMappingForbidden(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusForbidden, map[string]interface{}{}))
	defer server.Close()

	client := New().WithBaseURL(server.URL)
	_, err := client.FetchTrainData(t.Context(), "726", "2024-11-15")
	e, ok := AsError(err)
	if !ok || e.Kind != KindForbidden {
		t.Fatalf("err = %v, want KindForbidden", err)
	}
	if !IsRetryable(err) {
		t.Error("forbidden/high-traffic errors must be retryable")
	}
}

func TestDoWithStatusMappingRetriesOnceOn5xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"train_name": "X", "routes": []interface{}{}}})
	}))
	defer server.Close()

	client := New().WithBaseURL(server.URL)
	_, err := client.FetchTrainData(t.Context(), "726", "2024-11-15")
	if err != nil {
		t.Fatalf("expected the second attempt to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one retry on 5xx)", attempts)
	}
}

func TestDoWithStatusMappingSuccessPassesThroughBody(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"trains": []map[string]interface{}{{"train_model": "726", "trip_number": "1"}}},
	}))
	defer server.Close()

	client := New().WithBaseURL(server.URL)
	trips, err := client.FetchTrip(t.Context(), "Dhaka", "Chittagong", "15-Nov-2024", "", Auth{Token: "t", DeviceKey: "d"})
	if err != nil {
		t.Fatalf("FetchTrip: %v", err)
	}
	if len(trips) != 1 || trips[0].TrainModel != "726" {
		t.Fatalf("trips = %+v, want one trip with model 726", trips)
	}
}

func TestCommonTrainsIntersectsByTripNumber(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var trains []map[string]interface{}
		if calls == 1 {
			trains = []map[string]interface{}{
				{"train_model": "726", "trip_number": "1"},
				{"train_model": "727", "trip_number": "2"},
			}
		} else {
			trains = []map[string]interface{}{
				{"train_model": "726", "trip_number": "1"},
				{"train_model": "728", "trip_number": "3"},
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"trains": trains}})
	}))
	defer server.Close()

	client := New().WithBaseURL(server.URL)
	common, err := client.CommonTrains(t.Context(), "Dhaka", "Chittagong", "15-Nov-2024", "16-Nov-2024", Auth{Token: "t", DeviceKey: "d"})
	if err != nil {
		t.Fatalf("CommonTrains: %v", err)
	}
	if len(common) != 1 || common[0].TripNumber != "1" {
		t.Fatalf("common = %+v, want exactly trip 1", common)
	}
}
