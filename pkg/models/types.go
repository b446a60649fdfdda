// Package models holds the domain types shared across the scheduler,
// matrix engine, route normalizer, upstream client, and HTTP front-end.
package models

import "time"

// SeatTypes is the fixed, ordered list of seat classes a Matrix reports
// on. Order is an invariant: fare_matrices and has_data_map are keyed
// by these names, and callers may rely on this slice's order for
// stable rendering.
var SeatTypes = []string{
	"S_CHAIR", "SHOVAN", "SNIGDHA", "F_SEAT", "F_CHAIR",
	"AC_S", "F_BERTH", "AC_B", "SHULOV", "AC_CHAIR",
}

// RequestStatus is the lifecycle state of a scheduled matrix request.
type RequestStatus string

const (
	StatusQueued     RequestStatus = "queued"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// MatrixParams is the worker payload a submitted request carries: the
// parameters needed to compute one fare-and-availability matrix.
type MatrixParams struct {
	TrainModel     string // numeric model code, e.g. "726"
	JourneyDateStr string // user-facing DD-MMM-YYYY
	APIDateFormat  string // YYYY-MM-DD, for the route endpoint
	FormValues     map[string]string
	AuthToken      string
	DeviceKey      string
}

// StatusRecord is the snapshot returned by a status poll.
type StatusRecord struct {
	Status        RequestStatus `json:"status"`
	Position      int           `json:"position"`
	CreatedAt     time.Time     `json:"created_at"`
	EstimatedTime int           `json:"estimated_time"`
	LastHeartbeat int64         `json:"last_heartbeat"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
}

// Result is the terminal outcome of a completed or failed request.
// Exactly one of Matrix/Error is meaningful, mirroring the
// {success,result,form_values} | {error} shape of spec.md §3.
type Result struct {
	Success    bool              `json:"success"`
	Matrix     *Matrix           `json:"result,omitempty"`
	FormValues map[string]string `json:"form_values,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// RouteStop is one stop along a train's route, as returned (and then
// normalized) from the train-routes upstream call.
type RouteStop struct {
	City          string `json:"city"`
	ArrivalTime   string `json:"arrival_time,omitempty"`
	DepartureTime string `json:"departure_time,omitempty"`
	Halt          string `json:"halt,omitempty"`
	DisplayDate   string `json:"display_date,omitempty"`
}

// SeatRecord is one seat type's pricing and availability for a single
// ordered station pair.
type SeatRecord struct {
	Online    int     `json:"online"`
	Offline   int     `json:"offline"`
	Fare      float64 `json:"fare"`
	VATAmount float64 `json:"vat_amount"`
}

// Matrix is the fully assembled fare-and-availability matrix for a
// (train, journey date) pair — the Matrix Engine's output (spec.md §3).
type Matrix struct {
	TrainModel            string                                       `json:"train_model"`
	TrainName             string                                       `json:"train_name"`
	Date                  string                                       `json:"date"`
	Stations              []string                                     `json:"stations"`
	SeatTypes             []string                                     `json:"seat_types"`
	FareMatrices          map[string]map[string]map[string]SeatRecord `json:"fare_matrices"`
	HasDataMap            map[string]bool                              `json:"has_data_map"`
	Routes                []RouteStop                                  `json:"routes"`
	Days                  []string                                     `json:"days"`
	TotalDuration         string                                       `json:"total_duration"`
	StationDates          map[string]string                            `json:"station_dates"`
	StationDatesFormatted map[string]string                            `json:"station_dates_formatted"`
	HasSegmentedDates     bool                                         `json:"has_segmented_dates"`
	NextDayStr            string                                       `json:"next_day_str,omitempty"`
	PrevDayStr            string                                       `json:"prev_day_str,omitempty"`
}

// SchedulerConfig holds the Request Scheduler's tunables (spec.md §4.D/§6).
type SchedulerConfig struct {
	MaxConcurrent         int           `yaml:"queue_max_concurrent"`
	CooldownPeriod        time.Duration `yaml:"queue_cooldown_period"`
	HeartbeatTimeout      time.Duration `yaml:"queue_heartbeat_timeout"`
	CleanupInterval       time.Duration `yaml:"queue_cleanup_interval"`
	BatchCleanupThreshold int           `yaml:"queue_batch_cleanup_threshold"`
	Enabled               bool          `yaml:"queue_enabled"`
}

// DefaultSchedulerConfig returns the documented defaults from spec.md §4.D.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:         1,
		CooldownPeriod:        3 * time.Second,
		HeartbeatTimeout:      90 * time.Second,
		CleanupInterval:       45 * time.Second,
		BatchCleanupThreshold: 10,
		Enabled:               true,
	}
}

// AbandonmentRecord is appended whenever a queued (not yet dispatched)
// request is cancelled.
type AbandonmentRecord struct {
	Position  int
	WaitTime  time.Duration
	Timestamp time.Time
}

// Stats is the scheduler's externally visible counters (spec.md §4.D).
type Stats struct {
	Queued             int     `json:"queued"`
	Processing         int     `json:"processing"`
	AvgProcessingTime  float64 `json:"avg_processing_time"`
	RecentAbandonments int     `json:"recent_abandonments"`
	QueueSize          int     `json:"queue_size"`
}

// CircuitBreakerConfig configures the optional side-channel health
// breaker described in SPEC_FULL.md §4.D.
type CircuitBreakerConfig struct {
	Metric     string // "errors" | "error_rate" | "failures"
	Operator   string // ">" | ">=" | "<" | "<="
	Threshold  float64
	IsPercent  bool
	MinSamples int64
}
