package types

import "time"

// LocationRecord is a single indexed point with synthetic attributes.
type LocationRecord struct {
	// ID is unique within a run and never reused
	ID int64 `json:"id"`

	// Name is a synthetic label ("loc_<id>")
	Name string `json:"name"`

	Point GeoPoint `json:"point"`

	// Cell is the adapter's cell for Point at Res
	Cell CellID `json:"cell"`

	Res Resolution `json:"res"`

	// Category is drawn from a bounded label pool
	Category string `json:"category"`

	Value float64 `json:"value"`

	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is refreshed by the owning store on every mutation
	UpdatedAt time.Time `json:"updated_at"`
}

// CellAggregate holds per-cell statistics over the value column.
type CellAggregate struct {
	Cell               CellID  `json:"cell"`
	Count              int64   `json:"count"`
	DistinctCategories int64   `json:"distinct_categories"`
	Sum                float64 `json:"sum"`
	Avg                float64 `json:"avg"`
	Min                float64 `json:"min"`
	Max                float64 `json:"max"`
}

// TimingSample is one timed trial of one operation against one adapter.
type TimingSample struct {
	Operation   string        `json:"operation"`
	Adapter     string        `json:"adapter"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	ResultCount int           `json:"result_count"`
	Trial       int           `json:"trial"`

	// Failed marks a trial whose store call timed out; Elapsed is still recorded
	Failed bool   `json:"failed,omitempty"`
	Err    string `json:"error,omitempty"`
}
