package metric

import "time"

// Point is one scalar observation of a named metric at a step within a run.
type Point struct {
	RunID     int64     `json:"run_id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Step      int64     `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// Sample is a caller-supplied observation; the timestamp is assigned on ingestion.
type Sample struct {
	Name  string
	Value float64
	Step  int64
}
