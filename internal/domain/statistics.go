package domain

// WorkflowStatistics is the aggregate projection over all workflows.
type WorkflowStatistics struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByType            map[string]int64 `json:"by_type"`
	SuccessRate       float64          `json:"success_rate"`
	MeanDurationSecs  float64          `json:"mean_duration_seconds"`
	CompensationCount int64            `json:"compensation_count"`
}
