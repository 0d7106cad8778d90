package dto

// StepResponse reports one host-driven tick.
type StepResponse struct {
	TimeStep float64 `json:"time_step"`
	SimTime  float64 `json:"sim_time"` // level clock after the tick
}
