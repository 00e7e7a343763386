package editor

// ProgressRange is the slice of an overall 0..1 indicator that collaborator
// progress is mapped onto. The editor reports Start itself once the input is
// ready and End once the result is decoded and checked.
type ProgressRange struct {
	Start float64
	End   float64
}

// DefaultProgressRange reserves 0-30% for preparation and 90-100% for
// post-processing.
var DefaultProgressRange = ProgressRange{Start: 0.30, End: 0.90}

// Map converts a collaborator fraction into the overall indicator.
func (r ProgressRange) Map(fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return r.Start + (r.End-r.Start)*fraction
}
