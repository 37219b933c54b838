package model

// Result summarizes a completed classification run. Field names follow the
// output contract consumed by downstream tooling.
type Result struct {
	Success          bool              `json:"success"`
	OutputPath       string            `json:"output_path"`
	Width            int               `json:"width"`
	Height           int               `json:"height"`
	TrainingAccuracy float64           `json:"training_accuracy"`
	TrainingSamples  int               `json:"training_samples"`
	ClassesInOutput  []int             `json:"classes_in_output"`
	ClassesSampled   []int             `json:"classes_sampled"`
	ClassNames       map[string]string `json:"class_names"`
	CRS              string            `json:"crs"`
	// Bounds is [left, bottom, right, top] in the output raster's native CRS.
	Bounds [4]float64 `json:"bounds"`
}

// ErrorRecord is the failure payload written to stdout when a run fails.
type ErrorRecord struct {
	Error     string `json:"error"`
	Traceback string `json:"traceback"`
}
