package model

import "github.com/rotisserie/eris"

// Job is the configuration object for one classification run. It mirrors the
// JSON job file accepted by the classify command and the serve endpoint.
type Job struct {
	TrainingData []TrainingPoint `json:"training_data"`
	STACItemURL  string          `json:"stac_item_url"`
	Collection   string          `json:"collection,omitempty"`
	OutputPath   string          `json:"output_path"`
	NumTrees     int             `json:"num_trees,omitempty"`
	// IncludeIndices defaults to true; a pointer distinguishes "unset" from
	// an explicit false.
	IncludeIndices *bool   `json:"include_indices,omitempty"`
	ROIPaddingDeg  float64 `json:"roi_padding_deg,omitempty"`
	MaxDimension   int     `json:"max_dimension,omitempty"`
}

// JobDefaults supplies configured fallbacks for optional job fields.
type JobDefaults struct {
	Collection    string
	NumTrees      int
	ROIPaddingDeg float64
	MaxDimension  int
}

// Normalize fills unset optional fields from defaults.
func (j *Job) Normalize(d JobDefaults) {
	if j.Collection == "" {
		j.Collection = d.Collection
	}
	if j.NumTrees <= 0 {
		j.NumTrees = d.NumTrees
	}
	if j.IncludeIndices == nil {
		v := true
		j.IncludeIndices = &v
	}
	if j.ROIPaddingDeg <= 0 {
		j.ROIPaddingDeg = d.ROIPaddingDeg
	}
	if j.MaxDimension <= 0 {
		j.MaxDimension = d.MaxDimension
	}
}

// Indices reports whether spectral indices are enabled for this job.
func (j *Job) Indices() bool {
	return j.IncludeIndices == nil || *j.IncludeIndices
}

// Validate checks required fields after normalization.
func (j *Job) Validate() error {
	if j.STACItemURL == "" {
		return eris.New("model: job missing stac_item_url")
	}
	if j.OutputPath == "" {
		return eris.New("model: job missing output_path")
	}
	if len(j.TrainingData) == 0 {
		return eris.New("model: job has no training_data")
	}
	for i, p := range j.TrainingData {
		if err := p.Validate(); err != nil {
			return eris.Wrapf(err, "model: training point %d", i)
		}
	}
	return nil
}
