// Package model defines the data types shared across the classification pipeline.
package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// TrainingPoint is a labeled geographic location used to train the classifier.
// Points are consumed as-is and never mutated.
type TrainingPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Label     int     `json:"label"`
	ClassName string  `json:"class_name,omitempty"`
}

// Name returns the class name, synthesizing "class_<label>" when unset.
func (p TrainingPoint) Name() string {
	if p.ClassName != "" {
		return p.ClassName
	}
	return fmt.Sprintf("class_%d", p.Label)
}

// Validate checks that the point carries usable coordinates and a label.
func (p TrainingPoint) Validate() error {
	if p.Label < 1 || p.Label > 255 {
		return eris.Errorf("model: point label must be in 1..255, got %d", p.Label)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("model: latitude out of range: %f", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Errorf("model: longitude out of range: %f", p.Lon)
	}
	return nil
}

// ClassNames builds the label-to-name mapping from a set of training points.
// The first point seen for a label wins.
func ClassNames(points []TrainingPoint) map[int]string {
	names := make(map[int]string)
	for _, p := range points {
		if _, ok := names[p.Label]; !ok {
			names[p.Label] = p.Name()
		}
	}
	return names
}
