package classify

import "fmt"

// InsufficientDataError reports that too few training points survived
// sampling to fit a model.
type InsufficientDataError struct {
	Samples int
	Classes int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("classify: need at least %d sampled points across %d classes, got %d points in %d classes",
		minSamples, minClasses, e.Samples, e.Classes)
}

const (
	minSamples = 3
	minClasses = 2
)
