package model

import "fmt"

// Options configures a Classifier. The classifier copies the options at
// construction, so later changes to the caller's value have no effect.
type Options struct {
	// EnableAccelerator runs the model on the engine's accelerator path.
	EnableAccelerator bool `yaml:"enable_accelerator" json:"enable_accelerator"`

	// LabelAllowList keeps only the listed labels. A nil list disables the
	// filter; a non-nil empty list keeps nothing.
	LabelAllowList []string `yaml:"label_allow_list" json:"label_allow_list"`

	// LabelDenyList drops the listed labels. Nil or empty disables the filter.
	LabelDenyList []string `yaml:"label_deny_list" json:"label_deny_list"`

	// MaxResults truncates the ranked list. Zero or negative means unlimited.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// NumThreads is passed to the engine. Zero means 1.
	NumThreads int `yaml:"num_threads" json:"num_threads"`

	// ScoreThreshold drops categories scoring below it. Zero disables the
	// filter.
	ScoreThreshold float32 `yaml:"score_threshold" json:"score_threshold"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxResults: 3,
		NumThreads: 1,
	}
}

func (o Options) validate() (Options, error) {
	if o.NumThreads == 0 {
		o.NumThreads = 1
	}
	if o.NumThreads < 0 {
		return o, fmt.Errorf("%w: num_threads must be at least 1, got %d", ErrInvalidInput, o.NumThreads)
	}
	return o, nil
}

// labelSet is an immutable membership set. A nil set means "not configured".
type labelSet map[string]struct{}

func newLabelSet(labels []string) labelSet {
	if labels == nil {
		return nil
	}
	s := make(labelSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

func (s labelSet) has(label string) bool {
	_, ok := s[label]
	return ok
}
