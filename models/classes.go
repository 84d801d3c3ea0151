package models

import "github.com/pkg/errors"

// ErrUnknownLabelSet is returned for label set names that are not registered.
var ErrUnknownLabelSet = errors.New("unknown label set")

// LabelSetName identifies a registered label set.
type LabelSetName string

const (
	// LabelSetEyes labels the two eyes of a face crop.
	LabelSetEyes LabelSetName = "eyes"
	// LabelSetOrgan labels a single organ class in volume slices.
	LabelSetOrgan LabelSetName = "organ"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a name to its full list of labels.
type OutputClassSet struct {
	Name    LabelSetName
	Classes []OutputClass
}

// Labels returns the class names ordered by index.
func (s OutputClassSet) Labels() []string {
	out := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		out[i] = c.Name
	}
	return out
}

// EyeClasses labels the two eyes.
var EyeClasses = OutputClassSet{
	Name: LabelSetEyes,
	Classes: []OutputClass{
		{0, "eye1"},
		{1, "eye2"},
	},
}

// OrganClasses is a single-class set for volumetric detectors.
var OrganClasses = OutputClassSet{
	Name: LabelSetOrgan,
	Classes: []OutputClass{
		{0, "organ"},
	},
}

// AllClassSets collects every OutputClassSet in one place.
var AllClassSets = []OutputClassSet{
	EyeClasses,
	OrganClasses,
}

// LookupLabels returns the labels of the set named name.
func LookupLabels(name LabelSetName) ([]string, error) {
	for _, set := range AllClassSets {
		if set.Name == name {
			return set.Labels(), nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownLabelSet, "%q", name)
}
