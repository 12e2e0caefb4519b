package render

import (
	"github.com/go-go-golems/cpichat/pkg/segments"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type yamlSegment struct {
	Type     segments.SegmentType `yaml:"type"`
	Language string               `yaml:"language,omitempty"`
	Text     string               `yaml:"text"`
}

// SegmentsToYAML lists the segments with their type.
func SegmentsToYAML(segs []segments.Segment) ([]byte, error) {
	out := make([]yamlSegment, 0, len(segs))
	for _, s := range segs {
		ys := yamlSegment{Type: s.SegmentType(), Text: s.String()}
		if c, ok := s.(*segments.CodeSegment); ok {
			ys.Language = c.Language
		}
		out = append(out, ys)
	}

	b, err := yaml.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal segments")
	}
	return b, nil
}
