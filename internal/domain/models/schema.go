package models

// FeatureSchema is the canonical, ordered list of feature names. Trained
// models bind to it by position or by name, so any change to the list changes
// Version.
type FeatureSchema struct {
	Version string
	names   []string
	index   map[string]int
}

// NewFeatureSchema builds a schema from an ordered name list.
func NewFeatureSchema(version string, names []string) *FeatureSchema {
	s := &FeatureSchema{
		Version: version,
		names:   append([]string(nil), names...),
		index:   make(map[string]int, len(names)),
	}
	for i, n := range s.names {
		s.index[n] = i
	}
	return s
}

// Names returns a copy of the ordered feature names.
func (s *FeatureSchema) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of features.
func (s *FeatureSchema) Len() int { return len(s.names) }

// Index returns the position of name.
func (s *FeatureSchema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Select maps the given names to positions, failing on the first unknown one.
func (s *FeatureSchema) Select(names ...string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, n := range names {
		i, ok := s.index[n]
		if !ok {
			return nil, &UnknownFeatureError{Name: n}
		}
		out = append(out, i)
	}
	return out, nil
}

// UnknownFeatureError is returned when a name is not part of a schema.
type UnknownFeatureError struct {
	Name string
}

func (e *UnknownFeatureError) Error() string { return "unknown feature: " + e.Name }
