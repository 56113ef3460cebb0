package ir

// EventSpec is the textual form of an Event, as written in YAML input
// files. Entities are given by value only.
type EventSpec struct {
	Timestamp      int64         `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	Interpretation string        `yaml:"interpretation,omitempty" json:"interpretation,omitempty"`
	Manifestation  string        `yaml:"manifestation,omitempty" json:"manifestation,omitempty"`
	Actor          string        `yaml:"actor,omitempty" json:"actor,omitempty"`
	Origin         string        `yaml:"origin,omitempty" json:"origin,omitempty"`
	Payload        string        `yaml:"payload,omitempty" json:"payload,omitempty"`
	Subjects       []SubjectSpec `yaml:"subjects" json:"subjects"`
}

// SubjectSpec is the textual form of a Subject.
type SubjectSpec struct {
	URI            string `yaml:"uri" json:"uri"`
	Interpretation string `yaml:"interpretation,omitempty" json:"interpretation,omitempty"`
	Manifestation  string `yaml:"manifestation,omitempty" json:"manifestation,omitempty"`
	Mimetype       string `yaml:"mimetype,omitempty" json:"mimetype,omitempty"`
	Origin         string `yaml:"origin,omitempty" json:"origin,omitempty"`
	Text           string `yaml:"text,omitempty" json:"text,omitempty"`
	Storage        string `yaml:"storage,omitempty" json:"storage,omitempty"`
}

// Event converts s into an Event ready for insertion.
func (s EventSpec) Event() *Event {
	ev := &Event{
		Timestamp:      s.Timestamp,
		Interpretation: E(s.Interpretation),
		Manifestation:  E(s.Manifestation),
		Actor:          E(s.Actor),
		Origin:         E(s.Origin),
		Subjects:       make([]Subject, len(s.Subjects)),
	}
	if s.Payload != "" {
		ev.Payload = []byte(s.Payload)
	}
	for i, ss := range s.Subjects {
		ev.Subjects[i] = Subject{
			URI:            E(ss.URI),
			Interpretation: E(ss.Interpretation),
			Manifestation:  E(ss.Manifestation),
			Mimetype:       E(ss.Mimetype),
			Origin:         E(ss.Origin),
			Text:           E(ss.Text),
			Storage:        E(ss.Storage),
		}
	}
	return ev
}

// Events converts every spec.
func Events(specs []EventSpec) []*Event {
	out := make([]*Event, len(specs))
	for i, s := range specs {
		out[i] = s.Event()
	}
	return out
}
