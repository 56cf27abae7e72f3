package waicolle

import "time"

// Event is a window of time with boosted drops.
type Event struct {
	Name   string
	Start  time.Time
	End    time.Time
	Factor float64
}

// Multiplier computes the drop rate multiplier at a given time.
type Multiplier struct {
	// Weekend is the factor applied on Saturday and Sunday. Zero means 1.
	Weekend float64
	// Events are boost windows. Overlapping events multiply.
	Events []Event
	// Location is the time zone for weekends. Nil means UTC.
	Location *time.Location
}

// At returns the multiplier at t.
func (m *Multiplier) At(t time.Time) float64 {
	r := 1.0
	loc := m.Location
	if loc == nil {
		loc = time.UTC
	}
	switch t.In(loc).Weekday() {
	case time.Saturday, time.Sunday:
		if m.Weekend > 0 {
			r *= m.Weekend
		}
	}
	for _, e := range m.Events {
		if !t.Before(e.Start) && t.Before(e.End) {
			r *= e.Factor
		}
	}
	return r
}

// Active returns the events active at t.
func (m *Multiplier) Active(t time.Time) []Event {
	var r []Event
	for _, e := range m.Events {
		if !t.Before(e.Start) && t.Before(e.End) {
			r = append(r, e)
		}
	}
	return r
}
