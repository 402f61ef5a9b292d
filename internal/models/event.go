package models

import "time"

// Attendee is one participant descriptor attached to a calendar event.
type Attendee struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Event represents a calendar event as fetched from a source.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID             string     // Stable identifier assigned by the source calendar
	Title          string     // Summary or title of the event
	Description    string     // Detailed description of the event
	StartTime      time.Time  // Start time of the event
	EndTime        time.Time  // End time of the event
	Timezone       string     // IANA time zone of the event window
	Location       string     // Location of the event
	Organizer      *Attendee  // Organizer, when the source reports one
	Attendees      []Attendee // Attendee descriptors
	Updated        time.Time  // Last-modified timestamp from the source
	SourceCalendar string     // Identifier of the source calendar collection
}

// AttendeeNames returns the non-empty display names of the event's attendees.
func (e *Event) AttendeeNames() []string {
	var names []string
	for _, a := range e.Attendees {
		if a.DisplayName != "" {
			names = append(names, a.DisplayName)
		}
	}
	return names
}
