package models

import "time"

// Calendar is a titled list of events, exported as an iCal feed
type Calendar struct {
	Name        string
	Description string
	// Generated stamps every entry; the zero value means now.
	Generated time.Time
	Events    []Event
}

// DayGroup is one day's worth of a filtered schedule
type DayGroup struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Events []Event `json:"events"`
}
