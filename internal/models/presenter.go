package models

// Presenter is a speaker or moderator profile
type Presenter struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	Title           string `json:"title,omitempty"`
	Org             string `json:"org,omitempty"`
	Photo           string `json:"photo,omitempty"`
	BioHTML         string `json:"bioHtml,omitempty"`
	SessionsSpeaker []int  `json:"sessionsSpeaker,omitempty"`
}

// PresenterSessions lists the events a presenter speaks at or moderates
type PresenterSessions struct {
	Speaking   []Event `json:"speaking"`
	Moderating []Event `json:"moderating"`
}
