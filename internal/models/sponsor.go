package models

// Sponsor is a sponsoring organization resolved from its own post type
type Sponsor struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl,omitempty"`
	Website string `json:"website,omitempty"`
}

// SponsorGroup is a sponsorship level with the sponsors it lists
type SponsorGroup struct {
	Slug     string    `json:"slug"`
	Label    string    `json:"label"`
	Sponsors []Sponsor `json:"sponsors"`
}
