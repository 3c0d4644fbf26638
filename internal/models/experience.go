package models

import "time"

const (
	// DefaultDurationHours is used when a package does not declare a positive duration.
	DefaultDurationHours = 2
	// MaxDurationHours bounds the length of an experience to one year.
	MaxDurationHours = 24 * 365
)

// ExperiencePackage is a catalog entry the user can schedule.
type ExperiencePackage struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	Description     string   `yaml:"description"`
	ImageURL        string   `yaml:"image"`
	MeetingPoint    string   `yaml:"meetingPoint"`
	DurationHours   int      `yaml:"durationHours"`
	Recommendations []string `yaml:"recommendations"`
}

// Duration returns the experience length, falling back to DefaultDurationHours
// when DurationHours is zero or negative. Longer values are capped at MaxDurationHours.
func (p ExperiencePackage) Duration() time.Duration {
	hours := p.DurationHours
	switch {
	case hours <= 0:
		hours = DefaultDurationHours
	case hours > MaxDurationHours:
		hours = MaxDurationHours
	}
	return time.Duration(hours) * time.Hour
}

// ScheduleOption is a candidate start time offered to the user.
type ScheduleOption struct {
	ID        string
	Label     string
	StartDate time.Time
}
