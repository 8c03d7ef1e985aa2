package models

// Exercise represents a catalog exercise that a workout module can reference
type Exercise struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category" yaml:"category"`
	DurationSec int    `json:"duration" yaml:"duration"` // default duration in seconds
	Thumbnail   string `json:"thumbnail" yaml:"thumbnail"`
	VideoURL    string `json:"video_url,omitempty" yaml:"video_url,omitempty"`
}
