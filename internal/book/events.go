package book

import (
	"time"

	"github.com/google/uuid"
)

// EventType constants for the Book aggregate stream.
const (
	EventCreated EventType = "BookCreated"
	EventUpdated EventType = "BookUpdated"
	EventDeleted EventType = "BookDeleted"
)

// EventType is the wire eventType string tagging a Book event.
type EventType = string

// Created carries the full state of a newly catalogued book.
type Created struct {
	ID              uuid.UUID `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	PublicationYear int       `json:"publicationYear"`
	Publisher       string    `json:"publisher"`
	Price           float64   `json:"price"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Updated carries only the fields that actually changed, alongside the
// values they replaced.
type Updated struct {
	Previous  map[string]interface{} `json:"previous"`
	Updated   map[string]interface{} `json:"updated"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// Deleted marks the aggregate as retired from the catalog.
type Deleted struct {
	DeletedAt time.Time `json:"deletedAt"`
}
