package entity

import "time"

// CrewMember is a worker from the company roster that can be allocated to
// work orders. The roster itself is owned elsewhere in the system; the engine
// only reads it.
type CrewMember struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
