package model

import "time"

type Business struct {
	ID        string
	Name      string
	Timezone  string
	IsActive  bool
	CreatedAt time.Time
}

type Service struct {
	ID           string
	BusinessID   string
	Name         string
	DurationMins int
	Price        Money
	Description  string
	IsActive     bool
	CreatedAt    time.Time
}

type Calendar struct {
	ID         string
	BusinessID string
	LocationID string
	Name       string
	IsActive   bool
	CreatedAt  time.Time
}

type Staff struct {
	ID         string
	BusinessID string
	LocationID string
	Name       string
	IsActive   bool
	CreatedAt  time.Time
}
