package models

import "time"

// Trainer is a formateur available for formations.
type Trainer struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Specialty string    `db:"specialty" json:"specialty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// City is a ville hosting formations.
type City struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Track is a filiere grouping formations by discipline.
type Track struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
