package domain

import "time"

// Account is a company tracked by the CRM.
type Account struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Field       string    `json:"field" db:"field"` // industry
	Address     string    `json:"address" db:"address"`
	Website     string    `json:"website" db:"website"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
