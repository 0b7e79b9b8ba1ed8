package product

import "time"

type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// We store price as a string to avoid rounding errors (NUMERIC in Postgres)
	Price     string    `json:"price"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
