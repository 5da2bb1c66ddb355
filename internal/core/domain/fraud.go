package domain

import "time"

// FraudFlag marks a user for review by the fraud module.
type FraudFlag struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
