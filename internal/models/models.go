package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleProvider
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// User is the signed-in actor. Rating and Online are only set for providers.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Role     Role     `json:"type"`
	Location Location `json:"location"`
	Rating   *float64 `json:"rating,omitempty"`
	Online   *bool    `json:"is_online,omitempty"`
}

// Clone copies u including the optional provider fields.
func (u User) Clone() User {
	c := u
	if u.Rating != nil {
		rating := *u.Rating
		c.Rating = &rating
	}
	if u.Online != nil {
		online := *u.Online
		c.Online = &online
	}
	return c
}

type Request struct {
	ID                  string    `json:"id"`
	CustomerID          string    `json:"customer_id"`
	ProviderID          string    `json:"provider_id,omitempty"`
	Status              Status    `json:"status"`
	Items               []string  `json:"items"`
	SpecialInstructions string    `json:"special_instructions"`
	PickupAddress       string    `json:"pickup_address"`
	DeliveryAddress     string    `json:"delivery_address"`
	EstimatedPrice      int       `json:"estimated_price"`
	CreatedAt           time.Time `json:"created_at"`
	LastStateChange     time.Time `json:"last_state_change"`
	Customer            User      `json:"customer"`
	Provider            *User     `json:"provider,omitempty"`
}

// Clone returns a deep copy so callers never share slices or snapshots with the store.
func (r Request) Clone() Request {
	c := r
	if r.Items != nil {
		c.Items = append([]string(nil), r.Items...)
	}
	c.Customer = r.Customer.Clone()
	if r.Provider != nil {
		p := r.Provider.Clone()
		c.Provider = &p
	}
	return c
}

// Message is kept in the shared state but nothing produces or reads it yet.
type Message struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
