package domain

import "time"

// Customer is the externally owned CRM contact. The pipeline reads it for
// rule evaluation and personalization but never writes it.
type Customer struct {
	ID          string     `json:"id" db:"id"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	Email       string     `json:"email" db:"email"`
	Phone       string     `json:"phone" db:"phone"`
	TotalSpend  float64    `json:"total_spend" db:"total_spend"`
	Visits      int        `json:"visits" db:"visits"`
	LastOrderAt *time.Time `json:"last_order_at" db:"last_order_at"`
	Tags        []string   `json:"tags" db:"tags"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName joins the customer's first and last name, tolerating either
// being empty.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}

// Snapshot copies the attributes personalization needs into a value type.
// CommunicationLog owns its snapshot; it is taken once at dispatch time and
// never re-derived from the live Customer.
func (c *Customer) Snapshot() CustomerSnapshot {
	snap := CustomerSnapshot{
		CustomerID: c.ID,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		Email:      c.Email,
		Phone:      c.Phone,
		TotalSpend: c.TotalSpend,
		Visits:     c.Visits,
	}
	if c.LastOrderAt != nil {
		t := *c.LastOrderAt
		snap.LastOrderAt = &t
	}
	snap.Tags = append(snap.Tags, c.Tags...)
	return snap
}

// CustomerSnapshot is the point-in-time copy of customer attributes embedded
// in a CommunicationLog so personalization survives later Customer mutation.
type CustomerSnapshot struct {
	CustomerID  string     `json:"customer_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	TotalSpend  float64    `json:"total_spend"`
	Visits      int        `json:"visits"`
	LastOrderAt *time.Time `json:"last_order_at,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// FullName mirrors Customer.FullName for the embedded snapshot.
func (s *CustomerSnapshot) FullName() string {
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	default:
		return s.LastName
	}
}

// DaysSinceLastOrder returns the whole days elapsed since the customer's
// last order relative to now, or -1 if the customer has never ordered.
func (s *CustomerSnapshot) DaysSinceLastOrder(now time.Time) int {
	if s.LastOrderAt == nil {
		return -1
	}
	return int(now.Sub(*s.LastOrderAt).Hours() / 24)
}
