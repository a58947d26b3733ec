package model

import "time"

type Company struct {
	ID        string
	Name      string
	Timezone  string
	CreatedAt time.Time
}

type Employee struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	CreatedAt time.Time
}

// AvailabilityWindow is one recurring weekly open interval for an employee.
// Weekday follows time.Weekday numbering (0=Sunday..6=Saturday); the start and
// end are minutes after midnight. An employee may hold several windows on the
// same weekday (split shifts) and slot logic treats them as a union.
type AvailabilityWindow struct {
	ID          string
	EmployeeID  string
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// Customer email is intentionally not unique at the storage layer; lookups use
// first-match semantics (oldest row wins).
type Customer struct {
	ID          string
	CompanyID   string
	ExternalRef string
	Name        string
	Email       string
	Phone       string
	CreatedAt   time.Time
}

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

type Appointment struct {
	ID           string
	CompanyID    string
	EmployeeID   string
	CustomerID   string
	StartTime    time.Time
	EndTime      time.Time
	Status       string
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
}
