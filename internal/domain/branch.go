package domain

import (
	"time"

	"github.com/google/uuid"
)

// Branch is read-only directory data. Timezone is an IANA name and decides
// where calendar-day and calendar-month limit windows begin.
type Branch struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Timezone  string
	CreatedAt time.Time
}

type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusInactive CustomerStatus = "inactive"
)

type Customer struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	Status    CustomerStatus
	CreatedAt time.Time
}
