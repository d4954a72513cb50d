// Package warehouse holds cold-room master data. Capacity is declared in
// jute-bag-equivalent units and serves as the utilization denominator.
package warehouse

import (
	"errors"
	"strings"
	"time"
)

// Warehouse represents one cold room.
type Warehouse struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	BagCapacity float64   `json:"bag_capacity"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func validate(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return errors.New("warehouse code is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("warehouse name is required")
	}
	if w.BagCapacity < 0 {
		return errors.New("bag capacity must not be negative")
	}
	return nil
}
