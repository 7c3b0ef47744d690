package faults

import (
	"context"
)

// Repository defines persistence for analysis faults
type Repository interface {
	Save(ctx context.Context, f *Fault) error
	Latest(ctx context.Context, owner string, limit int) ([]*Fault, error)
}
