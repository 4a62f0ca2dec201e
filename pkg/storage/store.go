package storage

import (
	"context"

	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// AllocationStore is an organizational lookup backed by a database
type AllocationStore interface {
	datasource.OrgTagSource

	// SaveAllocations upserts rows keyed by (day, dimension, key)
	SaveAllocations(ctx context.Context, rows []AllocationRow) error

	Ping(ctx context.Context) error
	Close() error
}

// AllocationRow is one day of cost for one organizational key
type AllocationRow struct {
	ID            string
	Day           string
	Dimension     models.Dimension
	Key           string
	CostUsd       float64
	InstanceCount *int
	CPUHours      *float64
	Priority      models.Priority
	Owner         string
	Labels        map[string]string
}
