package employee

import "context"

type EmployeeRepository interface {
	GetByID(ctx context.Context, id string) (Employee, error)
	// ListActiveIDs returns the ids of active employees ordered by employee code.
	ListActiveIDs(ctx context.Context) ([]string, error)
}
