package models

import "context"

// CellTx is the set of writes an allocation cell performs inside one transaction
type CellTx interface {
	// LoadCell reads, and on PostgreSQL locks, the Assignment of a cell with its volunteers.
	// A zero AssignmentID means the cell has no Assignment yet.
	LoadCell(ctx context.Context, ref CellRef) (CellState, error)

	// CreateAssignment inserts the Assignment row of a cell
	CreateAssignment(ctx context.Context, ref CellRef) (uint, error)

	// AttachVolunteer links a volunteer to an Assignment. It reports false when
	// the link already exists.
	AttachVolunteer(ctx context.Context, tenantID, assignmentID, volunteerID uint) (bool, error)

	// MarkAssigned records the volunteer's last assigned date
	MarkAssigned(ctx context.Context, tenantID, volunteerID uint, date string) error
}
