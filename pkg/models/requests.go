package models

// RunRequest is the input of an allocation run
type RunRequest struct {
	TenantID  uint
	Start     string
	End       string
	StationID *uint
	SlotID    *uint
}

// Filter converts the request into a store filter pinned to its tenant
func (r RunRequest) Filter() Filter {
	tenantID := r.TenantID
	return Filter{
		TenantID:  &tenantID,
		StationID: r.StationID,
		SlotID:    r.SlotID,
		Start:     r.Start,
		End:       r.End,
	}
}

// ResetRequest has the same scope as an allocation run
type ResetRequest = RunRequest

// CellOutcome is the terminal state of one cell after an allocation run
type CellOutcome string

const (
	OutcomeSkippedInactiveDay CellOutcome = "skipped_inactive_day"
	OutcomeFull               CellOutcome = "full"
	OutcomeNoCandidates       CellOutcome = "no_candidates"
	OutcomeFilled             CellOutcome = "filled"
	OutcomePartiallyFilled    CellOutcome = "partially_filled"
	OutcomeFailed             CellOutcome = "failed"
)

// RunSummary is the aggregate result of an allocation run
type RunSummary struct {
	RunID    string              `json:"run_id"`
	Created  int                 `json:"created"`
	ToppedUp int                 `json:"topped_up"`
	Outcomes map[CellOutcome]int `json:"-"`
}

// ResetSummary is the result of a reset
type ResetSummary struct {
	RunID   string `json:"run_id"`
	Deleted int64  `json:"deleted"`
}

// CoverageStatus classifies how well a cell can be staffed
type CoverageStatus string

const (
	CoverageCritical   CoverageStatus = "critico"
	CoverageAttention  CoverageStatus = "attenzione"
	CoverageSufficient CoverageStatus = "sufficiente"
)

// CoverageCell is one row of the coverage report
type CoverageCell struct {
	Date            string         `json:"date"`
	TenantID        uint           `json:"tenant_id"`
	StationID       uint           `json:"station_id"`
	StationName     string         `json:"station_name"`
	SlotID          uint           `json:"slot_id"`
	SlotStart       string         `json:"slot_start"`
	SlotEnd         string         `json:"slot_end"`
	AvailableCount  int            `json:"available_count"`
	MaleCount       int            `json:"male_count"`
	FemaleCount     int            `json:"female_count"`
	MaxVolunteers   int            `json:"max_volunteers"`
	Status          CoverageStatus `json:"status"`
	AlreadyAssigned bool           `json:"already_assigned"`
	AssignedCount   int            `json:"assigned_count"`
}

// AssignedVolunteer is a volunteer linked to an assignment
type AssignedVolunteer struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Sex  string `json:"sex"`
}

// AssignmentView is a read model of an Assignment with its volunteers
type AssignmentView struct {
	ID            uint                `json:"id"`
	Date          string              `json:"date"`
	StationID     uint                `json:"station_id"`
	StationName   string              `json:"station_name"`
	SlotID        uint                `json:"slot_id"`
	SlotStart     string              `json:"slot_start"`
	SlotEnd       string              `json:"slot_end"`
	MaxVolunteers int                 `json:"max_volunteers"`
	Volunteers    []AssignedVolunteer `json:"volunteers"`
}
