package models

import "errors"

// Sex values stored on volunteers
const (
	SexMale   = "M"
	SexFemale = "F"
)

// DateLayout is the storage and wire format of every calendar date
const DateLayout = "2006-01-02"

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrStationNotFound    = errors.New("station not found")
	ErrSlotNotFound       = errors.New("time slot not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
)

// Filter scopes reads and deletes of the store. A nil TenantID means every
// tenant and is only honoured by read-only reports.
type Filter struct {
	TenantID  *uint
	StationID *uint
	SlotID    *uint
	Start     string
	End       string
}

// Slot is an active time slot with its effective capacity
type Slot struct {
	ID            uint   `json:"id"`
	StationID     uint   `json:"station_id"`
	Start         string `json:"start"`
	End           string `json:"end"`
	MaxVolunteers int    `json:"max_volunteers"`
}

// StationSlots is an active station joined with its active slots
type StationSlots struct {
	ID       uint   `json:"id"`
	TenantID uint   `json:"tenant_id"`
	Name     string `json:"name"`
	Weekdays []int  `json:"weekdays"`
	Slots    []Slot `json:"slots"`
}

// OperatesOn reports whether the station works on the ISO weekday (1=Monday..7=Sunday).
// An empty mask means every day.
func (s StationSlots) OperatesOn(weekday int) bool {
	if len(s.Weekdays) == 0 {
		return true
	}
	for _, d := range s.Weekdays {
		if d == weekday {
			return true
		}
	}
	return false
}

// CellKey identifies one (date, slot) cell of the allocation grid
type CellKey struct {
	Date   string
	SlotID uint
}

// Candidate is a volunteer available for a cell, annotated for ranking
type Candidate struct {
	VolunteerID         uint    `json:"volunteer_id"`
	Name                string  `json:"name"`
	Sex                 string  `json:"sex"`
	AssignmentsInWindow int     `json:"assignments_in_window"`
	LastAssignedDate    *string `json:"last_assigned_date"`
}

// IsMale reports whether the candidate counts towards the gender balance pick
func (c Candidate) IsMale() bool {
	return c.Sex == SexMale
}

// AvailabilityIndex maps each cell to the volunteers who declared themselves available
type AvailabilityIndex map[CellKey][]Candidate

// CellRef addresses an Assignment row
type CellRef struct {
	TenantID  uint
	StationID uint
	SlotID    uint
	Date      string
}

// CellState is the current content of a cell, read under lock
type CellState struct {
	AssignmentID uint
	VolunteerIDs []uint
}
