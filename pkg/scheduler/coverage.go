package scheduler

import (
	"context"

	"github.com/arnavshah/turni-api-go/pkg/models"
)

// Classify rates a cell from its available volunteers and capacity
func Classify(available, male, maxVolunteers int) models.CoverageStatus {
	switch {
	case available < maxVolunteers:
		return models.CoverageCritical
	case male == 0:
		return models.CoverageAttention
	default:
		return models.CoverageSufficient
	}
}

// Coverage reports every (date, slot) cell of the range whose station operates
// on that weekday. A nil tenant reports across all tenants.
func (e *Engine) Coverage(ctx context.Context, tenantID *uint, start, end string) ([]models.CoverageCell, error) {
	days, err := checkReport(start, end)
	if err != nil {
		return nil, err
	}

	f := models.Filter{TenantID: tenantID, Start: start, End: end}
	stations, err := e.store.Stations(ctx, f)
	if err != nil {
		return nil, err
	}
	idx, err := e.store.Availability(ctx, f, slotIDs(stations))
	if err != nil {
		return nil, err
	}
	assigned, err := e.store.AssignedCounts(ctx, f)
	if err != nil {
		return nil, err
	}

	cells := []models.CoverageCell{}
	for _, day := range days {
		date := day.Format(models.DateLayout)
		weekday := ISOWeekday(day)
		for _, st := range stations {
			if !st.OperatesOn(weekday) {
				continue
			}
			for _, sl := range st.Slots {
				key := models.CellKey{Date: date, SlotID: sl.ID}
				cell := models.CoverageCell{
					Date:          date,
					TenantID:      st.TenantID,
					StationID:     st.ID,
					StationName:   st.Name,
					SlotID:        sl.ID,
					SlotStart:     sl.Start,
					SlotEnd:       sl.End,
					MaxVolunteers: sl.MaxVolunteers,
				}
				for _, c := range idx[key] {
					cell.AvailableCount++
					switch c.Sex {
					case models.SexMale:
						cell.MaleCount++
					case models.SexFemale:
						cell.FemaleCount++
					}
				}
				cell.Status = Classify(cell.AvailableCount, cell.MaleCount, cell.MaxVolunteers)
				cell.AssignedCount, cell.AlreadyAssigned = assigned[key]
				cells = append(cells, cell)
			}
		}
	}
	return cells, nil
}

func slotIDs(stations []models.StationSlots) []uint {
	var ids []uint
	for _, st := range stations {
		for _, sl := range st.Slots {
			ids = append(ids, sl.ID)
		}
	}
	return ids
}
