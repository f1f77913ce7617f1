package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arnavshah/turni-api-go/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed store used by the allocation engine
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps an opened database handle
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for bootstrap code
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Ping checks connectivity
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// TenantByID verifies that a tenant exists
func (r *Repository) TenantByID(ctx context.Context, id uint) (uint, error) {
	var t Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&t).Error; err != nil {
		return 0, err
	}
	if t.ID == 0 {
		return 0, models.ErrTenantNotFound
	}
	return t.ID, nil
}

// TenantByCode looks a tenant up by its code
func (r *Repository) TenantByCode(ctx context.Context, code string) (uint, error) {
	var t Tenant
	if err := r.db.WithContext(ctx).Where("codice = ?", code).Limit(1).Find(&t).Error; err != nil {
		return 0, err
	}
	if t.ID == 0 {
		return 0, models.ErrTenantNotFound
	}
	return t.ID, nil
}

// withTenant restricts a query to the filter's tenant; col is the qualified column
func withTenant(f models.Filter, col string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.TenantID == nil {
			return db
		}
		return db.Where(col+" = ?", *f.TenantID)
	}
}

// assignmentScope selects the turni rows covered by a filter; prefix is "" or a table alias with a dot
func assignmentScope(f models.Filter, prefix string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Scopes(withTenant(f, prefix+"congregazione_id")).
			Where(prefix+"data_turno BETWEEN ? AND ?", f.Start, f.End)
		if f.StationID != nil {
			db = db.Where(prefix+"postazione_id = ?", *f.StationID)
		}
		if f.SlotID != nil {
			db = db.Where(prefix+"fascia_oraria_id = ?", *f.SlotID)
		}
		return db
	}
}

// Stations returns active stations joined with their active slots, ordered by
// station id then slot start time. A requested station or slot that is inactive,
// missing or owned by another tenant is reported as not found.
func (r *Repository) Stations(ctx context.Context, f models.Filter) ([]models.StationSlots, error) {
	db := r.db.WithContext(ctx)

	q := db.Where("attiva = ?", true).Scopes(withTenant(f, "congregazione_id"))
	if f.StationID != nil {
		q = q.Where("id = ?", *f.StationID)
	}
	var stations []Station
	if err := q.Order("id").Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	if f.StationID != nil && len(stations) == 0 {
		return nil, models.ErrStationNotFound
	}
	if len(stations) == 0 {
		if f.SlotID != nil {
			return nil, models.ErrSlotNotFound
		}
		return nil, nil
	}

	ids := make([]uint, len(stations))
	for i, s := range stations {
		ids[i] = s.ID
	}

	sq := db.Where("postazione_id IN ? AND attiva = ?", ids, true).Scopes(withTenant(f, "congregazione_id"))
	if f.SlotID != nil {
		sq = sq.Where("id = ?", *f.SlotID)
	}
	var slots []TimeSlot
	if err := sq.Order("ora_inizio, id").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("load time slots: %w", err)
	}
	if f.SlotID != nil && len(slots) == 0 {
		return nil, models.ErrSlotNotFound
	}

	out := make([]models.StationSlots, 0, len(stations))
	byID := make(map[uint]int, len(stations))
	for _, s := range stations {
		days, err := s.WeekdayList()
		if err != nil {
			return nil, err
		}
		byID[s.ID] = len(out)
		out = append(out, models.StationSlots{ID: s.ID, TenantID: s.TenantID, Name: s.Name, Weekdays: days})
	}
	for _, sl := range slots {
		i, ok := byID[sl.StationID]
		if !ok || out[i].TenantID != sl.TenantID {
			continue
		}
		capacity := sl.MaxVolunteers
		if capacity <= 0 {
			capacity = stations[i].MaxVolunteers
		}
		out[i].Slots = append(out[i].Slots, models.Slot{
			ID:            sl.ID,
			StationID:     sl.StationID,
			Start:         sl.Start,
			End:           sl.End,
			MaxVolunteers: capacity,
		})
	}

	if f.SlotID != nil {
		kept := out[:0]
		for _, s := range out {
			if len(s.Slots) > 0 {
				kept = append(kept, s)
			}
		}
		out = kept
	}
	return out, nil
}

// Availability indexes the "disponibile" declarations of active, non-privileged
// volunteers by (date, slot). Volunteers are ordered by id within a cell.
func (r *Repository) Availability(ctx context.Context, f models.Filter, slotIDs []uint) (models.AvailabilityIndex, error) {
	idx := models.AvailabilityIndex{}
	if len(slotIDs) == 0 {
		return idx, nil
	}

	var rows []struct {
		Data               string
		FasciaOrariaID     uint
		VolontarioID       uint
		Nome               string
		Cognome            string
		Sesso              string
		UltimaAssegnazione *string
	}
	err := r.db.WithContext(ctx).
		Table("disponibilita AS d").
		Select("d.data, d.fascia_oraria_id, v.id AS volontario_id, v.nome, v.cognome, v.sesso, v.ultima_assegnazione").
		Joins("JOIN volontari v ON v.id = d.volontario_id AND v.congregazione_id = d.congregazione_id").
		Scopes(withTenant(f, "d.congregazione_id")).
		Where("d.stato = ?", AvailabilityAvailable).
		Where("v.stato = ? AND v.ruolo <> ?", VolunteerActive, RoleSuperAdmin).
		Where("d.data BETWEEN ? AND ?", f.Start, f.End).
		Where("d.fascia_oraria_id IN ?", slotIDs).
		Order("d.data, d.fascia_oraria_id, v.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	for _, row := range rows {
		key := models.CellKey{Date: row.Data, SlotID: row.FasciaOrariaID}
		idx[key] = append(idx[key], models.Candidate{
			VolunteerID:      row.VolontarioID,
			Name:             strings.TrimSpace(row.Nome + " " + row.Cognome),
			Sex:              row.Sesso,
			LastAssignedDate: row.UltimaAssegnazione,
		})
	}
	return idx, nil
}

// WindowCounts counts, per volunteer, the assigned shifts of the tenant dated within the filter range
func (r *Repository) WindowCounts(ctx context.Context, f models.Filter) (map[uint]int, error) {
	var rows []struct {
		VolontarioID uint
		N            int
	}
	err := r.db.WithContext(ctx).
		Table("turni_volontari AS tv").
		Select("tv.volontario_id, COUNT(*) AS n").
		Joins("JOIN turni t ON t.id = tv.turno_id AND t.congregazione_id = tv.congregazione_id").
		Scopes(withTenant(f, "tv.congregazione_id")).
		Where("t.stato = ?", AssignmentAssigned).
		Where("t.data_turno BETWEEN ? AND ?", f.Start, f.End).
		Group("tv.volontario_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count assignments in window: %w", err)
	}

	out := make(map[uint]int, len(rows))
	for _, row := range rows {
		out[row.VolontarioID] = row.N
	}
	return out, nil
}

// AssignedCounts returns, for every existing Assignment in range, its number of volunteers
func (r *Repository) AssignedCounts(ctx context.Context, f models.Filter) (map[models.CellKey]int, error) {
	var rows []struct {
		DataTurno      string
		FasciaOrariaID uint
		N              int
	}
	err := r.db.WithContext(ctx).
		Table("turni AS t").
		Select("t.data_turno, t.fascia_oraria_id, COUNT(tv.id) AS n").
		Joins("LEFT JOIN turni_volontari tv ON tv.turno_id = t.id AND tv.congregazione_id = t.congregazione_id").
		Scopes(assignmentScope(f, "t.")).
		Group("t.data_turno, t.fascia_oraria_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count assigned volunteers: %w", err)
	}

	out := make(map[models.CellKey]int, len(rows))
	for _, row := range rows {
		out[models.CellKey{Date: row.DataTurno, SlotID: row.FasciaOrariaID}] = row.N
	}
	return out, nil
}

// DeleteAssignments removes the volunteer links and then the Assignment rows
// matched by the filter, in one transaction. The tenant is mandatory.
func (r *Repository) DeleteAssignments(ctx context.Context, f models.Filter) (int64, error) {
	if f.TenantID == nil {
		return 0, errors.New("delete assignments: tenant is required")
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&Assignment{}).Select("id").Scopes(assignmentScope(f, ""))
		if err := tx.Where("congregazione_id = ? AND turno_id IN (?)", *f.TenantID, ids).
			Delete(&AssignmentVolunteer{}).Error; err != nil {
			return fmt.Errorf("delete assignment links: %w", err)
		}

		res := tx.Scopes(assignmentScope(f, "")).Delete(&Assignment{})
		if res.Error != nil {
			return fmt.Errorf("delete assignments: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

// RemoveVolunteer unlinks one volunteer from an Assignment and deletes the
// Assignment once it has no volunteers left
func (r *Repository) RemoveVolunteer(ctx context.Context, tenantID, assignmentID, volunteerID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a Assignment
		if err := lockForUpdate(tx).
			Where("id = ? AND congregazione_id = ?", assignmentID, tenantID).
			Limit(1).Find(&a).Error; err != nil {
			return err
		}
		if a.ID == 0 {
			return models.ErrAssignmentNotFound
		}

		res := tx.Where("turno_id = ? AND volontario_id = ? AND congregazione_id = ?", a.ID, volunteerID, tenantID).
			Delete(&AssignmentVolunteer{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAssignmentNotFound
		}

		var left int64
		if err := tx.Model(&AssignmentVolunteer{}).Where("turno_id = ?", a.ID).Count(&left).Error; err != nil {
			return err
		}
		if left == 0 {
			return tx.Where("id = ? AND congregazione_id = ?", a.ID, tenantID).Delete(&Assignment{}).Error
		}
		return nil
	})
}

// Assignments lists the Assignment rows in range with their volunteers
func (r *Repository) Assignments(ctx context.Context, f models.Filter) ([]models.AssignmentView, error) {
	db := r.db.WithContext(ctx)

	var rows []struct {
		ID             uint
		DataTurno      string
		PostazioneID   uint
		StationName    string
		FasciaOrariaID uint
		OraInizio      string
		OraFine        string
		SlotMax        int
		StationMax     int
	}
	err := db.Table("turni AS t").
		Select("t.id, t.data_turno, t.postazione_id, p.nome AS station_name, t.fascia_oraria_id, " +
			"f.ora_inizio, f.ora_fine, f.max_volontari AS slot_max, p.max_volontari AS station_max").
		Joins("JOIN postazioni p ON p.id = t.postazione_id").
		Joins("JOIN fasce_orarie f ON f.id = t.fascia_oraria_id").
		Scopes(assignmentScope(f, "t.")).
		Order("t.data_turno, t.postazione_id, f.ora_inizio, t.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]models.AssignmentView, len(rows))
	pos := make(map[uint]int, len(rows))
	ids := make([]uint, len(rows))
	for i, row := range rows {
		capacity := row.SlotMax
		if capacity <= 0 {
			capacity = row.StationMax
		}
		out[i] = models.AssignmentView{
			ID:            row.ID,
			Date:          row.DataTurno,
			StationID:     row.PostazioneID,
			StationName:   row.StationName,
			SlotID:        row.FasciaOrariaID,
			SlotStart:     row.OraInizio,
			SlotEnd:       row.OraFine,
			MaxVolunteers: capacity,
			Volunteers:    []models.AssignedVolunteer{},
		}
		pos[row.ID] = i
		ids[i] = row.ID
	}

	var links []struct {
		TurnoID uint
		ID      uint
		Nome    string
		Cognome string
		Sesso   string
	}
	err = db.Table("turni_volontari AS tv").
		Select("tv.turno_id, v.id, v.nome, v.cognome, v.sesso").
		Joins("JOIN volontari v ON v.id = tv.volontario_id AND v.congregazione_id = tv.congregazione_id").
		Where("tv.turno_id IN ?", ids).
		Order("tv.turno_id, v.id").
		Scan(&links).Error
	if err != nil {
		return nil, fmt.Errorf("list assignment volunteers: %w", err)
	}
	for _, l := range links {
		i := pos[l.TurnoID]
		out[i].Volunteers = append(out[i].Volunteers, models.AssignedVolunteer{
			ID:   l.ID,
			Name: strings.TrimSpace(l.Nome + " " + l.Cognome),
			Sex:  l.Sesso,
		})
	}
	return out, nil
}

// InCellTx runs fn inside one database transaction
func (r *Repository) InCellTx(ctx context.Context, fn func(tx models.CellTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&cellTx{db: tx})
	})
}

// lockForUpdate adds FOR UPDATE on dialects that support row locks
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
