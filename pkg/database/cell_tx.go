package database

import (
	"context"
	"fmt"

	"github.com/arnavshah/turni-api-go/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cellTx implements models.CellTx on an open transaction
type cellTx struct {
	db *gorm.DB
}

func (c *cellTx) LoadCell(ctx context.Context, ref models.CellRef) (models.CellState, error) {
	var a Assignment
	err := lockForUpdate(c.db.WithContext(ctx)).
		Where("congregazione_id = ? AND postazione_id = ? AND fascia_oraria_id = ? AND data_turno = ?",
			ref.TenantID, ref.StationID, ref.SlotID, ref.Date).
		Limit(1).Find(&a).Error
	if err != nil {
		return models.CellState{}, fmt.Errorf("load assignment: %w", err)
	}
	if a.ID == 0 {
		return models.CellState{}, nil
	}

	var ids []uint
	if err := c.db.WithContext(ctx).Model(&AssignmentVolunteer{}).
		Where("turno_id = ? AND congregazione_id = ?", a.ID, ref.TenantID).
		Order("volontario_id").
		Pluck("volontario_id", &ids).Error; err != nil {
		return models.CellState{}, fmt.Errorf("load assignment volunteers: %w", err)
	}
	return models.CellState{AssignmentID: a.ID, VolunteerIDs: ids}, nil
}

func (c *cellTx) CreateAssignment(ctx context.Context, ref models.CellRef) (uint, error) {
	a := Assignment{
		TenantID:  ref.TenantID,
		StationID: ref.StationID,
		SlotID:    ref.SlotID,
		Date:      ref.Date,
		Status:    AssignmentAssigned,
	}
	if err := c.db.WithContext(ctx).Create(&a).Error; err != nil {
		return 0, fmt.Errorf("create assignment: %w", err)
	}
	return a.ID, nil
}

func (c *cellTx) AttachVolunteer(ctx context.Context, tenantID, assignmentID, volunteerID uint) (bool, error) {
	link := AssignmentVolunteer{
		TenantID:     tenantID,
		AssignmentID: assignmentID,
		VolunteerID:  volunteerID,
	}
	res := c.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link)
	if res.Error != nil {
		return false, fmt.Errorf("attach volunteer %d: %w", volunteerID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (c *cellTx) MarkAssigned(ctx context.Context, tenantID, volunteerID uint, date string) error {
	err := c.db.WithContext(ctx).Model(&Volunteer{}).
		Where("id = ? AND congregazione_id = ?", volunteerID, tenantID).
		Update("ultima_assegnazione", date).Error
	if err != nil {
		return fmt.Errorf("mark volunteer %d assigned: %w", volunteerID, err)
	}
	return nil
}
