package scheduler

import (
	"context"

	"github.com/arnavshah/turni-api-go/pkg/models"
	"github.com/arnavshah/turni-api-go/pkg/scope"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// cellResult is what one committed cell transaction did
type cellResult struct {
	outcome models.CellOutcome
	created bool
	added   []uint
}

// Run fills open capacity in the requested range, date by date and slot by
// slot, committing each cell in its own transaction. Cells that fail are
// logged and skipped; running again over the same range retries them.
func (e *Engine) Run(ctx context.Context, req models.RunRequest) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:    uuid.NewString(),
		Outcomes: make(map[models.CellOutcome]int),
	}
	if req.TenantID == 0 {
		return summary, scope.ErrMissingTenant
	}
	days, err := checkHorizon(req.Start, req.End, e.today(), e.horizonMonths)
	if err != nil {
		return summary, err
	}

	unlock := e.lockTenant(req.TenantID)
	defer unlock()

	log := e.log.With(
		zap.String("run_id", summary.RunID),
		zap.Uint("tenant_id", req.TenantID),
		zap.String("start", req.Start),
		zap.String("end", req.End),
	)

	f := req.Filter()
	stations, err := e.store.Stations(ctx, f)
	if err != nil {
		return summary, err
	}
	idx, err := e.store.Availability(ctx, f, slotIDs(stations))
	if err != nil {
		return summary, err
	}
	counts, err := e.store.WindowCounts(ctx, f)
	if err != nil {
		return summary, err
	}
	lastAssigned := make(map[uint]string)

	log.Info("allocation run started", zap.Int("stations", len(stations)), zap.Int("days", len(days)))

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			log.Warn("allocation run interrupted", zap.Error(err))
			return summary, err
		}
		date := day.Format(models.DateLayout)
		weekday := ISOWeekday(day)

		for _, st := range stations {
			if !st.OperatesOn(weekday) {
				summary.Outcomes[models.OutcomeSkippedInactiveDay] += len(st.Slots)
				continue
			}
			for _, sl := range st.Slots {
				ref := models.CellRef{TenantID: req.TenantID, StationID: st.ID, SlotID: sl.ID, Date: date}
				cands := idx[models.CellKey{Date: date, SlotID: sl.ID}]
				if len(cands) == 0 {
					summary.Outcomes[models.OutcomeNoCandidates]++
					continue
				}
				pool := annotate(cands, counts, lastAssigned)

				res, err := e.fillCell(ctx, ref, sl.MaxVolunteers, pool)
				if err != nil {
					summary.Outcomes[models.OutcomeFailed]++
					log.Warn("allocation cell abandoned",
						zap.String("date", date),
						zap.Uint("station_id", st.ID),
						zap.Uint("slot_id", sl.ID),
						zap.Error(err))
					continue
				}

				summary.Outcomes[res.outcome]++
				if len(res.added) > 0 {
					if res.created {
						summary.Created++
					} else {
						summary.ToppedUp++
					}
				}
				for _, id := range res.added {
					counts[id]++
					lastAssigned[id] = date
				}
				log.Debug("allocation cell done",
					zap.String("date", date),
					zap.Uint("slot_id", sl.ID),
					zap.String("outcome", string(res.outcome)),
					zap.Int("added", len(res.added)))
			}
		}
	}

	log.Info("allocation run finished",
		zap.Int("created", summary.Created),
		zap.Int("topped_up", summary.ToppedUp),
		zap.Int("failed", summary.Outcomes[models.OutcomeFailed]),
		zap.Float64("fairness_score", FairnessScore(counts)))
	return summary, nil
}

// annotate copies the cell's candidates with the run's current fairness data
func annotate(cands []models.Candidate, counts map[uint]int, lastAssigned map[uint]string) []models.Candidate {
	out := make([]models.Candidate, len(cands))
	for i, c := range cands {
		c.AssignmentsInWindow = counts[c.VolunteerID]
		if d, ok := lastAssigned[c.VolunteerID]; ok {
			c.LastAssignedDate = &d
		}
		out[i] = c
	}
	return out
}

// fillCell runs the read-then-write sequence of one cell atomically
func (e *Engine) fillCell(ctx context.Context, ref models.CellRef, capacity int, pool []models.Candidate) (cellResult, error) {
	var res cellResult

	err := e.store.InCellTx(ctx, func(tx models.CellTx) error {
		res = cellResult{}

		state, err := tx.LoadCell(ctx, ref)
		if err != nil {
			return err
		}
		remaining := capacity - len(state.VolunteerIDs)
		if remaining <= 0 {
			res.outcome = models.OutcomeFull
			return nil
		}

		attached := make(map[uint]bool, len(state.VolunteerIDs))
		for _, id := range state.VolunteerIDs {
			attached[id] = true
		}
		cands := make([]models.Candidate, 0, len(pool))
		for _, c := range pool {
			if !attached[c.VolunteerID] {
				cands = append(cands, c)
			}
		}
		if len(cands) == 0 {
			res.outcome = models.OutcomeNoCandidates
			return nil
		}

		assignmentID := state.AssignmentID
		for _, c := range Rank(cands, len(cands)) {
			if len(res.added) == remaining {
				break
			}
			if assignmentID == 0 {
				id, err := tx.CreateAssignment(ctx, ref)
				if err != nil {
					return err
				}
				assignmentID = id
				res.created = true
			}

			ok, err := tx.AttachVolunteer(ctx, ref.TenantID, assignmentID, c.VolunteerID)
			if err != nil {
				return err
			}
			if !ok {
				e.log.Debug("volunteer already linked to assignment",
					zap.Uint("assignment_id", assignmentID),
					zap.Uint("volunteer_id", c.VolunteerID))
				continue
			}
			if err := tx.MarkAssigned(ctx, ref.TenantID, c.VolunteerID, ref.Date); err != nil {
				return err
			}
			res.added = append(res.added, c.VolunteerID)
		}

		switch {
		case len(res.added) == 0:
			res.outcome = models.OutcomeNoCandidates
		case len(res.added) == remaining:
			res.outcome = models.OutcomeFilled
		default:
			res.outcome = models.OutcomePartiallyFilled
		}
		return nil
	})
	if err != nil {
		return cellResult{}, err
	}
	return res, nil
}
