// Package reconcile compares a freshly built catalog with the previously
// persisted one.
package reconcile

import (
	"time"

	"catalog-sync/pkg/domain"

	"go.uber.org/zap"
)

// Rename records a page id whose title changed between runs.
type Rename struct {
	PageID int64
	From   string
	To     string
}

// Plan is the outcome of a reconciliation.
type Plan struct {
	// Archive holds prior items gone from the timeline but still referenced
	// by user lists. They move to the missing-media collection.
	Archive []domain.PriorRecord
	// Dropped holds prior items gone from the timeline that nothing references.
	Dropped []domain.PriorRecord
	Renames []Rename
	// Added holds drafts whose page id is new.
	Added []*domain.Draft
	// Resurrected holds page ids of archived items back in the timeline.
	Resurrected []int64
}

// Reconciler builds reconciliation plans.
type Reconciler struct {
	ignore map[string]bool
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Reconciler. Prior titles in ignore are never archived,
// dropped or reported.
func New(ignore []string, logger *zap.Logger) *Reconciler {
	set := make(map[string]bool, len(ignore))
	for _, t := range ignore {
		set[t] = true
	}
	return &Reconciler{
		ignore: set,
		logger: logger.Named("reconcile"),
		now:    time.Now,
	}
}

// Reconcile matches drafts to prior records by page id. listed holds the
// page ids referenced by user lists; missing is the current archive. Drafts
// get AddedAt: the prior value when the page id is known, now otherwise.
// Redlinks carry no page id and are left alone.
func (r *Reconciler) Reconcile(ws *domain.WorkingSet, prior []domain.PriorRecord, listed map[int64]bool, missing []domain.MissingRecord) Plan {
	r.logger.Info("verifying page ids", zap.Int("prior", len(prior)), zap.Int("drafts", len(ws.Drafts)))

	byPageID := make(map[int64]*domain.Draft)
	for _, d := range ws.Drafts {
		if d.PageID == 0 {
			continue
		}
		if _, ok := byPageID[d.PageID]; !ok {
			byPageID[d.PageID] = d
		}
	}

	var plan Plan
	priorByPageID := make(map[int64]domain.PriorRecord, len(prior))
	for _, old := range prior {
		if old.PageID == 0 {
			continue
		}
		priorByPageID[old.PageID] = old

		current, found := byPageID[old.PageID]
		if !found {
			if r.ignore[old.Title] {
				continue
			}
			if !listed[old.PageID] {
				r.logger.Info("media missing from new data, but it's safe to delete, due to not being in any list",
					zap.String("title", old.Title),
					zap.Int64("pageid", old.PageID))
				plan.Dropped = append(plan.Dropped, old)
				continue
			}
			r.logger.Warn("media missing from new data, saving to missing media",
				zap.String("title", old.Title),
				zap.Int64("pageid", old.PageID))
			plan.Archive = append(plan.Archive, old)
			continue
		}

		// chapters naturally have several titles per page id
		if !old.NotUnique && !current.NotUnique && current.Title != old.Title {
			r.logger.Info("renamed",
				zap.Int64("pageid", old.PageID),
				zap.String("from", old.Title),
				zap.String("to", current.Title))
			plan.Renames = append(plan.Renames, Rename{PageID: old.PageID, From: old.Title, To: current.Title})
		}
	}

	missingByPageID := make(map[int64]domain.MissingRecord, len(missing))
	for _, m := range missing {
		missingByPageID[m.PageID] = m
	}

	now := r.now().UTC()
	resurrected := make(map[int64]bool)
	for _, d := range ws.Drafts {
		if d.PageID == 0 {
			continue
		}
		if old, ok := priorByPageID[d.PageID]; ok {
			d.AddedAt = old.AddedAt
		} else {
			r.logger.Info("new media",
				zap.String("type", typeLabel(d)),
				zap.String("title", d.Title),
				zap.Int64("pageid", d.PageID))
			added := now
			d.AddedAt = &added
			plan.Added = append(plan.Added, d)
		}

		m, ok := missingByPageID[d.PageID]
		if !ok || resurrected[d.PageID] {
			continue
		}
		resurrected[d.PageID] = true
		plan.Resurrected = append(plan.Resurrected, d.PageID)
		identical := "differ"
		if m.Title == d.Title {
			identical = "are identical"
		}
		r.logger.Warn("media was missing, but it's present in the timeline again, will delete from missing media",
			zap.Int64("pageid", d.PageID),
			zap.String("oldTitle", m.Title),
			zap.String("newTitle", d.Title),
			zap.String("titles", identical))
	}

	return plan
}

func typeLabel(d *domain.Draft) string {
	if d.FullType != "" {
		return string(d.FullType)
	}
	return string(d.Type)
}
