package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lootroom/internal/core/domain"
	"lootroom/internal/port"
)

const shutdownSaveTimeout = 5 * time.Second

// Persister schedules snapshot persistence around the sync service. Saves
// always operate on a point-in-time copy, never live state, so they can run
// while further mutations commit. A failed save is logged and retried no
// earlier than the next cycle; it never blocks or rolls back a mutation.
type Persister struct {
	svc      *SyncService
	repo     port.SnapshotRepository
	interval time.Duration
	logger   *slog.Logger
	lastSave time.Time
}

func NewPersister(svc *SyncService, repo port.SnapshotRepository, interval time.Duration, logger *slog.Logger) *Persister {
	return &Persister{
		svc:      svc,
		repo:     repo,
		interval: interval,
		logger:   logger,
		lastSave: time.Now(),
	}
}

// Bootstrap restores state from a prior snapshot, or seeds the sample
// inventory and saves it when the backend holds nothing for this group.
func (p *Persister) Bootstrap(ctx context.Context) error {
	snap, err := p.repo.Load(ctx, p.svc.cfg.GroupID)
	if err != nil {
		return err
	}
	if snap != nil {
		p.svc.Restore(snap)
		p.logger.Info("restored snapshot",
			"group", snap.Meta.GroupID,
			"version", snap.Meta.Version,
			"entries", len(snap.Entries),
			"participants", len(snap.Participants))
		return nil
	}
	p.svc.Restore(&domain.Snapshot{Entries: seedEntries()})
	p.logger.Info("no snapshot found, seeded sample inventory", "group", p.svc.cfg.GroupID)
	return p.repo.Save(ctx, p.svc.SnapshotCopy())
}

// Run drives the autosave cycle until ctx is cancelled. Each tick checks
// elapsed wall-clock time against the configured interval; due saves run in
// their own goroutine against a fresh copy.
func (p *Persister) Run(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if time.Since(p.lastSave) < p.interval {
				continue
			}
			p.lastSave = time.Now()
			snap := p.svc.SnapshotCopy()
			go func() {
				if err := p.repo.Save(ctx, snap); err != nil {
					p.logger.Error("autosave failed", "err", err)
				} else {
					p.logger.Info("autosaved", "version", snap.Meta.Version, "entries", len(snap.Entries))
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown performs a final save and a labeled backup. Unlike the autosave
// path it waits, bounded by a timeout, so a clean exit does not race pending
// writes.
func (p *Persister) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownSaveTimeout)
	defer cancel()

	snap := p.svc.SnapshotCopy()
	if err := p.repo.Save(ctx, snap); err != nil {
		p.logger.Error("final save failed", "err", err)
	}
	label := snap.Meta.GroupID + "-" + time.Now().UTC().Format("20060102T150405Z")
	if err := p.repo.Backup(ctx, snap, label); err != nil {
		p.logger.Error("backup failed", "label", label, "err", err)
	} else {
		p.logger.Info("backup written", "label", label)
	}
}

// seedEntries is the fixed starter inventory for a brand-new group.
func seedEntries() []domain.Entry {
	now := time.Now()
	mk := func(name string, cat domain.Category, weight float64, value, qty int, desc string) domain.Entry {
		return domain.Entry{
			ID:           uuid.NewString(),
			Name:         name,
			Category:     cat,
			Description:  desc,
			Weight:       weight,
			Value:        value,
			Quantity:     qty,
			LastModified: now,
		}
	}
	return []domain.Entry{
		mk("Shortsword", domain.CategoryWeapon, 2.0, 10, 1, "A plain but serviceable blade."),
		mk("Healing Potion", domain.CategoryConsumable, 0.5, 50, 3, "Restores a modest amount of vitality."),
		mk("Gold Pieces", domain.CategoryCurrency, 0.02, 1, 150, ""),
		mk("Torch", domain.CategoryTool, 1.0, 1, 5, "Burns for about an hour."),
		mk("Rope (50 ft)", domain.CategoryTool, 10.0, 1, 1, "Hempen rope, lightly used."),
	}
}
