package index

import (
	"log/slog"
	"time"

	"github.com/mharlow/annex/internal/checksum"
	"github.com/mharlow/annex/internal/extract"
	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/storage"
)

// Sync walks the corpus and brings the index up to date:
//   - new/changed files are classified, extracted, and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data, logger); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteFile(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile classifies and extracts one file and upserts it into the DB.
// Composite cards are additionally parsed into card records; cards whose
// extracted content fails the contamination check are indexed with empty
// content so the problem is visible instead of searchable.
func IndexFile(db *DB, path string, data []byte, logger *slog.Logger) error {
	class := extract.Classify(path)
	res := extract.Extract(data, path)
	for _, d := range res.Diagnostics {
		logger.Warn("sync: extraction diagnostic",
			slog.String("path", path),
			slog.String("code", d.Code),
			slog.String("message", d.Message))
	}

	content := res.Content
	rec := models.FileRecord{
		Path:      path,
		Class:     class,
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now().UTC(),
	}

	if class == models.ClassCompositeCard {
		card := extract.ParseCard(data)
		rec.CardUUID = card.UUID
		if ok, tripped := extract.Validate(content); !ok {
			logger.Warn("sync: contaminated content not indexed",
				slog.String("path", path),
				slog.Any("checks", tripped))
			content = ""
		}
		if card.UUID != "" {
			if err := db.UpsertCard(card, path, content); err != nil {
				return err
			}
		}
	}

	return db.UpsertFile(rec, content)
}
