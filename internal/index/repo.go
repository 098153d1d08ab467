package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mharlow/annex/internal/models"
)

// UpsertFile inserts or replaces a file record and its searchable content
// within a transaction.
func (db *DB) UpsertFile(rec models.FileRecord, content string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO files (path, class, checksum, card_uuid, content, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			class      = excluded.class,
			checksum   = excluded.checksum,
			card_uuid  = excluded.card_uuid,
			content    = excluded.content,
			updated_at = excluded.updated_at
	`, rec.Path, string(rec.Class), rec.Checksum, rec.CardUUID, content, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	if err := ftsUpsert(tx, rec.Path, content); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteFile removes a file, its FTS entry, and any card parsed from it.
func (db *DB) DeleteFile(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM cards WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM files WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a file, or empty string if
// not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns path -> checksum for every indexed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// AllFiles returns every indexed file record.
func (db *DB) AllFiles() ([]models.FileRecord, error) {
	rows, err := db.conn.Query(`SELECT path, class, checksum, card_uuid, updated_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: all files: %w", err)
	}
	defer rows.Close()
	var out []models.FileRecord
	for rows.Next() {
		var rec models.FileRecord
		var class string
		if err := rows.Scan(&rec.Path, &class, &rec.Checksum, &rec.CardUUID, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Class = models.FileClass(class)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FileContents returns path -> clean content for every indexed file.
func (db *DB) FileContents() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, content FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: file contents: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, c string
		if err := rows.Scan(&p, &c); err != nil {
			return nil, err
		}
		out[p] = c
	}
	return out, rows.Err()
}

// UpsertCard inserts or replaces a parsed card and its clean content.
func (db *DB) UpsertCard(card models.Card, path string, content string) error {
	headers, _ := json.Marshal(card.Headers)
	keyValues, _ := json.Marshal(card.KeyValues)
	tagRefs, _ := json.Marshal(card.TagRefs)

	_, err := db.conn.Exec(`
		INSERT INTO cards (uuid, path, headers, key_values, tag_refs, content)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			path       = excluded.path,
			headers    = excluded.headers,
			key_values = excluded.key_values,
			tag_refs   = excluded.tag_refs,
			content    = excluded.content
	`, card.UUID, path, string(headers), string(keyValues), string(tagRefs), content)
	if err != nil {
		return fmt.Errorf("index: upsert card: %w", err)
	}
	return nil
}

// AllCards returns uuid -> card for every indexed card.
func (db *DB) AllCards() (map[string]models.Card, error) {
	rows, err := db.conn.Query(`SELECT uuid, headers, key_values, tag_refs, content FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("index: all cards: %w", err)
	}
	defer rows.Close()
	out := make(map[string]models.Card)
	for rows.Next() {
		var card models.Card
		var headers, keyValues, tagRefs string
		if err := rows.Scan(&card.UUID, &headers, &keyValues, &tagRefs, &card.Content); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(headers), &card.Headers)
		_ = json.Unmarshal([]byte(keyValues), &card.KeyValues)
		_ = json.Unmarshal([]byte(tagRefs), &card.TagRefs)
		out[card.UUID] = card
	}
	return out, rows.Err()
}

// CardContents returns card uuid -> clean content.
func (db *DB) CardContents() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT uuid, content FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("index: card contents: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, c string
		if err := rows.Scan(&id, &c); err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, rows.Err()
}

// UpsertEntity inserts or replaces an entity.
func (db *DB) UpsertEntity(e models.Entity) error {
	aliases, _ := json.Marshal(e.Aliases)
	properties, _ := json.Marshal(e.Properties)

	_, err := db.conn.Exec(`
		INSERT INTO entities (id, type, name, display_name, aliases, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type         = excluded.type,
			name         = excluded.name,
			display_name = excluded.display_name,
			aliases      = excluded.aliases,
			properties   = excluded.properties,
			updated_at   = excluded.updated_at
	`, e.ID, string(e.Type), e.Name, e.DisplayName, string(aliases), string(properties), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert entity: %w", err)
	}
	return nil
}

// GetEntity returns the entity with the given id, or nil when absent.
func (db *DB) GetEntity(id string) (*models.Entity, error) {
	row := db.conn.QueryRow(`
		SELECT id, type, name, display_name, aliases, properties, created_at, updated_at
		FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get entity: %w", err)
	}
	return &e, nil
}

// AllEntities returns every entity in insertion-id order.
func (db *DB) AllEntities() ([]models.Entity, error) {
	rows, err := db.conn.Query(`
		SELECT id, type, name, display_name, aliases, properties, created_at, updated_at
		FROM entities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("index: all entities: %w", err)
	}
	defer rows.Close()
	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(scan func(dest ...any) error) (models.Entity, error) {
	var e models.Entity
	var typ, aliases, properties string
	if err := scan(&e.ID, &typ, &e.Name, &e.DisplayName, &aliases, &properties, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return models.Entity{}, err
	}
	e.Type = models.EntityType(typ)
	_ = json.Unmarshal([]byte(aliases), &e.Aliases)
	_ = json.Unmarshal([]byte(properties), &e.Properties)
	return e, nil
}

// UpsertLink inserts or replaces a link.
func (db *DB) UpsertLink(l models.Link) error {
	properties, _ := json.Marshal(l.Properties)
	hasOffsets := 0
	start, end := 0, 0
	if l.Provenance.Offsets != nil {
		hasOffsets = 1
		start, end = l.Provenance.Offsets.Start, l.Provenance.Offsets.End
	}

	_, err := db.conn.Exec(`
		INSERT INTO links (id, source_entity_id, target_entity_id, predicate,
			is_relationship, is_attribute, is_normalization, direction,
			properties, source_card_id, has_offsets, ref_start, ref_end, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_entity_id = excluded.source_entity_id,
			target_entity_id = excluded.target_entity_id,
			predicate        = excluded.predicate,
			is_relationship  = excluded.is_relationship,
			is_attribute     = excluded.is_attribute,
			is_normalization = excluded.is_normalization,
			direction        = excluded.direction,
			properties       = excluded.properties,
			source_card_id   = excluded.source_card_id,
			has_offsets      = excluded.has_offsets,
			ref_start        = excluded.ref_start,
			ref_end          = excluded.ref_end,
			file_path        = excluded.file_path
	`, l.ID, l.SourceEntityID, l.TargetEntityID, l.Predicate,
		boolInt(l.IsRelationship), boolInt(l.IsAttribute), boolInt(l.IsNormalization), string(l.Direction),
		string(properties), l.Provenance.SourceCardID, hasOffsets, start, end, l.FilePath)
	if err != nil {
		return fmt.Errorf("index: upsert link: %w", err)
	}
	return nil
}

// AllLinks returns every link.
func (db *DB) AllLinks() ([]models.Link, error) {
	rows, err := db.conn.Query(`
		SELECT id, source_entity_id, target_entity_id, predicate,
			is_relationship, is_attribute, is_normalization, direction,
			properties, source_card_id, has_offsets, ref_start, ref_end, file_path
		FROM links ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("index: all links: %w", err)
	}
	defer rows.Close()
	var out []models.Link
	for rows.Next() {
		var l models.Link
		var rel, attr, norm, hasOffsets, start, end int
		var direction, properties string
		if err := rows.Scan(&l.ID, &l.SourceEntityID, &l.TargetEntityID, &l.Predicate,
			&rel, &attr, &norm, &direction,
			&properties, &l.Provenance.SourceCardID, &hasOffsets, &start, &end, &l.FilePath); err != nil {
			return nil, err
		}
		l.IsRelationship = rel != 0
		l.IsAttribute = attr != 0
		l.IsNormalization = norm != 0
		l.Direction = models.Direction(direction)
		_ = json.Unmarshal([]byte(properties), &l.Properties)
		if hasOffsets != 0 {
			l.Provenance.Offsets = &models.Span{Start: start, End: end}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertSnippet inserts or replaces a snippet.
func (db *DB) UpsertSnippet(s models.Snippet) error {
	_, err := db.conn.Exec(`
		INSERT INTO snippets (id, card_id, text, start_offset, end_offset, comment, analyst, classification)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			card_id        = excluded.card_id,
			text           = excluded.text,
			start_offset   = excluded.start_offset,
			end_offset     = excluded.end_offset,
			comment        = excluded.comment,
			analyst        = excluded.analyst,
			classification = excluded.classification
	`, s.ID, s.CardID, s.Text, s.Offsets.Start, s.Offsets.End, s.Comment, s.Analyst, s.Classification)
	if err != nil {
		return fmt.Errorf("index: upsert snippet: %w", err)
	}
	return nil
}

// AllSnippets returns every snippet.
func (db *DB) AllSnippets() ([]models.Snippet, error) {
	rows, err := db.conn.Query(`
		SELECT id, card_id, text, start_offset, end_offset, comment, analyst, classification
		FROM snippets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("index: all snippets: %w", err)
	}
	defer rows.Close()
	var out []models.Snippet
	for rows.Next() {
		var s models.Snippet
		if err := rows.Scan(&s.ID, &s.CardID, &s.Text, &s.Offsets.Start, &s.Offsets.End,
			&s.Comment, &s.Analyst, &s.Classification); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
