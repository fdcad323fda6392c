package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reflection-journal/internal/domain"
)

var newID = func() string {
	return uuid.NewString()
}

// AppendEntry assigns an id and inserts the entry.
func (s *Store) AppendEntry(ctx context.Context, e domain.Entry) (domain.Entry, error) {
	if e.Owner == "" {
		return domain.Entry{}, errors.New("sqlstore: AppendEntry: owner is required")
	}
	if e.Date == "" || e.Time == "" {
		return domain.Entry{}, errors.New("sqlstore: AppendEntry: date and time are required")
	}
	e.ID = newID()
	e.Emotions = domain.EmotionsFromStrings(domain.EmotionStrings(e.Emotions))
	e.People = domain.NormalizeTags(e.People)
	e.Topics = domain.NormalizeTags(e.Topics)

	emotions, err := encodeList(domain.EmotionStrings(e.Emotions))
	if err != nil {
		return domain.Entry{}, fmt.Errorf("sqlstore: AppendEntry: %w", err)
	}
	people, err := encodeList(e.People)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("sqlstore: AppendEntry: %w", err)
	}
	topics, err := encodeList(e.Topics)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("sqlstore: AppendEntry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO logs (id, owner, entry_date, entry_time, summary, emotions, people, topics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Owner, e.Date, e.Time, e.Summary, emotions, people, topics,
	)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("sqlstore: AppendEntry: %w", err)
	}
	return e, nil
}

// ListEntries returns the owner's entries newest first.
func (s *Store) ListEntries(ctx context.Context, owner string) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, owner, entry_date, entry_time, summary, emotions, people, topics
		FROM logs WHERE owner = ?
		ORDER BY entry_date DESC, entry_time DESC, id DESC`), owner)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: ListEntries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		var emotions, people, topics string
		if err := rows.Scan(&e.ID, &e.Owner, &e.Date, &e.Time, &e.Summary, &emotions, &people, &topics); err != nil {
			return nil, fmt.Errorf("sqlstore: ListEntries scan: %w", err)
		}
		labels, err := decodeList(emotions)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: ListEntries entry %s emotions: %w", e.ID, err)
		}
		e.Emotions = domain.EmotionsFromStrings(labels)
		if e.People, err = decodeList(people); err != nil {
			return nil, fmt.Errorf("sqlstore: ListEntries entry %s people: %w", e.ID, err)
		}
		if e.Topics, err = decodeList(topics); err != nil {
			return nil, fmt.Errorf("sqlstore: ListEntries entry %s topics: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: ListEntries: %w", err)
	}
	return entries, nil
}

// CountEntries returns the number of entries the owner has.
func (s *Store) CountEntries(ctx context.Context, owner string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM logs WHERE owner = ?`), owner).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: CountEntries: %w", err)
	}
	return n, nil
}

// DeleteEntry removes the owner's entry with the given id. Unknown ids are
// not an error.
func (s *Store) DeleteEntry(ctx context.Context, owner, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM logs WHERE owner = ? AND id = ?`), owner, id); err != nil {
		return fmt.Errorf("sqlstore: DeleteEntry: %w", err)
	}
	return nil
}

// encodeList stores a tag column as a JSON array so values may contain
// commas.
func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeList reads a tag column. Values not starting with "[" are rows
// written as comma-separated text and are split on commas.
func decodeList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") {
		return domain.SplitTags(raw), nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return domain.NormalizeTags(values), nil
}
