package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"devtracker/internal/domain"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// AppendChanges records one event per committed change, carrying the record title.
func (w Writer) AppendChanges(ctx context.Context, tx *sql.Tx, actorID string, changes []domain.Change) error {
	for _, c := range changes {
		payload := EventPayload{"title": c.Record.RecordTitle()}
		if err := w.Append(ctx, tx, c.EventType(), string(c.Record.Kind()), c.Record.RecordID(), actorID, payload); err != nil {
			return fmt.Errorf("append %s: %w", c.EventType(), err)
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
