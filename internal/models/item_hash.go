package models

import (
	"fmt"
	"strconv"
	"time"
)

// Item hash field names.
const (
	FieldKind       = "kind"
	FieldScore      = "score"
	FieldState      = "state"
	FieldAuthor     = "authorUid"
	FieldPayload    = "payload"
	FieldThumbnail  = "thumbnail"
	FieldOriginPost = "originPost"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
)

// Hash flattens the item into store hash fields. Timestamps are unix milliseconds.
func (i *Item) Hash() map[string]interface{} {
	return map[string]interface{}{
		FieldKind:       string(i.Kind),
		FieldScore:      i.Score,
		FieldState:      string(i.State),
		FieldAuthor:     i.AuthorID,
		FieldPayload:    i.Payload,
		FieldThumbnail:  i.ThumbnailURL,
		FieldOriginPost: i.OriginPostID,
		FieldCreatedAt:  i.CreatedAt.UnixMilli(),
		FieldUpdatedAt:  i.UpdatedAt.UnixMilli(),
	}
}

// ItemFromHash rebuilds an item from its stored fields.
func ItemFromHash(id string, fields map[string]string) (*Item, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}

	score, err := strconv.ParseInt(fields[FieldScore], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("item %s: bad score %q: %w", id, fields[FieldScore], err)
	}

	return &Item{
		ID:           id,
		Kind:         Kind(fields[FieldKind]),
		Score:        score,
		State:        State(fields[FieldState]),
		AuthorID:     fields[FieldAuthor],
		Payload:      fields[FieldPayload],
		ThumbnailURL: fields[FieldThumbnail],
		OriginPostID: fields[FieldOriginPost],
		CreatedAt:    parseMillis(fields[FieldCreatedAt]),
		UpdatedAt:    parseMillis(fields[FieldUpdatedAt]),
	}, nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
