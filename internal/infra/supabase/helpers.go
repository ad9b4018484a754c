package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

// insert POSTs rows (a struct, map or slice) and decodes the representation.
func (c *Client) insert(ctx context.Context, table string, rows any, out any) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}

	raw, err := c.doRequest(ctx, http.MethodPost, table, bytes.NewReader(payload), "return=representation")
	if err != nil {
		c.logger.Error("supabase: insert failed", zap.String("table", table), zap.Error(err))
		return c.mapError(table, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

// upsert POSTs rows with merge-duplicates on the given conflict column.
func (c *Client) upsert(ctx context.Context, table, onConflict string, rows any) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}

	path := query(table, url.Values{"on_conflict": {onConflict}})
	_, err = c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(payload), "resolution=merge-duplicates,return=minimal")
	return c.mapError(table, err)
}

// patch updates the rows matched by params and decodes what PostgREST
// returns. An empty result means nothing matched the filter.
func (c *Client) patch(ctx context.Context, table string, params url.Values, fields map[string]any, out any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s patch: %w", table, err)
	}

	raw, err := c.doRequest(ctx, http.MethodPatch, query(table, params), bytes.NewReader(payload), "return=representation")
	if err != nil {
		return c.mapError(table, err)
	}
	if out == nil {
		return nil
	}
	if raw == nil {
		raw = []byte("[]")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

func (c *Client) remove(ctx context.Context, table string, params url.Values) error {
	_, err := c.doRequest(ctx, http.MethodDelete, query(table, params), nil, "return=minimal")
	if err != nil {
		return c.mapError(table, err)
	}
	c.logger.Debug("supabase: DELETE OK", zap.String("table", table))
	return nil
}
