package api

import (
	"context"
	"net/http"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/queue"
)

// IdempotencyHeader carries the pending write's id so the backend can drop duplicates.
const IdempotencyHeader = "Idempotency-Key"

var _ queue.Sender = (*Client)(nil)

// Send replays a queued write against its resource endpoint.
func (c *Client) Send(ctx context.Context, w queue.PendingWrite) error {
	req := request{headers: map[string]string{IdempotencyHeader: w.ID}}
	if len(w.Payload) > 0 {
		req.body = w.Payload
	}
	switch w.Op {
	case queue.OpCreate, "":
		req.method, req.path = http.MethodPost, collectionPath(w.ResourceType)
	case queue.OpUpdate:
		req.method, req.path = http.MethodPut, itemPath(w.ResourceType, w.TargetID)
	case queue.OpDelete:
		req.method, req.path = http.MethodDelete, itemPath(w.ResourceType, w.TargetID)
		req.body = nil
	default:
		return ierrors.Wrapf(ierrors.ErrUnsupported, "queued op %q", w.Op)
	}
	return c.do(ctx, req, nil)
}
