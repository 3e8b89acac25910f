package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/granjas-console/farm"
)

func collectionPath(kind farm.Kind) string {
	return "/" + kind.Collection() + "/"
}

func itemPath(kind farm.Kind, id int) string {
	return fmt.Sprintf("/%s/%d", kind.Collection(), id)
}

// List fetches the collection of kind, filtered by params (e.g. granja_id).
func List[T any](ctx context.Context, c *Client, kind farm.Kind, params url.Values) ([]T, error) {
	var out []T
	if err := c.do(ctx, request{method: http.MethodGet, path: collectionPath(kind), params: params}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func Get[T any](ctx context.Context, c *Client, kind farm.Kind, id int) (*T, error) {
	var out T
	if err := c.do(ctx, request{method: http.MethodGet, path: itemPath(kind, id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create posts payload and returns the record the backend created.
func Create[T any](ctx context.Context, c *Client, kind farm.Kind, payload any) (*T, error) {
	var out T
	if err := c.do(ctx, request{method: http.MethodPost, path: collectionPath(kind), body: payload}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func Update[T any](ctx context.Context, c *Client, kind farm.Kind, id int, payload any) (*T, error) {
	var out T
	if err := c.do(ctx, request{method: http.MethodPut, path: itemPath(kind, id), body: payload}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, kind farm.Kind, id int) error {
	return c.do(ctx, request{method: http.MethodDelete, path: itemPath(kind, id)}, nil)
}

// ListSupplies fetches consumable supplies (insumos).
func (c *Client) ListSupplies(ctx context.Context) ([]farm.InventoryItem, error) {
	return c.listItems(ctx, "/insumos/", farm.CategorySupply)
}

// ListTools fetches returnable tools (herramientas).
func (c *Client) ListTools(ctx context.Context) ([]farm.InventoryItem, error) {
	return c.listItems(ctx, "/herramientas/", farm.CategoryTool)
}

func (c *Client) listItems(ctx context.Context, path string, category farm.ItemCategory) ([]farm.InventoryItem, error) {
	out := []farm.InventoryItem{}
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Category == "" {
			out[i].Category = category
		}
	}
	return out, nil
}
