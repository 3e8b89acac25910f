package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/granjas-console/farm"
	"github.com/jrsteele09/granjas-console/internal/utils"
)

type reviewRequest struct {
	Approve bool   `json:"aprobar"`
	Notes   string `json:"observaciones"`
}

func (c *Client) ApproveRecommendation(ctx context.Context, id int, notes string) (*farm.Recommendation, error) {
	return c.reviewRecommendation(ctx, id, "aprobar", reviewRequest{Approve: true, Notes: notes})
}

func (c *Client) RejectRecommendation(ctx context.Context, id int, notes string) (*farm.Recommendation, error) {
	return c.reviewRecommendation(ctx, id, "rechazar", reviewRequest{Approve: false, Notes: notes})
}

func (c *Client) reviewRecommendation(ctx context.Context, id int, verb string, body reviewRequest) (*farm.Recommendation, error) {
	var out farm.Recommendation
	path := fmt.Sprintf("/recomendaciones/%d/%s", id, verb)
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats is a summary count keyed by state or category, as returned by the statistics endpoints.
type Stats map[string]any

func (c *Client) RecommendationStats(ctx context.Context) (Stats, error) {
	return c.stats(ctx, "/recomendaciones/estadisticas/resumen")
}

func (c *Client) LaborStats(ctx context.Context) (Stats, error) {
	return c.stats(ctx, "/labores/estadisticas/resumen")
}

func (c *Client) stats(ctx context.Context, path string) (Stats, error) {
	out := Stats{}
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type progressRequest struct {
	Progress int     `json:"avance_porcentaje"`
	Comment  *string `json:"comentario,omitempty"`
}

func (c *Client) CompleteLabor(ctx context.Context, id int, comment string) (*farm.Labor, error) {
	return c.laborAction(ctx, id, "completar", progressRequest{Progress: 100, Comment: utils.Text(comment)})
}

// RegisterLaborProgress records progress; the backend moves the labor's state accordingly.
func (c *Client) RegisterLaborProgress(ctx context.Context, id, pct int, comment string) (*farm.Labor, error) {
	return c.laborAction(ctx, id, "avance", progressRequest{Progress: pct, Comment: utils.Text(comment)})
}

type toolAssignment struct {
	ToolID   int     `json:"herramienta_id"`
	Quantity float64 `json:"cantidad"`
}

type supplyAssignment struct {
	SupplyID int     `json:"insumo_id"`
	Quantity float64 `json:"cantidad"`
}

func (c *Client) AssignTool(ctx context.Context, laborID, toolID int, qty float64) (*farm.Labor, error) {
	return c.laborAction(ctx, laborID, "herramientas", toolAssignment{ToolID: toolID, Quantity: qty})
}

func (c *Client) AssignSupply(ctx context.Context, laborID, supplyID int, qty float64) (*farm.Labor, error) {
	return c.laborAction(ctx, laborID, "insumos", supplyAssignment{SupplyID: supplyID, Quantity: qty})
}

func (c *Client) laborAction(ctx context.Context, id int, verb string, body any) (*farm.Labor, error) {
	var out farm.Labor
	path := fmt.Sprintf("/labores/%d/%s", id, verb)
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangeLotState(ctx context.Context, id int, state farm.State) (*farm.Lot, error) {
	var out farm.Lot
	body := map[string]farm.State{"estado": state}
	if err := c.do(ctx, request{method: http.MethodPut, path: fmt.Sprintf("/lotes/%d/estado", id), body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AssignFarmUser(ctx context.Context, farmID, userID int) error {
	return c.farmLink(ctx, http.MethodPost, farmID, "usuarios", userID)
}

func (c *Client) RemoveFarmUser(ctx context.Context, farmID, userID int) error {
	return c.farmLink(ctx, http.MethodDelete, farmID, "usuarios", userID)
}

func (c *Client) AssignFarmProgram(ctx context.Context, farmID, programID int) error {
	return c.farmLink(ctx, http.MethodPost, farmID, "programas", programID)
}

func (c *Client) RemoveFarmProgram(ctx context.Context, farmID, programID int) error {
	return c.farmLink(ctx, http.MethodDelete, farmID, "programas", programID)
}

func (c *Client) farmLink(ctx context.Context, method string, farmID int, rel string, id int) error {
	return c.do(ctx, request{method: method, path: fmt.Sprintf("/granjas/%d/%s/%d", farmID, rel, id)}, nil)
}
