package farm_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/granjas-console/farm"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, ok := farm.ParseKind("labores")
	require.True(t, ok)
	require.Equal(t, farm.KindLabor, k)

	k, ok = farm.ParseKind("recomendacion")
	require.True(t, ok)
	require.Equal(t, "recomendaciones", k.Collection())

	_, ok = farm.ParseKind("tractores")
	require.False(t, ok)
}

func TestTransitions(t *testing.T) {
	require.True(t, farm.CanTransition(farm.KindLabor, farm.StatePending, farm.StateInProgress))
	require.True(t, farm.CanTransition(farm.KindRecommendation, farm.StatePending, farm.StateApproved))
	require.False(t, farm.CanTransition(farm.KindLabor, farm.StateCompleted, farm.StatePending))
	require.False(t, farm.CanTransition(farm.KindRecommendation, farm.StateRejected, farm.StateApproved))

	err := farm.CheckTransition(farm.KindRecommendation, farm.StateCompleted, farm.StateApproved)
	require.ErrorIs(t, err, ierrors.ErrConflict)

	require.True(t, farm.IsTerminal(farm.KindRecommendation, farm.StateRejected))
	require.False(t, farm.IsTerminal(farm.KindLabor, farm.StateRejected))
	require.False(t, farm.IsTerminal(farm.KindFarm, farm.StateCompleted))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		v      interface{ Validate() error }
		fields []string
	}{
		{"farm ok", farm.Farm{Name: "La Esperanza", Location: "Vereda El Rosal"}, nil},
		{"farm missing", farm.Farm{Name: " "}, []string{"nombre", "ubicacion"}},
		{"lot missing farm", farm.Lot{Name: "Lote 1", Area: -1}, []string{"granja_id", "area"}},
		{"labor ok", farm.Labor{LaborTypeID: 1, WorkerID: 3, LotID: 9, Progress: 40}, nil},
		{"labor bad progress", farm.Labor{LaborTypeID: 1, WorkerID: 3, LotID: 9, Progress: 140}, []string{"avance_porcentaje"}},
		{"recommendation missing", farm.Recommendation{Title: "Riego"}, []string{"tipo", "lote_id"}},
		{"supply needs unit", farm.InventoryItem{Name: "Urea", Category: farm.CategorySupply}, []string{"unidad_medida"}},
		{"tool no unit", farm.InventoryItem{Name: "Pala", Category: farm.CategoryTool, Quantity: 3}, nil},
		{"evidence entity", farm.Evidence{Type: "foto", FileURL: "/files/a.jpg", EntityType: farm.KindLot, EntityID: 1}, []string{"tipo_entidad"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.v.Validate()
			if tc.fields == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ierrors.ErrValidation)
			var fe farm.FieldErrors
			require.ErrorAs(t, err, &fe)
			got := make([]string, 0, len(fe))
			for _, f := range fe {
				got = append(got, f.Field)
			}
			require.Equal(t, tc.fields, got)
		})
	}
}

func TestLabor_ApplyProgress(t *testing.T) {
	l := farm.Labor{ID: 7, State: farm.StatePending}

	require.NoError(t, l.ApplyProgress(30))
	require.Equal(t, farm.StateInProgress, l.State)
	require.Equal(t, 30, l.Progress)

	require.NoError(t, l.ApplyProgress(100))
	require.Equal(t, farm.StateCompleted, l.State)

	err := l.ApplyProgress(50)
	require.ErrorIs(t, err, ierrors.ErrConflict)
	require.Equal(t, 100, l.Progress)

	fresh := farm.Labor{State: farm.StatePending}
	require.ErrorIs(t, fresh.ApplyProgress(-5), ierrors.ErrValidation)
}

func TestLabor_JSON(t *testing.T) {
	raw := `{"id":4,"estado":"en_progreso","tipo_labor_id":2,"avance_porcentaje":60,
		"comentario":"medio lote","trabajador_id":3,"lote_id":8,"lote_nombre":"Lote Norte"}`
	var l farm.Labor
	require.NoError(t, json.Unmarshal([]byte(raw), &l))
	require.Equal(t, 3, l.Owner())
	require.Equal(t, farm.StateInProgress, l.Status())
	require.Equal(t, "medio lote", utils.Value(l.Comment))
	require.Nil(t, l.FinishedAt)
	require.Equal(t, farm.KindLabor, l.Kind())
}

func TestInventoryItem_Collection(t *testing.T) {
	require.Equal(t, "herramientas", farm.InventoryItem{Category: farm.CategoryTool}.Collection())
	require.Equal(t, "insumos", farm.InventoryItem{Category: farm.CategorySupply}.Collection())
}
