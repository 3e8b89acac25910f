package console

import (
	"context"
	"fmt"
	"io"

	"github.com/jrsteele09/granjas-console/api"
	"github.com/jrsteele09/granjas-console/crud"
	"github.com/jrsteele09/granjas-console/farm"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/internal/utils"
	"github.com/jrsteele09/granjas-console/policy"
	"github.com/jrsteele09/granjas-console/queue"
	"github.com/jrsteele09/granjas-console/users"
)

type record interface {
	farm.Resource
	Validate() error
}

// currentUser returns the signed-in user; failures are notified once.
func (c *Console) currentUser() (*users.Identity, error) {
	u := c.Sessions.CurrentUser()
	if u == nil {
		return nil, c.reject(ierrors.ErrUnauthenticated)
	}
	return u, nil
}

// reject notifies err and returns it. Used for failures detected before any request is made.
func (c *Console) reject(err error) error {
	c.notifier.Notify(crud.Notification{Level: crud.LevelError, Message: crud.Message(err), Err: err})
	return err
}

func (c *Console) forbidden(u *users.Identity, action policy.Action, kind farm.Kind, id int) error {
	return c.reject(ierrors.Wrapf(ierrors.ErrForbidden, "%s may not %s %s %d", u.DisplayRole(), action, kind, id))
}

// Decide returns the actions the current user may take on res.
func (c *Console) Decide(res farm.Resource) policy.Actions {
	u := c.Sessions.CurrentUser()
	if u == nil {
		return policy.Actions{}
	}
	return c.policy.Decide(u.RoleID, res, u.ID)
}

// find returns the record with id from ctl, fetching it when the list does not hold it.
func find[T record](ctx context.Context, c *Console, ctl *crud.Controller[T], kind farm.Kind, id int) (T, error) {
	for _, it := range ctl.Items() {
		if it.RecordID() == id {
			return it, nil
		}
	}
	got, err := api.Get[T](ctx, c.API, kind, id)
	if err != nil {
		var zero T
		return zero, c.reject(err)
	}
	return *got, nil
}

func replace[T record](updated T) func([]T) []T {
	return func(items []T) []T {
		for i := range items {
			if items[i].RecordID() == updated.RecordID() {
				items[i] = updated
				return items
			}
		}
		return append(items, updated)
	}
}

func without[T record](id int) func([]T) []T {
	return func(items []T) []T {
		out := make([]T, 0, len(items))
		for _, it := range items {
			if it.RecordID() != id {
				out = append(out, it)
			}
		}
		return out
	}
}

// save creates item when it has no id and updates it otherwise.
func save[T record](ctx context.Context, c *Console, ctl *crud.Controller[T], item T) (crud.Outcome, error) {
	u, err := c.currentUser()
	if err != nil {
		return crud.NotApplied, err
	}
	if err := item.Validate(); err != nil {
		return crud.NotApplied, c.reject(err)
	}
	kind, id := item.Kind(), item.RecordID()

	if id == 0 {
		if !c.policy.CanCreate(u.RoleID, kind) {
			return crud.NotApplied, c.forbidden(u, policy.ActionCreate, kind, 0)
		}
		var created T
		return ctl.Mutate(ctx, crud.Mutation[T]{
			Key: "create:" + string(kind),
			Do: func(ctx context.Context) error {
				res, err := api.Create[T](ctx, c.API, kind, item)
				if err == nil {
					created = *res
				}
				return err
			},
			Apply:   func(items []T) []T { return append(items, created) },
			Offline: &queue.Write{ResourceType: kind, Op: queue.OpCreate, Payload: item},
			Success: "Registro creado",
		})
	}

	current, err := find(ctx, c, ctl, kind, id)
	if err != nil {
		return crud.NotApplied, err
	}
	if !c.policy.CanEdit(u.RoleID, current, u.ID) {
		return crud.NotApplied, c.forbidden(u, policy.ActionEdit, kind, id)
	}
	var updated T
	return ctl.Mutate(ctx, crud.Mutation[T]{
		Key: fmt.Sprintf("update:%s:%d", kind, id),
		Do: func(ctx context.Context) error {
			res, err := api.Update[T](ctx, c.API, kind, id, item)
			if err == nil {
				updated = *res
			}
			return err
		},
		Apply: func(items []T) []T {
			return replace(updated)(items)
		},
		Offline: &queue.Write{ResourceType: kind, Op: queue.OpUpdate, TargetID: id, Payload: item},
		Success: "Cambios guardados",
	})
}

// remove deletes the record after the user confirms.
func remove[T record](ctx context.Context, c *Console, ctl *crud.Controller[T], kind farm.Kind, id int) (crud.Outcome, error) {
	u, err := c.currentUser()
	if err != nil {
		return crud.NotApplied, err
	}
	current, err := find(ctx, c, ctl, kind, id)
	if err != nil {
		return crud.NotApplied, err
	}
	if !c.policy.CanDelete(u.RoleID, current, u.ID) {
		return crud.NotApplied, c.forbidden(u, policy.ActionDelete, kind, id)
	}
	return ctl.Mutate(ctx, crud.Mutation[T]{
		Key:     fmt.Sprintf("delete:%s:%d", kind, id),
		Confirm: fmt.Sprintf("¿Está seguro de eliminar %s %d?", kind, id),
		Do:      func(ctx context.Context) error { return c.API.Delete(ctx, kind, id) },
		Apply:   without[T](id),
		Offline: &queue.Write{ResourceType: kind, Op: queue.OpDelete, TargetID: id},
		Success: "Registro eliminado",
	})
}

func (c *Console) SaveFarm(ctx context.Context, f farm.Farm) (crud.Outcome, error) {
	return save(ctx, c, c.Farms, f)
}

func (c *Console) DeleteFarm(ctx context.Context, id int) (crud.Outcome, error) {
	return remove(ctx, c, c.Farms, farm.KindFarm, id)
}

func (c *Console) SaveLot(ctx context.Context, l farm.Lot) (crud.Outcome, error) {
	return save(ctx, c, c.Lots, l)
}

func (c *Console) DeleteLot(ctx context.Context, id int) (crud.Outcome, error) {
	return remove(ctx, c, c.Lots, farm.KindLot, id)
}

func (c *Console) SaveCrop(ctx context.Context, cr farm.Crop) (crud.Outcome, error) {
	return save(ctx, c, c.Crops, cr)
}

func (c *Console) DeleteCrop(ctx context.Context, id int) (crud.Outcome, error) {
	return remove(ctx, c, c.Crops, farm.KindCrop, id)
}

func (c *Console) SaveLabor(ctx context.Context, l farm.Labor) (crud.Outcome, error) {
	return save(ctx, c, c.Labors, l)
}

func (c *Console) DeleteLabor(ctx context.Context, id int) (crud.Outcome, error) {
	return remove(ctx, c, c.Labors, farm.KindLabor, id)
}

// SaveRecommendation records the author of a new recommendation when an instructor creates it.
func (c *Console) SaveRecommendation(ctx context.Context, r farm.Recommendation) (crud.Outcome, error) {
	if u := c.Sessions.CurrentUser(); r.ID == 0 && r.InstructorID == 0 && u.IsInstructor() {
		r.InstructorID = u.ID
	}
	return save(ctx, c, c.Recommendations, r)
}

func (c *Console) DeleteRecommendation(ctx context.Context, id int) (crud.Outcome, error) {
	return remove(ctx, c, c.Recommendations, farm.KindRecommendation, id)
}

func (c *Console) SaveSupply(ctx context.Context, item farm.InventoryItem) (crud.Outcome, error) {
	item.Category = farm.CategorySupply
	return save(ctx, c, c.Inventory, item)
}

func (c *Console) DeleteSupply(ctx context.Context, id int) (crud.Outcome, error) {
	return remove(ctx, c, c.Inventory, farm.KindInventory, id)
}

// ApproveRecommendation approves the recommendation with id. It needs the backend; approvals are not queued.
func (c *Console) ApproveRecommendation(ctx context.Context, id int, notes string) (crud.Outcome, error) {
	return c.reviewRecommendation(ctx, id, policy.ActionApprove, notes)
}

func (c *Console) RejectRecommendation(ctx context.Context, id int, notes string) (crud.Outcome, error) {
	return c.reviewRecommendation(ctx, id, policy.ActionReject, notes)
}

func (c *Console) reviewRecommendation(ctx context.Context, id int, action policy.Action, notes string) (crud.Outcome, error) {
	u, err := c.currentUser()
	if err != nil {
		return crud.NotApplied, err
	}
	rec, err := find(ctx, c, c.Recommendations, farm.KindRecommendation, id)
	if err != nil {
		return crud.NotApplied, err
	}
	if !c.policy.Can(action, u.RoleID, rec, u.ID) {
		return crud.NotApplied, c.forbidden(u, action, farm.KindRecommendation, id)
	}
	target := farm.StateApproved
	review := c.API.ApproveRecommendation
	success := "Recomendación aprobada"
	if action == policy.ActionReject {
		target, review, success = farm.StateRejected, c.API.RejectRecommendation, "Recomendación rechazada"
	}
	if err := farm.CheckTransition(farm.KindRecommendation, rec.State, target); err != nil {
		return crud.NotApplied, c.reject(err)
	}

	var updated farm.Recommendation
	return c.Recommendations.Mutate(ctx, crud.Mutation[farm.Recommendation]{
		Key: fmt.Sprintf("review:%s:%d", farm.KindRecommendation, id),
		Do: func(ctx context.Context) error {
			res, err := review(ctx, id, notes)
			if err == nil {
				updated = *res
			}
			return err
		},
		Apply:   func(items []farm.Recommendation) []farm.Recommendation { return replace(updated)(items) },
		Success: success,
	})
}

// RegisterLaborProgress records progress on a labor. Offline, the new progress is queued as an update.
func (c *Console) RegisterLaborProgress(ctx context.Context, id, pct int, comment string) (crud.Outcome, error) {
	u, err := c.currentUser()
	if err != nil {
		return crud.NotApplied, err
	}
	labor, err := find(ctx, c, c.Labors, farm.KindLabor, id)
	if err != nil {
		return crud.NotApplied, err
	}
	action := policy.ActionEdit
	if pct == 100 {
		action = policy.ActionComplete
	}
	if !c.policy.Can(action, u.RoleID, labor, u.ID) {
		return crud.NotApplied, c.forbidden(u, action, farm.KindLabor, id)
	}
	next := labor
	if err := next.ApplyProgress(pct); err != nil {
		return crud.NotApplied, c.reject(err)
	}
	if text := utils.Text(comment); text != nil {
		next.Comment = text
	}

	var updated farm.Labor
	return c.Labors.Mutate(ctx, crud.Mutation[farm.Labor]{
		Key: fmt.Sprintf("progress:%s:%d", farm.KindLabor, id),
		Do: func(ctx context.Context) error {
			var res *farm.Labor
			var err error
			if pct == 100 {
				res, err = c.API.CompleteLabor(ctx, id, comment)
			} else {
				res, err = c.API.RegisterLaborProgress(ctx, id, pct, comment)
			}
			if err == nil {
				updated = *res
			}
			return err
		},
		Apply:   func(items []farm.Labor) []farm.Labor { return replace(updated)(items) },
		Offline: &queue.Write{ResourceType: farm.KindLabor, Op: queue.OpUpdate, TargetID: id, Payload: next},
		Success: "Avance registrado",
	})
}

// CompleteLabor marks a labor as done.
func (c *Console) CompleteLabor(ctx context.Context, id int, comment string) (crud.Outcome, error) {
	return c.RegisterLaborProgress(ctx, id, 100, comment)
}

// AssignTool lends a tool to a labor.
func (c *Console) AssignTool(ctx context.Context, laborID, toolID int, qty float64) (crud.Outcome, error) {
	return c.assign(ctx, laborID, "herramienta", func(ctx context.Context) (*farm.Labor, error) {
		return c.API.AssignTool(ctx, laborID, toolID, qty)
	})
}

// AssignSupply consumes a supply for a labor.
func (c *Console) AssignSupply(ctx context.Context, laborID, supplyID int, qty float64) (crud.Outcome, error) {
	return c.assign(ctx, laborID, "insumo", func(ctx context.Context) (*farm.Labor, error) {
		return c.API.AssignSupply(ctx, laborID, supplyID, qty)
	})
}

func (c *Console) assign(ctx context.Context, laborID int, what string, do func(context.Context) (*farm.Labor, error)) (crud.Outcome, error) {
	u, err := c.currentUser()
	if err != nil {
		return crud.NotApplied, err
	}
	labor, err := find(ctx, c, c.Labors, farm.KindLabor, laborID)
	if err != nil {
		return crud.NotApplied, err
	}
	if !c.policy.CanAssignResources(u.RoleID, labor) {
		return crud.NotApplied, c.forbidden(u, policy.ActionAssign, farm.KindLabor, laborID)
	}
	var updated farm.Labor
	return c.Labors.Mutate(ctx, crud.Mutation[farm.Labor]{
		Key: fmt.Sprintf("assign-%s:%s:%d", what, farm.KindLabor, laborID),
		Do: func(ctx context.Context) error {
			res, err := do(ctx)
			if err == nil {
				updated = *res
			}
			return err
		},
		Apply:   func(items []farm.Labor) []farm.Labor { return replace(updated)(items) },
		Reload:  true,
		Success: "Recurso asignado",
	})
}

// ChangeLotState updates the state of a lot.
func (c *Console) ChangeLotState(ctx context.Context, id int, state farm.State) (crud.Outcome, error) {
	u, err := c.currentUser()
	if err != nil {
		return crud.NotApplied, err
	}
	lot, err := find(ctx, c, c.Lots, farm.KindLot, id)
	if err != nil {
		return crud.NotApplied, err
	}
	if !c.policy.CanEdit(u.RoleID, lot, u.ID) {
		return crud.NotApplied, c.forbidden(u, policy.ActionEdit, farm.KindLot, id)
	}
	var updated farm.Lot
	return c.Lots.Mutate(ctx, crud.Mutation[farm.Lot]{
		Key: fmt.Sprintf("state:%s:%d", farm.KindLot, id),
		Do: func(ctx context.Context) error {
			res, err := c.API.ChangeLotState(ctx, id, state)
			if err == nil {
				updated = *res
			}
			return err
		},
		Apply:   func(items []farm.Lot) []farm.Lot { return replace(updated)(items) },
		Success: "Estado del lote actualizado",
	})
}

// SetFarmUser adds (assign=true) or removes a user from a farm.
func (c *Console) SetFarmUser(ctx context.Context, farmID, userID int, assign bool) (crud.Outcome, error) {
	return c.farmLink(ctx, farmID, "usuario", userID, assign, c.API.AssignFarmUser, c.API.RemoveFarmUser)
}

// SetFarmProgram adds (assign=true) or removes a program from a farm.
func (c *Console) SetFarmProgram(ctx context.Context, farmID, programID int, assign bool) (crud.Outcome, error) {
	return c.farmLink(ctx, farmID, "programa", programID, assign, c.API.AssignFarmProgram, c.API.RemoveFarmProgram)
}

type linkFunc func(ctx context.Context, farmID, id int) error

func (c *Console) farmLink(ctx context.Context, farmID int, what string, id int, assign bool, add, del linkFunc) (crud.Outcome, error) {
	u, err := c.currentUser()
	if err != nil {
		return crud.NotApplied, err
	}
	f, err := find(ctx, c, c.Farms, farm.KindFarm, farmID)
	if err != nil {
		return crud.NotApplied, err
	}
	if !c.policy.CanAssignResources(u.RoleID, f) {
		return crud.NotApplied, c.forbidden(u, policy.ActionAssign, farm.KindFarm, farmID)
	}
	m := crud.Mutation[farm.Farm]{
		Key:     fmt.Sprintf("%s:%s:%d:%d", what, farm.KindFarm, farmID, id),
		Do:      func(ctx context.Context) error { return add(ctx, farmID, id) },
		Reload:  true,
		Success: "Asignación guardada",
	}
	if !assign {
		m.Confirm = fmt.Sprintf("¿Quitar %s %d de la granja %d?", what, id, farmID)
		m.Do = func(ctx context.Context) error { return del(ctx, farmID, id) }
		m.Success = "Asignación eliminada"
	}
	return c.Farms.Mutate(ctx, m)
}

// AttachEvidence uploads a file as evidence of a labor or recommendation the user may edit.
func (c *Console) AttachEvidence(ctx context.Context, ev farm.Evidence, name string, r io.Reader) (*farm.Evidence, error) {
	u, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	var target farm.Resource
	switch ev.EntityType {
	case farm.KindLabor:
		target, err = find(ctx, c, c.Labors, farm.KindLabor, ev.EntityID)
	case farm.KindRecommendation:
		target, err = find(ctx, c, c.Recommendations, farm.KindRecommendation, ev.EntityID)
	default:
		return nil, c.reject(ierrors.Wrapf(ierrors.ErrValidation, "evidence for %q", ev.EntityType))
	}
	if err != nil {
		return nil, err
	}
	if !c.policy.CanEdit(u.RoleID, target, u.ID) && !c.policy.CanComplete(u.RoleID, target, u.ID) {
		return nil, c.forbidden(u, policy.ActionEdit, ev.EntityType, ev.EntityID)
	}
	if ev.UserID == 0 {
		ev.UserID = u.ID
	}
	if !c.IsNetworkOnline() {
		return nil, c.reject(ierrors.Wrapf(ierrors.ErrNetwork, "uploads need a connection"))
	}
	created, err := c.API.AttachEvidence(ctx, ev, name, r)
	if err != nil {
		return nil, c.reject(err)
	}
	c.notifier.Notify(crud.Notification{Level: crud.LevelSuccess, Message: "Evidencia adjuntada"})
	return created, nil
}

// Export downloads the spreadsheet of resource into w and returns the file name to save it under.
func (c *Console) Export(ctx context.Context, resource string, w io.Writer) (string, error) {
	if _, err := c.currentUser(); err != nil {
		return "", err
	}
	name, err := c.API.Export(ctx, resource, w)
	if err != nil {
		return "", c.reject(err)
	}
	return name, nil
}
