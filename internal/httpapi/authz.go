package httpapi

import (
	"context"
	"errors"
	"fmt"

	"merchledger/internal/domain"
	"merchledger/internal/service"
)

type permission string

const (
	permViewInventory     permission = "viewInventory"
	permManageInventory   permission = "manageInventory"
	permDeleteInventory   permission = "deleteInventory"
	permViewAdjustments   permission = "viewAdjustments"
	permManageAdjustments permission = "manageAdjustments"
	permManageTour        permission = "manageTour"
)

var errForbidden = errors.New("forbidden")

// tourRolePermissions is what each tour role may do on that tour. The global
// admin role skips this table.
var tourRolePermissions = map[string]map[permission]bool{
	domain.TourRoleManager: {
		permViewInventory:     true,
		permManageInventory:   true,
		permDeleteInventory:   true,
		permViewAdjustments:   true,
		permManageAdjustments: true,
		permManageTour:        true,
	},
	domain.TourRoleSales: {
		permViewInventory:     true,
		permManageInventory:   true,
		permViewAdjustments:   true,
		permManageAdjustments: true,
	},
	domain.TourRoleViewer: {
		permViewInventory:   true,
		permViewAdjustments: true,
	},
}

func (a *API) authorizeTour(ctx context.Context, tourID string, perm permission) error {
	actor, ok := service.ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: no authenticated user", errForbidden)
	}
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if tourID == "" {
		return fmt.Errorf("%w: only admins may access shows outside a tour", errForbidden)
	}
	role, err := a.service.TourRole(ctx, actor.Username, tourID)
	if err != nil {
		return err
	}
	if !tourRolePermissions[role][perm] {
		return fmt.Errorf("%w: %s permission required on tour %s", errForbidden, perm, tourID)
	}
	return nil
}

// authorizeShow resolves the show's tour and checks perm on it. A missing show
// is reported as not found.
func (a *API) authorizeShow(ctx context.Context, showID string, perm permission) error {
	show, err := a.service.GetShow(ctx, showID)
	if err != nil {
		return err
	}
	return a.authorizeTour(ctx, show.TourID, perm)
}
