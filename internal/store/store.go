package store

import (
	"context"
	"errors"

	"merchledger/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository is the persistence boundary of the ledger. CreateShowInventory
// must reject a second row for the same (show, product) with ErrConflict
// atomically; DeleteShowInventory removes the row's adjustments with it.
type Repository interface {
	CreateTour(ctx context.Context, tour domain.Tour) (*domain.Tour, error)
	GetTour(ctx context.Context, id string) (*domain.Tour, error)
	ListTours(ctx context.Context) ([]domain.Tour, error)
	CreateShow(ctx context.Context, show domain.Show) (*domain.Show, error)
	GetShow(ctx context.Context, id string) (*domain.Show, error)
	ListShowsByTour(ctx context.Context, tourID string) ([]domain.Show, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)

	CreateShowInventory(ctx context.Context, row domain.ShowInventory) (*domain.ShowInventory, error)
	GetShowInventory(ctx context.Context, showID string, productID string) (*domain.ShowInventory, error)
	GetShowInventoryByID(ctx context.Context, id string) (*domain.ShowInventory, error)
	ListShowInventory(ctx context.Context, showID string) ([]domain.ShowInventory, error)
	UpdateShowInventory(ctx context.Context, row domain.ShowInventory) (*domain.ShowInventory, error)
	DeleteShowInventory(ctx context.Context, showID string, productID string) error

	CreateAdjustment(ctx context.Context, adj domain.Adjustment) (*domain.Adjustment, error)
	GetAdjustment(ctx context.Context, id string) (*domain.Adjustment, error)
	UpdateAdjustment(ctx context.Context, adj domain.Adjustment) (*domain.Adjustment, error)
	DeleteAdjustment(ctx context.Context, id string) error
	ListAdjustmentsByInventory(ctx context.Context, showInventoryID string) ([]domain.Adjustment, error)
	ListAdjustmentsByShow(ctx context.Context, showID string) ([]domain.Adjustment, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	AssignTourRole(ctx context.Context, member domain.TourMember) error
	GetTourRole(ctx context.Context, username string, tourID string) (string, error)
}
