package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"merchledger/internal/domain"
	"merchledger/internal/store"
	"merchledger/internal/xid"
)

func (s *Service) CreateAdjustment(ctx context.Context, showID string, req domain.AdjustmentCreateRequest) (domain.Adjustment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Adjustment{}, fmt.Errorf("%w: adjustments require an authenticated user", store.ErrInvalidInput)
	}
	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return domain.Adjustment{}, err
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.Adjustment{}, fmt.Errorf("%w: product_id is required", store.ErrInvalidInput)
	}
	row, err := s.repo.GetShowInventory(ctx, show.ID, productID)
	if err != nil {
		return domain.Adjustment{}, inventoryNotFound(err, show.ID, productID)
	}

	adj := domain.Adjustment{
		ID:              xid.New("adj"),
		ShowInventoryID: row.ID,
		Quantity:        req.Quantity,
		Kind:            req.Type,
		Reason:          strings.TrimSpace(req.Reason),
		UserID:          actor.Username,
		CreatedAt:       time.Now().UTC(),
	}
	if req.DiscountValue != nil || req.DiscountType != nil {
		if req.DiscountValue == nil || req.DiscountType == nil {
			return domain.Adjustment{}, invalidAdjustment(domain.ErrDiscountRequired)
		}
		adj.Discount = &domain.Discount{Value: *req.DiscountValue, Type: *req.DiscountType}
	}
	if err := adj.Validate(); err != nil {
		return domain.Adjustment{}, invalidAdjustment(err)
	}

	created, err := s.repo.CreateAdjustment(ctx, adj)
	if err != nil {
		return domain.Adjustment{}, err
	}
	s.ledgerChanged(ctx, domain.LedgerEventAdjustmentCreated, show, []string{productID})
	return *created, nil
}

func (s *Service) GetAdjustment(ctx context.Context, showID string, adjustmentID string) (domain.Adjustment, error) {
	adj, _, err := s.ownedAdjustment(ctx, showID, adjustmentID)
	return adj, err
}

func (s *Service) ListAdjustments(ctx context.Context, showID string) ([]domain.Adjustment, error) {
	if _, err := s.GetShow(ctx, showID); err != nil {
		return nil, err
	}
	return s.repo.ListAdjustmentsByShow(ctx, showID)
}

func (s *Service) ListProductAdjustments(ctx context.Context, showID string, productID string) ([]domain.Adjustment, error) {
	row, err := s.repo.GetShowInventory(ctx, showID, productID)
	if err != nil {
		return nil, inventoryNotFound(err, showID, productID)
	}
	return s.repo.ListAdjustmentsByInventory(ctx, row.ID)
}

// UpdateAdjustment merges the provided fields over the stored adjustment and
// revalidates the result. Switching away from discount drops the discount;
// switching to discount requires one.
func (s *Service) UpdateAdjustment(ctx context.Context, showID string, adjustmentID string, req domain.AdjustmentUpdateRequest) (domain.AdjustmentUpdateResult, error) {
	existing, row, err := s.ownedAdjustment(ctx, showID, adjustmentID)
	if err != nil {
		return domain.AdjustmentUpdateResult{}, err
	}
	if req.Quantity == nil && req.Type == nil && req.Reason == nil && req.DiscountValue == nil && req.DiscountType == nil {
		return domain.AdjustmentUpdateResult{}, fmt.Errorf("%w: no fields to update", store.ErrInvalidInput)
	}

	next := existing
	if existing.Discount != nil {
		discount := *existing.Discount
		next.Discount = &discount
	}
	if req.Quantity != nil {
		next.Quantity = *req.Quantity
	}
	if req.Reason != nil {
		next.Reason = strings.TrimSpace(*req.Reason)
	}
	if req.Type != nil {
		next.Kind = *req.Type
		if next.Kind != domain.AdjustmentDiscount && req.DiscountValue == nil && req.DiscountType == nil {
			next.Discount = nil
		}
	}
	if req.DiscountValue != nil || req.DiscountType != nil {
		if next.Discount == nil {
			next.Discount = &domain.Discount{}
			if req.DiscountValue == nil || req.DiscountType == nil {
				if next.Kind == domain.AdjustmentDiscount {
					return domain.AdjustmentUpdateResult{}, invalidAdjustment(domain.ErrDiscountRequired)
				}
				return domain.AdjustmentUpdateResult{}, invalidAdjustment(domain.ErrDiscountNotAllowed)
			}
		}
		if req.DiscountValue != nil {
			next.Discount.Value = *req.DiscountValue
		}
		if req.DiscountType != nil {
			next.Discount.Type = *req.DiscountType
		}
	}
	if err := next.Validate(); err != nil {
		return domain.AdjustmentUpdateResult{}, invalidAdjustment(err)
	}

	if sameAdjustment(existing, next) {
		return domain.AdjustmentUpdateResult{Adjustment: existing, Changed: false}, nil
	}

	saved, err := s.repo.UpdateAdjustment(ctx, next)
	if err != nil {
		return domain.AdjustmentUpdateResult{}, wrapNotFound(err, "adjustment", adjustmentID)
	}
	s.ledgerChanged(ctx, domain.LedgerEventAdjustmentUpdated, s.showOf(ctx, row), []string{row.ProductID})
	return domain.AdjustmentUpdateResult{Adjustment: *saved, Changed: true}, nil
}

func (s *Service) DeleteAdjustment(ctx context.Context, showID string, adjustmentID string) error {
	_, row, err := s.ownedAdjustment(ctx, showID, adjustmentID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAdjustment(ctx, adjustmentID); err != nil {
		return wrapNotFound(err, "adjustment", adjustmentID)
	}
	s.ledgerChanged(ctx, domain.LedgerEventAdjustmentDeleted, s.showOf(ctx, row), []string{row.ProductID})
	return nil
}

// ownedAdjustment loads an adjustment and its ledger row, treating an
// adjustment recorded against another show as missing.
func (s *Service) ownedAdjustment(ctx context.Context, showID string, adjustmentID string) (domain.Adjustment, domain.ShowInventory, error) {
	adj, err := s.repo.GetAdjustment(ctx, adjustmentID)
	if err != nil {
		return domain.Adjustment{}, domain.ShowInventory{}, wrapNotFound(err, "adjustment", adjustmentID)
	}
	row, err := s.repo.GetShowInventoryByID(ctx, adj.ShowInventoryID)
	if err != nil {
		return domain.Adjustment{}, domain.ShowInventory{}, wrapNotFound(err, "adjustment", adjustmentID)
	}
	if row.ShowID != showID {
		return domain.Adjustment{}, domain.ShowInventory{}, fmt.Errorf("%w: adjustment %s", store.ErrNotFound, adjustmentID)
	}
	return *adj, *row, nil
}

func (s *Service) showOf(ctx context.Context, row domain.ShowInventory) domain.Show {
	show, err := s.GetShow(ctx, row.ShowID)
	if err != nil {
		return domain.Show{ID: row.ShowID}
	}
	return show
}

func sameAdjustment(a domain.Adjustment, b domain.Adjustment) bool {
	if a.Quantity != b.Quantity || a.Kind != b.Kind || a.Reason != b.Reason {
		return false
	}
	if (a.Discount == nil) != (b.Discount == nil) {
		return false
	}
	if a.Discount == nil {
		return true
	}
	return a.Discount.Type == b.Discount.Type && a.Discount.Value.Equal(b.Discount.Value)
}

func invalidAdjustment(err error) error {
	return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
}
