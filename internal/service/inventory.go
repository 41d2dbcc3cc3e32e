package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"merchledger/internal/domain"
	"merchledger/internal/ledger"
	"merchledger/internal/store"
	"merchledger/internal/xid"
)

func (s *Service) ListInventory(ctx context.Context, showID string) ([]domain.ShowInventory, error) {
	if _, err := s.GetShow(ctx, showID); err != nil {
		return nil, err
	}
	return s.repo.ListShowInventory(ctx, showID)
}

func (s *Service) GetInventory(ctx context.Context, showID string, productID string) (domain.ShowInventory, error) {
	row, err := s.repo.GetShowInventory(ctx, showID, productID)
	if err != nil {
		return domain.ShowInventory{}, inventoryNotFound(err, showID, productID)
	}
	return *row, nil
}

func (s *Service) CreateInventory(ctx context.Context, showID string, productID string, req domain.InventoryCreateRequest) (domain.ShowInventory, error) {
	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return domain.ShowInventory{}, err
	}

	created, err := s.createRow(ctx, show, productID, req)
	if err != nil {
		return domain.ShowInventory{}, err
	}
	s.ledgerChanged(ctx, domain.LedgerEventInventoryCreated, show, []string{created.ProductID})
	return created, nil
}

// CreateInventoryBatch creates each item independently: a failing item is
// reported in Failed and leaves nothing behind, the rest still proceed.
func (s *Service) CreateInventoryBatch(ctx context.Context, showID string, items []domain.InventoryCreateRequest) (domain.InventoryBatchCreateResult, error) {
	if len(items) == 0 {
		return domain.InventoryBatchCreateResult{}, fmt.Errorf("%w: at least one inventory item is required", store.ErrInvalidInput)
	}
	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return domain.InventoryBatchCreateResult{}, err
	}

	result := domain.InventoryBatchCreateResult{
		Created: make([]domain.ShowInventory, 0, len(items)),
		Failed:  make([]domain.BatchFailure, 0),
	}
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		created, err := s.createRow(ctx, show, item.ProductID, item)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed = append(result.Failed, failure(item.ProductID, err))
			continue
		}
		result.Created = append(result.Created, created)
		productIDs = append(productIDs, created.ProductID)
	}

	if len(productIDs) > 0 {
		s.ledgerChanged(ctx, domain.LedgerEventInventoryCreated, show, productIDs)
	}
	return result, nil
}

func (s *Service) createRow(ctx context.Context, show domain.Show, productID string, req domain.InventoryCreateRequest) (domain.ShowInventory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ShowInventory{}, fmt.Errorf("%w: product_id is required", store.ErrInvalidInput)
	}
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return domain.ShowInventory{}, err
	}
	if err := validateCounts(req.StartInventory, req.EndInventory); err != nil {
		return domain.ShowInventory{}, err
	}

	created, err := s.repo.CreateShowInventory(ctx, domain.ShowInventory{
		ID:             xid.New("inv"),
		ShowID:         show.ID,
		ProductID:      productID,
		StartInventory: req.StartInventory,
		EndInventory:   req.EndInventory,
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.ShowInventory{}, fmt.Errorf("%w: inventory for product %s and show %s already exists", store.ErrConflict, productID, show.ID)
		}
		return domain.ShowInventory{}, err
	}
	return *created, nil
}

// UpdateInventory applies the provided fields. Submitting the values already
// stored is not an error; it returns Changed=false without writing.
func (s *Service) UpdateInventory(ctx context.Context, showID string, productID string, req domain.InventoryUpdateRequest) (domain.InventoryUpdateResult, error) {
	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return domain.InventoryUpdateResult{}, err
	}

	result, err := s.updateRow(ctx, show, productID, req)
	if err != nil {
		return domain.InventoryUpdateResult{}, err
	}
	if result.Changed {
		s.ledgerChanged(ctx, domain.LedgerEventInventoryUpdated, show, []string{productID})
	}
	return result, nil
}

func (s *Service) UpdateInventoryBatch(ctx context.Context, showID string, items []domain.InventoryUpdateRequest) (domain.InventoryBatchUpdateResult, error) {
	if len(items) == 0 {
		return domain.InventoryBatchUpdateResult{}, fmt.Errorf("%w: at least one inventory item is required", store.ErrInvalidInput)
	}
	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return domain.InventoryBatchUpdateResult{}, err
	}

	result := domain.InventoryBatchUpdateResult{
		Updated:   make([]domain.ShowInventory, 0, len(items)),
		Unchanged: make([]domain.ShowInventory, 0),
		Failed:    make([]domain.BatchFailure, 0),
	}
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			result.Failed = append(result.Failed, failure(productID, fmt.Errorf("%w: product_id is required", store.ErrInvalidInput)))
			continue
		}

		res, err := s.updateRow(ctx, show, productID, item)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed = append(result.Failed, failure(productID, err))
			continue
		}
		if !res.Changed {
			result.Unchanged = append(result.Unchanged, res.Inventory)
			continue
		}
		result.Updated = append(result.Updated, res.Inventory)
		productIDs = append(productIDs, productID)
	}

	if len(productIDs) > 0 {
		s.ledgerChanged(ctx, domain.LedgerEventInventoryUpdated, show, productIDs)
	}
	return result, nil
}

func (s *Service) updateRow(ctx context.Context, show domain.Show, productID string, req domain.InventoryUpdateRequest) (domain.InventoryUpdateResult, error) {
	if req.StartInventory == nil && req.EndInventory == nil {
		return domain.InventoryUpdateResult{}, fmt.Errorf("%w: start_inventory or end_inventory is required", store.ErrInvalidInput)
	}

	existing, err := s.repo.GetShowInventory(ctx, show.ID, productID)
	if err != nil {
		return domain.InventoryUpdateResult{}, inventoryNotFound(err, show.ID, productID)
	}

	next := *existing
	if req.StartInventory != nil {
		next.StartInventory = *req.StartInventory
	}
	if req.EndInventory != nil {
		end := *req.EndInventory
		next.EndInventory = &end
	}
	if err := validateCounts(next.StartInventory, next.EndInventory); err != nil {
		return domain.InventoryUpdateResult{}, err
	}

	if sameCounts(*existing, next) {
		return domain.InventoryUpdateResult{Inventory: *existing, Changed: false}, nil
	}

	saved, err := s.repo.UpdateShowInventory(ctx, next)
	if err != nil {
		return domain.InventoryUpdateResult{}, inventoryNotFound(err, show.ID, productID)
	}
	return domain.InventoryUpdateResult{Inventory: *saved, Changed: true}, nil
}

// DeleteInventory removes the ledger row; the store drops its adjustments.
func (s *Service) DeleteInventory(ctx context.Context, showID string, productID string) error {
	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteShowInventory(ctx, showID, productID); err != nil {
		return inventoryNotFound(err, showID, productID)
	}
	s.ledgerChanged(ctx, domain.LedgerEventInventoryDeleted, show, []string{productID})
	return nil
}

// CopyFromPreviousShow opens the current show with the closing stock of the
// previous show in its tour. Products that already have a row are left as
// they are, so repeated calls are idempotent. Every row to be carried is
// validated before the first write.
func (s *Service) CopyFromPreviousShow(ctx context.Context, currentShowID string) (domain.CarryForwardResult, error) {
	current, err := s.GetShow(ctx, currentShowID)
	if err != nil {
		return domain.CarryForwardResult{}, err
	}
	if current.TourID == "" {
		return domain.CarryForwardResult{}, fmt.Errorf("%w: show %s does not belong to a tour", store.ErrInvalidInput, current.ID)
	}
	previous, err := s.FindPreviousShow(ctx, current.ID)
	if err != nil {
		return domain.CarryForwardResult{}, err
	}

	previousRows, err := s.repo.ListShowInventory(ctx, previous.ID)
	if err != nil {
		return domain.CarryForwardResult{}, err
	}
	if len(previousRows) == 0 {
		return domain.CarryForwardResult{}, fmt.Errorf("%w: no inventory found for the previous show %s", store.ErrNotFound, previous.ID)
	}

	currentRows, err := s.repo.ListShowInventory(ctx, current.ID)
	if err != nil {
		return domain.CarryForwardResult{}, err
	}
	existing := make(map[string]domain.ShowInventory, len(currentRows))
	for _, row := range currentRows {
		existing[row.ProductID] = row
	}

	adjustments, err := s.repo.ListAdjustmentsByShow(ctx, previous.ID)
	if err != nil {
		return domain.CarryForwardResult{}, err
	}
	byRow := groupByInventory(adjustments)

	result := domain.CarryForwardResult{
		ShowID:         current.ID,
		PreviousShowID: previous.ID,
		Updated:        make([]domain.CarryForwardEntry, 0, len(previousRows)),
		Unchanged:      make([]domain.CarryForwardEntry, 0),
	}

	pending := make([]domain.CarryForwardEntry, 0, len(previousRows))
	for _, prev := range previousRows {
		if row, ok := existing[prev.ProductID]; ok {
			result.Unchanged = append(result.Unchanged, domain.CarryForwardEntry{ProductID: prev.ProductID, Quantity: row.StartInventory})
			continue
		}
		// Post-close adjustments are added on top of the recorded end count.
		// This double counts anything already reflected in that count; it is
		// kept to match the historical ledger.
		start, err := ledger.CarriedStart(prev, byRow[prev.ID])
		if err != nil {
			return domain.CarryForwardResult{}, fmt.Errorf("%w: end inventory for product %s is null, cannot copy inventory", store.ErrInvalidInput, prev.ProductID)
		}
		if start < 0 {
			return domain.CarryForwardResult{}, fmt.Errorf("%w: carried inventory for product %s would be negative (%d)", store.ErrInvalidInput, prev.ProductID, start)
		}
		pending = append(pending, domain.CarryForwardEntry{ProductID: prev.ProductID, Quantity: start})
	}

	productIDs := make([]string, 0, len(pending))
	for _, entry := range pending {
		_, err := s.repo.CreateShowInventory(ctx, domain.ShowInventory{
			ID:             xid.New("inv"),
			ShowID:         current.ID,
			ProductID:      entry.ProductID,
			StartInventory: entry.Quantity,
			UpdatedAt:      time.Now().UTC(),
		})
		if errors.Is(err, store.ErrConflict) {
			// A concurrent copy or create won the key.
			row, getErr := s.repo.GetShowInventory(ctx, current.ID, entry.ProductID)
			if getErr != nil {
				return result, getErr
			}
			result.Unchanged = append(result.Unchanged, domain.CarryForwardEntry{ProductID: entry.ProductID, Quantity: row.StartInventory})
			continue
		}
		if err != nil {
			return result, err
		}
		result.Updated = append(result.Updated, entry)
		productIDs = append(productIDs, entry.ProductID)
	}

	if len(productIDs) > 0 {
		s.ledgerChanged(ctx, domain.LedgerEventCarriedForward, current, productIDs)
	}
	return result, nil
}

func validateCounts(start int, end *int) error {
	if start < 0 {
		return fmt.Errorf("%w: start inventory must be a non-negative integer", store.ErrInvalidInput)
	}
	if end == nil {
		return nil
	}
	if *end < 0 {
		return fmt.Errorf("%w: end inventory must be a non-negative integer", store.ErrInvalidInput)
	}
	if *end > start {
		return fmt.Errorf("%w: end inventory cannot be more than start inventory", store.ErrInvalidInput)
	}
	return nil
}

func sameCounts(a domain.ShowInventory, b domain.ShowInventory) bool {
	if a.StartInventory != b.StartInventory {
		return false
	}
	if (a.EndInventory == nil) != (b.EndInventory == nil) {
		return false
	}
	return a.EndInventory == nil || *a.EndInventory == *b.EndInventory
}

func groupByInventory(adjustments []domain.Adjustment) map[string][]domain.Adjustment {
	grouped := make(map[string][]domain.Adjustment)
	for _, adj := range adjustments {
		grouped[adj.ShowInventoryID] = append(grouped[adj.ShowInventoryID], adj)
	}
	return grouped
}

func failure(productID string, err error) domain.BatchFailure {
	return domain.BatchFailure{ProductID: productID, Error: err.Error(), Err: err}
}

func inventoryNotFound(err error, showID string, productID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: inventory for product %s and show %s", store.ErrNotFound, productID, showID)
	}
	return err
}
