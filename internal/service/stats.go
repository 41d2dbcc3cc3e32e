package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"merchledger/internal/cache"
	"merchledger/internal/domain"
	"merchledger/internal/ledger"
	"merchledger/internal/store"
)

// ShowStats reconciles every ledger row of a show. All rows must be closed.
func (s *Service) ShowStats(ctx context.Context, showID string) (domain.ShowStats, error) {
	key := cache.ShowStatsKey(showID)
	var cached domain.ShowStats
	if s.cachedStats(ctx, key, &cached) {
		return cached, nil
	}

	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return domain.ShowStats{}, err
	}
	stats, _, err := s.reconcileShow(ctx, show, "")
	if err != nil {
		var open openRowError
		if errors.As(err, &open) {
			return domain.ShowStats{}, fmt.Errorf("%w: end inventory not recorded for product %s", store.ErrInvalidInput, open.productID)
		}
		return domain.ShowStats{}, err
	}

	s.storeStats(ctx, key, stats)
	return stats, nil
}

// TourStats sums the closed shows of a tour. A show with any open row is
// reported in SkippedShows and contributes nothing.
func (s *Service) TourStats(ctx context.Context, tourID string) (domain.TourStats, error) {
	key := cache.TourStatsKey(tourID)
	var cached domain.TourStats
	if s.cachedStats(ctx, key, &cached) {
		return cached, nil
	}

	shows, err := s.ListShowsByTour(ctx, tourID)
	if err != nil {
		return domain.TourStats{}, err
	}

	stats := domain.TourStats{
		TourID:        tourID,
		IncludedShows: make([]string, 0, len(shows)),
		SkippedShows:  make([]string, 0),
	}
	var total ledger.Accumulator
	for _, show := range shows {
		_, acc, err := s.reconcileShow(ctx, show, "")
		if err != nil {
			var open openRowError
			if errors.As(err, &open) {
				stats.SkippedShows = append(stats.SkippedShows, show.ID)
				continue
			}
			return domain.TourStats{}, err
		}
		total.Merge(acc)
		stats.IncludedShows = append(stats.IncludedShows, show.ID)
	}
	stats.Totals = total.Totals()

	s.storeStats(ctx, key, stats)
	return stats, nil
}

// ProductTourStats is TourStats restricted to one product. Shows without a
// row for the product are included with nothing to add.
func (s *Service) ProductTourStats(ctx context.Context, productID string, tourID string) (domain.ProductTourStats, error) {
	key := cache.ProductTourStatsKey(tourID, productID)
	var cached domain.ProductTourStats
	if s.cachedStats(ctx, key, &cached) {
		return cached, nil
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductTourStats{}, err
	}
	shows, err := s.ListShowsByTour(ctx, tourID)
	if err != nil {
		return domain.ProductTourStats{}, err
	}

	stats := domain.ProductTourStats{
		TourID:        tourID,
		Product:       product,
		IncludedShows: make([]string, 0, len(shows)),
		SkippedShows:  make([]string, 0),
	}
	var total ledger.Accumulator
	for _, show := range shows {
		_, acc, err := s.reconcileShow(ctx, show, product.ID)
		if err != nil {
			var open openRowError
			if errors.As(err, &open) {
				stats.SkippedShows = append(stats.SkippedShows, show.ID)
				continue
			}
			return domain.ProductTourStats{}, err
		}
		total.Merge(acc)
		stats.IncludedShows = append(stats.IncludedShows, show.ID)
	}
	stats.Totals = total.Totals()

	s.storeStats(ctx, key, stats)
	return stats, nil
}

type openRowError struct {
	productID string
}

func (e openRowError) Error() string {
	return "end inventory not recorded for product " + e.productID
}

// reconcileShow computes per-product stats for a show, optionally limited to
// one product. The accumulator carries unrounded totals for tour rollups.
func (s *Service) reconcileShow(ctx context.Context, show domain.Show, onlyProduct string) (domain.ShowStats, ledger.Accumulator, error) {
	rows, err := s.repo.ListShowInventory(ctx, show.ID)
	if err != nil {
		return domain.ShowStats{}, ledger.Accumulator{}, err
	}
	if onlyProduct != "" {
		filtered := make([]domain.ShowInventory, 0, 1)
		for _, row := range rows {
			if row.ProductID == onlyProduct {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	productIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if !row.Closed() {
			return domain.ShowStats{}, ledger.Accumulator{}, openRowError{productID: row.ProductID}
		}
		productIDs = append(productIDs, row.ProductID)
	}

	stats := domain.ShowStats{ShowID: show.ID, Products: make([]domain.ProductStats, 0, len(rows))}
	var acc ledger.Accumulator
	if len(rows) == 0 {
		stats.Totals = acc.Totals()
		return stats, acc, nil
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.ShowStats{}, ledger.Accumulator{}, err
	}
	adjustments, err := s.repo.ListAdjustmentsByShow(ctx, show.ID)
	if err != nil {
		return domain.ShowStats{}, ledger.Accumulator{}, err
	}
	byRow := groupByInventory(adjustments)

	for _, row := range rows {
		product, ok := products[row.ProductID]
		if !ok {
			return domain.ShowStats{}, ledger.Accumulator{}, fmt.Errorf("%w: product %s", store.ErrNotFound, row.ProductID)
		}
		figures, err := ledger.Reconcile(row, product.Price, byRow[row.ID])
		if err != nil {
			return domain.ShowStats{}, ledger.Accumulator{}, openRowError{productID: row.ProductID}
		}
		acc.Add(figures)

		stats.Products = append(stats.Products, domain.ProductStats{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Size:           product.Size,
			Color:          product.Color,
			Price:          product.Price,
			StartInventory: figures.Start,
			EndInventory:   figures.End,
			Sold:           figures.Sold,
			Adjustments:    figures.Summary.Totals(),
			Revenue:        ledger.RoundMoney(figures.Revenue),
			TotalDiscount:  ledger.RoundMoney(figures.TotalDiscount),
			NetRevenue:     ledger.RoundMoney(figures.NetRevenue),
		})
	}
	stats.Totals = acc.Totals()
	return stats, acc, nil
}

func (s *Service) cachedStats(ctx context.Context, key string, dest any) bool {
	hit, err := s.stats.Get(ctx, key, dest)
	if err != nil {
		log.Printf("[cache] WARN: stats get key=%s: %v", key, err)
		return false
	}
	return hit
}

func (s *Service) storeStats(ctx context.Context, key string, value any) {
	if err := s.stats.Set(ctx, key, value, s.statsTTL); err != nil {
		log.Printf("[cache] WARN: stats set key=%s: %v", key, err)
	}
}
