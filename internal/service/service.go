package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"merchledger/internal/cache"
	"merchledger/internal/domain"
	"merchledger/internal/events"
	"merchledger/internal/ledger"
	"merchledger/internal/store"
	"merchledger/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	stats     cache.StatsCache
	publisher events.Publisher
	statsTTL  time.Duration
}

func New(repo store.Repository, statsCache cache.StatsCache, publisher events.Publisher, statsTTL time.Duration) *Service {
	if statsCache == nil {
		statsCache = cache.NoopStatsCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		stats:     statsCache,
		publisher: publisher,
		statsTTL:  statsTTL,
	}
}

func (s *Service) CreateTour(ctx context.Context, req domain.TourCreateRequest) (domain.Tour, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tour{}, fmt.Errorf("%w: tour name is required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateTour(ctx, domain.Tour{
		ID:        xid.New("tour"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Tour{}, err
	}

	if actor, ok := ActorFromContext(ctx); ok && actor.Role != domain.RoleAdmin {
		if err := s.repo.AssignTourRole(ctx, domain.TourMember{TourID: created.ID, Username: actor.Username, Role: domain.TourRoleManager}); err != nil {
			log.Printf("[service] WARN: failed to assign manager role tour=%s user=%s: %v", created.ID, actor.Username, err)
		}
	}
	return *created, nil
}

func (s *Service) GetTour(ctx context.Context, tourID string) (domain.Tour, error) {
	tour, err := s.repo.GetTour(ctx, tourID)
	if err != nil {
		return domain.Tour{}, wrapNotFound(err, "tour", tourID)
	}
	return *tour, nil
}

func (s *Service) ListTours(ctx context.Context) ([]domain.Tour, error) {
	return s.repo.ListTours(ctx)
}

func (s *Service) CreateShow(ctx context.Context, req domain.ShowCreateRequest) (domain.Show, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		return domain.Show{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	tourID := strings.TrimSpace(req.TourID)
	if tourID != "" {
		if _, err := s.GetTour(ctx, tourID); err != nil {
			return domain.Show{}, err
		}
	}

	created, err := s.repo.CreateShow(ctx, domain.Show{
		ID:     xid.New("show"),
		TourID: tourID,
		Date:   date,
		Venue:  strings.TrimSpace(req.Venue),
		City:   strings.TrimSpace(req.City),
	})
	if err != nil {
		return domain.Show{}, err
	}
	return *created, nil
}

func (s *Service) GetShow(ctx context.Context, showID string) (domain.Show, error) {
	show, err := s.repo.GetShow(ctx, showID)
	if err != nil {
		return domain.Show{}, wrapNotFound(err, "show", showID)
	}
	return *show, nil
}

func (s *Service) ListShowsByTour(ctx context.Context, tourID string) ([]domain.Show, error) {
	if _, err := s.GetTour(ctx, tourID); err != nil {
		return nil, err
	}
	shows, err := s.repo.ListShowsByTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	ledger.SortShows(shows)
	return shows, nil
}

// FindPreviousShow resolves the show sequenced immediately before showID in
// its tour, ordering by date and then id.
func (s *Service) FindPreviousShow(ctx context.Context, showID string) (domain.Show, error) {
	current, err := s.GetShow(ctx, showID)
	if err != nil {
		return domain.Show{}, err
	}
	if current.TourID == "" {
		return domain.Show{}, fmt.Errorf("%w: show %s does not belong to a tour", store.ErrInvalidInput, showID)
	}

	shows, err := s.repo.ListShowsByTour(ctx, current.TourID)
	if err != nil {
		return domain.Show{}, err
	}
	previous, ok := ledger.PreviousShow(shows, current.ID)
	if !ok {
		return domain.Show{}, fmt.Errorf("%w: no previous show found for the tour", store.ErrNotFound)
	}
	return previous, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}
	if req.Price.IsNegative() || !req.Price.Equal(req.Price.Round(2)) {
		return domain.Product{}, fmt.Errorf("%w: price must be a non-negative amount with at most 2 decimals", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:    xid.New("prod"),
		Name:  name,
		Price: req.Price,
		Size:  strings.TrimSpace(req.Size),
		Color: strings.TrimSpace(req.Color),
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, wrapNotFound(err, "product", productID)
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) AssignTourRole(ctx context.Context, member domain.TourMember) error {
	switch member.Role {
	case domain.TourRoleManager, domain.TourRoleSales, domain.TourRoleViewer:
	default:
		return fmt.Errorf("%w: role must be manager, sales or viewer", store.ErrInvalidInput)
	}
	if strings.TrimSpace(member.Username) == "" {
		return fmt.Errorf("%w: username is required", store.ErrInvalidInput)
	}
	return s.repo.AssignTourRole(ctx, member)
}

// TourRole returns the caller's role on a tour, or "" when they have none.
func (s *Service) TourRole(ctx context.Context, username string, tourID string) (string, error) {
	role, err := s.repo.GetTourRole(ctx, username, tourID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return role, err
}

// ledgerChanged drops cached stats that depend on the touched rows and
// publishes a change event. Both are best effort.
func (s *Service) ledgerChanged(ctx context.Context, eventType string, show domain.Show, productIDs []string) {
	keys := []string{cache.ShowStatsKey(show.ID)}
	if show.TourID != "" {
		keys = append(keys, cache.TourStatsKey(show.TourID))
		for _, productID := range productIDs {
			keys = append(keys, cache.ProductTourStatsKey(show.TourID, productID))
		}
	}
	if err := s.stats.Delete(ctx, keys...); err != nil {
		log.Printf("[service] WARN: failed to invalidate stats show=%s: %v", show.ID, err)
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	event := domain.LedgerEvent{
		ID:         xid.New("evt"),
		Type:       eventType,
		TourID:     show.TourID,
		ShowID:     show.ID,
		ProductIDs: productIDs,
		Actor:      actor.Username,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("[events] WARN: failed to publish %s show=%s: %v", eventType, show.ID, err)
	}
}

func wrapNotFound(err error, entity string, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, entity, id)
	}
	return err
}
