package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"merchledger/internal/domain"
	"merchledger/internal/store"
	"merchledger/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	tours           map[string]domain.Tour
	shows           map[string]domain.Show
	products        map[string]domain.Product
	inventoryByID   map[string]domain.ShowInventory
	inventoryByKey  map[string]string
	adjustmentsByID map[string]domain.Adjustment
	usersByUsername map[string]domain.UserAccount
	tourRoles       map[string]string
}

func New() *Store {
	return &Store{
		tours:           make(map[string]domain.Tour),
		shows:           make(map[string]domain.Show),
		products:        make(map[string]domain.Product),
		inventoryByID:   make(map[string]domain.ShowInventory),
		inventoryByKey:  make(map[string]string),
		adjustmentsByID: make(map[string]domain.Adjustment),
		usersByUsername: make(map[string]domain.UserAccount),
		tourRoles:       make(map[string]string),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD, falling back to dev
// defaults with a warning. Postgres deployments never use these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"manager", managerPwd, domain.RoleMember},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with one demo tour of three shows and a small
// merch catalog, the first show already allocated and closed out.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	tour := domain.Tour{ID: "tour-demo", Name: "Demo Tour", CreatedAt: now}
	s.tours[tour.ID] = tour
	s.tourRoles[roleKey("manager", tour.ID)] = domain.TourRoleManager

	shows := []domain.Show{
		{ID: "show-demo-1", TourID: tour.ID, Date: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), Venue: "Tivoli", City: "Utrecht"},
		{ID: "show-demo-2", TourID: tour.ID, Date: time.Date(2025, time.May, 4, 0, 0, 0, 0, time.UTC), Venue: "Vega", City: "Copenhagen"},
		{ID: "show-demo-3", TourID: tour.ID, Date: time.Date(2025, time.May, 6, 0, 0, 0, 0, time.UTC), Venue: "Debaser", City: "Stockholm"},
	}
	for _, show := range shows {
		s.shows[show.ID] = show
	}

	products := []domain.Product{
		{ID: "prod-tee-black-m", Name: "Tour Tee", Price: decimal.RequireFromString("25.00"), Size: "M", Color: "black"},
		{ID: "prod-tee-black-l", Name: "Tour Tee", Price: decimal.RequireFromString("25.00"), Size: "L", Color: "black"},
		{ID: "prod-hoodie-grey-l", Name: "Hoodie", Price: decimal.RequireFromString("55.00"), Size: "L", Color: "grey"},
		{ID: "prod-poster-a2", Name: "Screenprint Poster", Price: decimal.RequireFromString("15.00")},
		{ID: "prod-vinyl-lp", Name: "Vinyl LP", Price: decimal.RequireFromString("30.00")},
	}
	for _, p := range products {
		s.products[p.ID] = p
		end := 80
		row := domain.ShowInventory{
			ID:             xid.New("inv"),
			ShowID:         shows[0].ID,
			ProductID:      p.ID,
			StartInventory: 100,
			EndInventory:   &end,
			UpdatedAt:      now,
		}
		s.inventoryByID[row.ID] = row
		s.inventoryByKey[inventoryKey(row.ShowID, row.ProductID)] = row.ID
	}

	return s
}

func (s *Store) CreateTour(_ context.Context, tour domain.Tour) (*domain.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tour.ID == "" || tour.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.tours[tour.ID]; exists {
		return nil, store.ErrConflict
	}
	s.tours[tour.ID] = tour
	created := tour
	return &created, nil
}

func (s *Store) GetTour(_ context.Context, id string) (*domain.Tour, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tour, exists := s.tours[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &tour, nil
}

func (s *Store) ListTours(_ context.Context) ([]domain.Tour, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tours := make([]domain.Tour, 0, len(s.tours))
	for _, t := range s.tours {
		tours = append(tours, t)
	}
	slices.SortFunc(tours, func(a, b domain.Tour) int {
		return strings.Compare(a.Name, b.Name)
	})
	return tours, nil
}

func (s *Store) CreateShow(_ context.Context, show domain.Show) (*domain.Show, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if show.ID == "" || show.Date.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if show.TourID != "" {
		if _, exists := s.tours[show.TourID]; !exists {
			return nil, store.ErrNotFound
		}
	}
	if _, exists := s.shows[show.ID]; exists {
		return nil, store.ErrConflict
	}
	s.shows[show.ID] = show
	created := show
	return &created, nil
}

func (s *Store) GetShow(_ context.Context, id string) (*domain.Show, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	show, exists := s.shows[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &show, nil
}

func (s *Store) ListShowsByTour(_ context.Context, tourID string) ([]domain.Show, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shows := make([]domain.Show, 0, 16)
	for _, show := range s.shows {
		if show.TourID == tourID {
			shows = append(shows, show)
		}
	}
	slices.SortFunc(shows, func(a, b domain.Show) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return shows, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

// CreateShowInventory checks the (show, product) key and inserts under one
// write lock, so concurrent creates for the same key yield one row.
func (s *Store) CreateShowInventory(_ context.Context, row domain.ShowInventory) (*domain.ShowInventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ID == "" || row.StartInventory < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.shows[row.ShowID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.products[row.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	key := inventoryKey(row.ShowID, row.ProductID)
	if _, exists := s.inventoryByKey[key]; exists {
		return nil, store.ErrConflict
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	row.EndInventory = cloneInt(row.EndInventory)
	s.inventoryByID[row.ID] = row
	s.inventoryByKey[key] = row.ID
	return copyInventory(row), nil
}

func (s *Store) GetShowInventory(_ context.Context, showID string, productID string) (*domain.ShowInventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.inventoryByKey[inventoryKey(showID, productID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	return copyInventory(s.inventoryByID[id]), nil
}

func (s *Store) GetShowInventoryByID(_ context.Context, id string) (*domain.ShowInventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, exists := s.inventoryByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return copyInventory(row), nil
}

func (s *Store) ListShowInventory(_ context.Context, showID string) ([]domain.ShowInventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.ShowInventory, 0, 16)
	for _, row := range s.inventoryByID {
		if row.ShowID == showID {
			rows = append(rows, *copyInventory(row))
		}
	}
	slices.SortFunc(rows, func(a, b domain.ShowInventory) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return rows, nil
}

func (s *Store) UpdateShowInventory(_ context.Context, row domain.ShowInventory) (*domain.ShowInventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.inventoryByKey[inventoryKey(row.ShowID, row.ProductID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	if row.StartInventory < 0 || (row.EndInventory != nil && *row.EndInventory < 0) {
		return nil, store.ErrInvalidInput
	}

	stored := s.inventoryByID[id]
	stored.StartInventory = row.StartInventory
	stored.EndInventory = cloneInt(row.EndInventory)
	stored.UpdatedAt = time.Now().UTC()
	s.inventoryByID[id] = stored
	return copyInventory(stored), nil
}

func (s *Store) DeleteShowInventory(_ context.Context, showID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inventoryKey(showID, productID)
	id, exists := s.inventoryByKey[key]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.inventoryByKey, key)
	delete(s.inventoryByID, id)
	for adjID, adj := range s.adjustmentsByID {
		if adj.ShowInventoryID == id {
			delete(s.adjustmentsByID, adjID)
		}
	}
	return nil
}

func (s *Store) CreateAdjustment(_ context.Context, adj domain.Adjustment) (*domain.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adj.ID == "" {
		return nil, store.ErrInvalidInput
	}
	if err := adj.Validate(); err != nil {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.inventoryByID[adj.ShowInventoryID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, exists := s.adjustmentsByID[adj.ID]; exists {
		return nil, store.ErrConflict
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	adj.Discount = cloneDiscount(adj.Discount)
	s.adjustmentsByID[adj.ID] = adj
	return copyAdjustment(adj), nil
}

func (s *Store) GetAdjustment(_ context.Context, id string) (*domain.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adj, exists := s.adjustmentsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return copyAdjustment(adj), nil
}

func (s *Store) UpdateAdjustment(_ context.Context, adj domain.Adjustment) (*domain.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.adjustmentsByID[adj.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := adj.Validate(); err != nil {
		return nil, store.ErrInvalidInput
	}

	stored.Quantity = adj.Quantity
	stored.Kind = adj.Kind
	stored.Reason = adj.Reason
	stored.Discount = cloneDiscount(adj.Discount)
	s.adjustmentsByID[adj.ID] = stored
	return copyAdjustment(stored), nil
}

func (s *Store) DeleteAdjustment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.adjustmentsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.adjustmentsByID, id)
	return nil
}

func (s *Store) ListAdjustmentsByInventory(_ context.Context, showInventoryID string) ([]domain.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjustments := make([]domain.Adjustment, 0, 8)
	for _, adj := range s.adjustmentsByID {
		if adj.ShowInventoryID == showInventoryID {
			adjustments = append(adjustments, *copyAdjustment(adj))
		}
	}
	sortAdjustments(adjustments)
	return adjustments, nil
}

func (s *Store) ListAdjustmentsByShow(_ context.Context, showID string) ([]domain.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjustments := make([]domain.Adjustment, 0, 16)
	for _, adj := range s.adjustmentsByID {
		row, ok := s.inventoryByID[adj.ShowInventoryID]
		if !ok || row.ShowID != showID {
			continue
		}
		adjustments = append(adjustments, *copyAdjustment(adj))
	}
	sortAdjustments(adjustments)
	return adjustments, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) AssignTourRole(_ context.Context, member domain.TourMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tours[member.TourID]; !ok {
		return store.ErrNotFound
	}
	username := strings.ToLower(strings.TrimSpace(member.Username))
	if _, ok := s.usersByUsername[username]; !ok {
		return store.ErrNotFound
	}
	key := roleKey(username, member.TourID)
	if _, exists := s.tourRoles[key]; exists {
		return store.ErrConflict
	}
	s.tourRoles[key] = member.Role
	return nil
}

func (s *Store) GetTourRole(_ context.Context, username string, tourID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, exists := s.tourRoles[roleKey(strings.ToLower(strings.TrimSpace(username)), tourID)]
	if !exists {
		return "", store.ErrNotFound
	}
	return role, nil
}

func inventoryKey(showID string, productID string) string {
	return showID + "|" + productID
}

func roleKey(username string, tourID string) string {
	return username + "|" + tourID
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneDiscount(d *domain.Discount) *domain.Discount {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func copyInventory(row domain.ShowInventory) *domain.ShowInventory {
	row.EndInventory = cloneInt(row.EndInventory)
	return &row
}

func copyAdjustment(adj domain.Adjustment) *domain.Adjustment {
	adj.Discount = cloneDiscount(adj.Discount)
	return &adj
}

func sortAdjustments(adjustments []domain.Adjustment) {
	slices.SortFunc(adjustments, func(a, b domain.Adjustment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
