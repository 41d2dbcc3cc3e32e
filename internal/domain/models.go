package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Tour struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type TourCreateRequest struct {
	Name string `json:"name"`
}

// Show dates are calendar dates; only the Y-M-D part takes part in ordering.
type Show struct {
	ID     string    `json:"id"`
	TourID string    `json:"tour_id,omitempty"`
	Date   time.Time `json:"date"`
	Venue  string    `json:"venue"`
	City   string    `json:"city"`
}

type ShowCreateRequest struct {
	TourID string `json:"tour_id,omitempty"`
	Date   string `json:"date"`
	Venue  string `json:"venue"`
	City   string `json:"city"`
}

type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Size  string          `json:"size,omitempty"`
	Color string          `json:"color,omitempty"`
}

type ProductCreateRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Size  string          `json:"size,omitempty"`
	Color string          `json:"color,omitempty"`
}

// ShowInventory is one ledger row. EndInventory is nil until the show is closed out.
type ShowInventory struct {
	ID             string    `json:"id"`
	ShowID         string    `json:"show_id"`
	ProductID      string    `json:"product_id"`
	StartInventory int       `json:"start_inventory"`
	EndInventory   *int      `json:"end_inventory"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r ShowInventory) Closed() bool {
	return r.EndInventory != nil
}

type InventoryCreateRequest struct {
	ProductID      string `json:"product_id,omitempty"`
	StartInventory int    `json:"start_inventory"`
	EndInventory   *int   `json:"end_inventory,omitempty"`
}

type InventoryUpdateRequest struct {
	ProductID      string `json:"product_id,omitempty"`
	StartInventory *int   `json:"start_inventory,omitempty"`
	EndInventory   *int   `json:"end_inventory,omitempty"`
}

type InventoryUpdateResult struct {
	Inventory ShowInventory `json:"inventory"`
	Changed   bool          `json:"changed"`
}

type BatchFailure struct {
	ProductID string `json:"product_id"`
	Error     string `json:"error"`
	Err       error  `json:"-"`
}

type InventoryBatchCreateResult struct {
	Created []ShowInventory `json:"created"`
	Failed  []BatchFailure  `json:"failed"`
}

type InventoryBatchUpdateResult struct {
	Updated   []ShowInventory `json:"updated"`
	Unchanged []ShowInventory `json:"unchanged"`
	Failed    []BatchFailure  `json:"failed"`
}

type CarryForwardEntry struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CarryForwardResult struct {
	ShowID         string              `json:"show_id"`
	PreviousShowID string              `json:"previous_show_id"`
	Updated        []CarryForwardEntry `json:"updated"`
	Unchanged      []CarryForwardEntry `json:"unchanged"`
}

type AdjustmentKind string

const (
	AdjustmentGiveaway AdjustmentKind = "giveaway"
	AdjustmentDiscount AdjustmentKind = "discount"
	AdjustmentLoss     AdjustmentKind = "loss"
	AdjustmentRestock  AdjustmentKind = "restock"
)

func (k AdjustmentKind) Valid() bool {
	switch k {
	case AdjustmentGiveaway, AdjustmentDiscount, AdjustmentLoss, AdjustmentRestock:
		return true
	default:
		return false
	}
}

type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// Discount is the payload carried only by discount adjustments.
type Discount struct {
	Value decimal.Decimal `json:"value"`
	Type  DiscountType    `json:"type"`
}

var (
	ErrInvalidAdjustmentKind = errors.New("type must be one of: giveaway, discount, loss or restock")
	ErrInvalidQuantity       = errors.New("quantity must be a positive integer")
	ErrDiscountRequired      = errors.New("discount value and type are required for type 'discount'")
	ErrDiscountNotAllowed    = errors.New("discount is not allowed unless type is 'discount'")
	ErrInvalidDiscount       = errors.New("discount value must be positive with at most 2 decimals and type 'fixed' or 'percentage'")
	ErrReasonRequired        = errors.New("reason is required")
)

type Adjustment struct {
	ID              string         `json:"id"`
	ShowInventoryID string         `json:"show_inventory_id"`
	Quantity        int            `json:"quantity"`
	Kind            AdjustmentKind `json:"type"`
	Discount        *Discount      `json:"discount,omitempty"`
	Reason          string         `json:"reason"`
	UserID          string         `json:"user_id"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Validate enforces the kind/discount coupling: a Discount is present if and
// only if Kind is discount.
func (a Adjustment) Validate() error {
	if !a.Kind.Valid() {
		return ErrInvalidAdjustmentKind
	}
	if a.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if a.Reason == "" {
		return ErrReasonRequired
	}
	if a.Kind != AdjustmentDiscount {
		if a.Discount != nil {
			return ErrDiscountNotAllowed
		}
		return nil
	}
	if a.Discount == nil {
		return ErrDiscountRequired
	}
	if a.Discount.Type != DiscountFixed && a.Discount.Type != DiscountPercentage {
		return ErrInvalidDiscount
	}
	if !a.Discount.Value.IsPositive() || !a.Discount.Value.Equal(a.Discount.Value.Round(2)) {
		return ErrInvalidDiscount
	}
	return nil
}

type AdjustmentCreateRequest struct {
	ProductID     string           `json:"product_id"`
	Quantity      int              `json:"quantity"`
	Type          AdjustmentKind   `json:"type"`
	Reason        string           `json:"reason"`
	DiscountValue *decimal.Decimal `json:"discount_value,omitempty"`
	DiscountType  *DiscountType    `json:"discount_type,omitempty"`
}

type AdjustmentUpdateRequest struct {
	Quantity      *int             `json:"quantity,omitempty"`
	Type          *AdjustmentKind  `json:"type,omitempty"`
	Reason        *string          `json:"reason,omitempty"`
	DiscountValue *decimal.Decimal `json:"discount_value,omitempty"`
	DiscountType  *DiscountType    `json:"discount_type,omitempty"`
}

type AdjustmentUpdateResult struct {
	Adjustment Adjustment `json:"adjustment"`
	Changed    bool       `json:"changed"`
}

type AdjustmentTotals struct {
	Restock  int `json:"restock"`
	Giveaway int `json:"giveaway"`
	Loss     int `json:"loss"`
	Discount int `json:"discount"`
}

type ProductStats struct {
	ProductID      string           `json:"product_id"`
	ProductName    string           `json:"product_name"`
	Size           string           `json:"size,omitempty"`
	Color          string           `json:"color,omitempty"`
	Price          decimal.Decimal  `json:"price"`
	StartInventory int              `json:"start_inventory"`
	EndInventory   int              `json:"end_inventory"`
	Sold           int              `json:"sold"`
	Adjustments    AdjustmentTotals `json:"adjustments"`
	Revenue        decimal.Decimal  `json:"revenue"`
	TotalDiscount  decimal.Decimal  `json:"total_discount"`
	NetRevenue     decimal.Decimal  `json:"net_revenue"`
}

type StatsTotals struct {
	Sold          int              `json:"sold"`
	Revenue       decimal.Decimal  `json:"revenue"`
	TotalDiscount decimal.Decimal  `json:"total_discount"`
	NetRevenue    decimal.Decimal  `json:"net_revenue"`
	Adjustments   AdjustmentTotals `json:"adjustments"`
}

type ShowStats struct {
	ShowID   string         `json:"show_id"`
	Products []ProductStats `json:"products"`
	Totals   StatsTotals    `json:"totals"`
}

type TourStats struct {
	TourID        string      `json:"tour_id"`
	IncludedShows []string    `json:"included_shows"`
	SkippedShows  []string    `json:"skipped_shows"`
	Totals        StatsTotals `json:"totals"`
}

type ProductTourStats struct {
	TourID        string      `json:"tour_id"`
	Product       Product     `json:"product"`
	IncludedShows []string    `json:"included_shows"`
	SkippedShows  []string    `json:"skipped_shows"`
	Totals        StatsTotals `json:"totals"`
}

const (
	LedgerEventInventoryCreated  = "inventory.created"
	LedgerEventInventoryUpdated  = "inventory.updated"
	LedgerEventInventoryDeleted  = "inventory.deleted"
	LedgerEventCarriedForward    = "inventory.carried_forward"
	LedgerEventAdjustmentCreated = "adjustment.created"
	LedgerEventAdjustmentUpdated = "adjustment.updated"
	LedgerEventAdjustmentDeleted = "adjustment.deleted"
)

type LedgerEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	TourID     string    `json:"tour_id,omitempty"`
	ShowID     string    `json:"show_id"`
	ProductIDs []string  `json:"product_ids"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	TourRoleManager = "manager"
	TourRoleSales   = "sales"
	TourRoleViewer  = "viewer"
)

type TourMember struct {
	TourID   string `json:"tour_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
