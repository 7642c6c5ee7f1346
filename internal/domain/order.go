package domain

import (
	"context"
	"time"
)

type OrderState string

const (
	StatePendiente     OrderState = "pendiente"
	StateEnPreparacion OrderState = "en_preparacion"
	StateCompletado    OrderState = "completado"
	StatePagado        OrderState = "pagado"
)

// FirstGroupID is the value assigned to the first order group of a service day.
// The per-day counter restarts here every calendar day.
const FirstGroupID = 100001

// stateRank orders the lifecycle: pendiente < en_preparacion < completado < pagado.
var stateRank = map[OrderState]int{
	StatePendiente:     0,
	StateEnPreparacion: 1,
	StateCompletado:    2,
	StatePagado:        3,
}

func IsValidState(state OrderState) bool {
	_, ok := stateRank[state]
	return ok
}

// Open reports whether a group in this state still accepts appended lines.
func (s OrderState) Open() bool {
	return s == StatePendiente || s == StateEnPreparacion
}

// CanTransition reports whether a group may move from one state to another.
// Transitions only go forward; skipping a stage is allowed, and re-asserting
// the current state is accepted as a no-op.
func CanTransition(from, to OrderState) bool {
	fromRank, ok := stateRank[from]
	if !ok {
		return false
	}
	toRank, ok := stateRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

// OrderLine is the persisted entity: one row per requested product.
// All lines submitted during the same order episode share a GroupID.
type OrderLine struct {
	ID          int64      `json:"id"`
	GroupID     int64      `json:"group_id"`
	ProductName string     `json:"product_name"`
	Quantity    int        `json:"quantity"`
	Price       float64    `json:"price"`
	Details     string     `json:"details,omitempty"`
	Adicion     string     `json:"adicion,omitempty"`
	State       OrderState `json:"state"`
	Address     string     `json:"address"`
	UserName    string     `json:"user_name"`
	UserID      string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Product is one entry of a consolidated group, in line-creation order.
type Product struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Details  string  `json:"details,omitempty"`
	Adicion  string  `json:"adicion,omitempty"`
}

// OrderGroup is the consolidated read-time view of all lines sharing a group id.
// It is never persisted; every read path rebuilds it from the lines.
type OrderGroup struct {
	ID           int64      `json:"id"`
	Address      string     `json:"address"`
	CustomerName string     `json:"customer_name"`
	Products     []Product  `json:"products"`
	State        OrderState `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// LineRequest carries the caller-supplied fields for a new order line.
type LineRequest struct {
	UserID      string  `json:"user_id"`
	UserName    string  `json:"user_name"`
	Address     string  `json:"address"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Details     string  `json:"details"`
	Adicion     string  `json:"adicion"`
}

// LineChanges lists the updatable fields of a single line; nil means unchanged.
type LineChanges struct {
	Quantity       *int     `json:"quantity"`
	Price          *float64 `json:"price"`
	Details        *string  `json:"details"`
	Adicion        *string  `json:"adicion"`
	NewProductName *string  `json:"new_product_name"`
}

func (c LineChanges) Empty() bool {
	return c.Quantity == nil && c.Price == nil && c.Details == nil &&
		c.Adicion == nil && c.NewProductName == nil
}

// DailyStats summarizes the unpaid business of the current service day.
// TotalSales only counts lines of groups whose current state is completado.
type DailyStats struct {
	TotalOrders    int     `json:"total_orders"`
	PendingOrders  int     `json:"pending_orders"`
	CompleteOrders int     `json:"complete_orders"`
	TotalSales     float64 `json:"total_sales"`
}

type DailyReport struct {
	Stats  DailyStats    `json:"stats"`
	Orders []*OrderGroup `json:"orders"`
}

type OrderRepository interface {
	CreateOrderLine(ctx context.Context, req LineRequest) (*OrderGroup, error)
	GetGroup(ctx context.Context, groupID int64) (*OrderGroup, error)
	GetLatestGroupForUser(ctx context.Context, userID string) (*OrderGroup, error)
	ListAllGroups(ctx context.Context) (map[int64]*OrderGroup, error)
	ListTodayUnpaidGroups(ctx context.Context) (*DailyReport, error)
	UpdateGroupState(ctx context.Context, groupID int64, state OrderState) (*OrderGroup, error)
	UpdateGroupStateByUser(ctx context.Context, userID string, state OrderState) ([]*OrderGroup, error)
	UpdateLine(ctx context.Context, groupID int64, productName string, changes LineChanges) (*OrderGroup, error)
	DeleteGroup(ctx context.Context, groupID int64) (bool, error)
}

type OrderUseCase interface {
	CreateOrderLine(ctx context.Context, req LineRequest) (*OrderGroup, error)
	GetGroup(ctx context.Context, groupID int64) (*OrderGroup, error)
	GetLatestGroupForUser(ctx context.Context, userID string) (*OrderGroup, error)
	ListAllGroups(ctx context.Context) (map[int64]*OrderGroup, error)
	ListTodayUnpaidGroups(ctx context.Context) (*DailyReport, error)
	UpdateGroupState(ctx context.Context, groupID int64, state OrderState) (*OrderGroup, error)
	UpdateGroupStateByUser(ctx context.Context, userID string, state OrderState) ([]*OrderGroup, error)
	UpdateLine(ctx context.Context, groupID int64, productName string, changes LineChanges) (*OrderGroup, error)
	DeleteGroup(ctx context.Context, groupID int64) (bool, error)
}
