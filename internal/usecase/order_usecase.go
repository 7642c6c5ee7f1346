package usecase

import (
	"context"
	"strings"

	"restaurant_order_service/internal/domain"

	"github.com/sirupsen/logrus"
)

var _ domain.OrderUseCase = (*orderUseCase)(nil)

type orderUseCase struct {
	orderRepo domain.OrderRepository
	log       *logrus.Logger
}

func NewOrderUseCase(repo domain.OrderRepository, logger *logrus.Logger) domain.OrderUseCase {
	return &orderUseCase{
		orderRepo: repo,
		log:       logger,
	}
}

func (uc *orderUseCase) CreateOrderLine(ctx context.Context, req domain.LineRequest) (*domain.OrderGroup, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.NewValidationError("user_id", "cannot be empty")
	}
	if strings.TrimSpace(req.ProductName) == "" {
		return nil, domain.NewValidationError("product_name", "cannot be empty")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}
	if req.Price < 0 {
		return nil, domain.NewValidationError("price", "cannot be negative")
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, domain.NewValidationError("address", "cannot be empty")
	}

	uc.log.Infof("Use Case: creating order line %q x%d for user %s", req.ProductName, req.Quantity, req.UserID)
	group, err := uc.orderRepo.CreateOrderLine(ctx, req)
	if err != nil {
		uc.log.Errorf("Use Case: failed to create order line for user %s: %v", req.UserID, err)
		return nil, err
	}
	uc.log.Infof("Use Case: order line created, group %d now has %d products", group.ID, len(group.Products))
	return group, nil
}

func (uc *orderUseCase) GetGroup(ctx context.Context, groupID int64) (*domain.OrderGroup, error) {
	if groupID <= 0 {
		return nil, domain.NewValidationError("group_id", "must be positive")
	}
	group, err := uc.orderRepo.GetGroup(ctx, groupID)
	if err != nil {
		uc.log.Warnf("Use Case: failed to get group %d: %v", groupID, err)
		return nil, err
	}
	return group, nil
}

func (uc *orderUseCase) GetLatestGroupForUser(ctx context.Context, userID string) (*domain.OrderGroup, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", "cannot be empty")
	}
	group, err := uc.orderRepo.GetLatestGroupForUser(ctx, userID)
	if err != nil {
		uc.log.Warnf("Use Case: failed to get latest group for user %s: %v", userID, err)
		return nil, err
	}
	return group, nil
}

func (uc *orderUseCase) ListAllGroups(ctx context.Context) (map[int64]*domain.OrderGroup, error) {
	groups, err := uc.orderRepo.ListAllGroups(ctx)
	if err != nil {
		uc.log.Errorf("Use Case: failed to list groups: %v", err)
		return nil, err
	}
	uc.log.Infof("Use Case: listed %d groups", len(groups))
	return groups, nil
}

func (uc *orderUseCase) ListTodayUnpaidGroups(ctx context.Context) (*domain.DailyReport, error) {
	report, err := uc.orderRepo.ListTodayUnpaidGroups(ctx)
	if err != nil {
		uc.log.Errorf("Use Case: failed to build daily report: %v", err)
		return nil, err
	}
	return report, nil
}

func (uc *orderUseCase) UpdateGroupState(ctx context.Context, groupID int64, state domain.OrderState) (*domain.OrderGroup, error) {
	if groupID <= 0 {
		return nil, domain.NewValidationError("group_id", "must be positive")
	}
	if !domain.IsValidState(state) {
		return nil, domain.NewValidationError("state", "unknown state label")
	}

	uc.log.Infof("Use Case: updating group %d to state %s", groupID, state)
	group, err := uc.orderRepo.UpdateGroupState(ctx, groupID, state)
	if err != nil {
		uc.log.Warnf("Use Case: failed to update state of group %d: %v", groupID, err)
		return nil, err
	}
	return group, nil
}

func (uc *orderUseCase) UpdateGroupStateByUser(ctx context.Context, userID string, state domain.OrderState) ([]*domain.OrderGroup, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", "cannot be empty")
	}
	if !domain.IsValidState(state) {
		return nil, domain.NewValidationError("state", "unknown state label")
	}

	uc.log.Infof("Use Case: updating all groups of user %s to state %s", userID, state)
	groups, err := uc.orderRepo.UpdateGroupStateByUser(ctx, userID, state)
	if err != nil {
		uc.log.Warnf("Use Case: failed to update groups of user %s: %v", userID, err)
		return nil, err
	}
	return groups, nil
}

func (uc *orderUseCase) UpdateLine(ctx context.Context, groupID int64, productName string, changes domain.LineChanges) (*domain.OrderGroup, error) {
	if groupID <= 0 {
		return nil, domain.NewValidationError("group_id", "must be positive")
	}
	if strings.TrimSpace(productName) == "" {
		return nil, domain.NewValidationError("product_name", "cannot be empty")
	}
	if changes.Empty() {
		return nil, domain.NewValidationError("changes", "no fields to update")
	}
	if changes.Quantity != nil && *changes.Quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}
	if changes.Price != nil && *changes.Price < 0 {
		return nil, domain.NewValidationError("price", "cannot be negative")
	}
	if changes.NewProductName != nil && strings.TrimSpace(*changes.NewProductName) == "" {
		return nil, domain.NewValidationError("new_product_name", "cannot be empty")
	}

	uc.log.Infof("Use Case: updating product %q in group %d", productName, groupID)
	group, err := uc.orderRepo.UpdateLine(ctx, groupID, productName, changes)
	if err != nil {
		uc.log.Warnf("Use Case: failed to update product %q in group %d: %v", productName, groupID, err)
		return nil, err
	}
	return group, nil
}

func (uc *orderUseCase) DeleteGroup(ctx context.Context, groupID int64) (bool, error) {
	if groupID <= 0 {
		return false, domain.NewValidationError("group_id", "must be positive")
	}

	uc.log.Infof("Use Case: deleting group %d", groupID)
	deleted, err := uc.orderRepo.DeleteGroup(ctx, groupID)
	if err != nil {
		uc.log.Errorf("Use Case: failed to delete group %d: %v", groupID, err)
		return false, err
	}
	if !deleted {
		uc.log.Warnf("Use Case: group %d not found for deletion", groupID)
	}
	return deleted, nil
}
