package delivery

import (
	"net/http"
	"strconv"

	"restaurant_order_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type OrderHandler struct {
	useCase domain.OrderUseCase
	log     *logrus.Logger
}

func NewOrderHandler(uc domain.OrderUseCase, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		useCase: uc,
		log:     logger,
	}
}

func (h *OrderHandler) RegisterRoutes(router gin.IRouter) {
	orders := router.Group("/orders")
	{
		orders.POST("/create", h.CreateOrderLine)
		orders.GET("/today", h.ListTodayUnpaid)
		orders.GET("/all", h.ListAllGroups)
		orders.GET("/latest/:user_id", h.GetLatestGroupForUser)
		orders.GET("/:group_id", h.GetGroup)
		orders.PUT("/update_state", h.UpdateGroupState)
		orders.PUT("/update_state_by_user", h.UpdateGroupStateByUser)
		orders.PUT("/update_product", h.UpdateLine)
		orders.DELETE("/:group_id", h.DeleteGroup)
	}
}

func parseGroupID(c *gin.Context) (int64, bool) {
	idStr := c.Param("group_id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid group ID format")
		return 0, false
	}
	return id, true
}

func (h *OrderHandler) CreateOrderLine(c *gin.Context) {
	var req domain.LineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind JSON for create order line: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	group, err := h.useCase.CreateOrderLine(c.Request.Context(), req)
	if err != nil {
		h.log.Errorf("Failed to create order line for user %s: %v", req.UserID, err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to create order line: "+err.Error())
		return
	}

	h.log.Infof("Order line created in group %d for user %s", group.ID, req.UserID)
	SuccessResponse(c, http.StatusCreated, "Order line created successfully", group)
}

func (h *OrderHandler) GetGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	group, err := h.useCase.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		h.log.Warnf("Failed to get group %d: %v", groupID, err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to retrieve order: "+err.Error())
		return
	}
	SuccessResponse(c, http.StatusOK, "Order retrieved successfully", group)
}

func (h *OrderHandler) GetLatestGroupForUser(c *gin.Context) {
	userID := c.Param("user_id")

	group, err := h.useCase.GetLatestGroupForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Warnf("Failed to get latest group for user %s: %v", userID, err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to retrieve latest order: "+err.Error())
		return
	}
	SuccessResponse(c, http.StatusOK, "Latest order retrieved successfully", group)
}

func (h *OrderHandler) ListAllGroups(c *gin.Context) {
	groups, err := h.useCase.ListAllGroups(c.Request.Context())
	if err != nil {
		h.log.Errorf("Failed to list orders: %v", err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to retrieve orders")
		return
	}
	if len(groups) == 0 {
		SuccessResponse(c, http.StatusOK, "No orders found", map[int64]*domain.OrderGroup{})
		return
	}
	SuccessResponse(c, http.StatusOK, "Orders retrieved successfully", groups)
}

func (h *OrderHandler) ListTodayUnpaid(c *gin.Context) {
	report, err := h.useCase.ListTodayUnpaidGroups(c.Request.Context())
	if err != nil {
		h.log.Errorf("Failed to build daily report: %v", err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to retrieve today's orders")
		return
	}
	SuccessResponse(c, http.StatusOK, "Today's unpaid orders retrieved successfully", report)
}

func (h *OrderHandler) UpdateGroupState(c *gin.Context) {
	var req struct {
		OrderID int64             `json:"order_id"`
		State   domain.OrderState `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind JSON for update state: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	group, err := h.useCase.UpdateGroupState(c.Request.Context(), req.OrderID, req.State)
	if err != nil {
		h.log.Warnf("Failed to update state of group %d to %s: %v", req.OrderID, req.State, err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to update order state: "+err.Error())
		return
	}

	h.log.Infof("Group %d updated to state %s", group.ID, group.State)
	SuccessResponse(c, http.StatusOK, "Order state updated successfully", group)
}

func (h *OrderHandler) UpdateGroupStateByUser(c *gin.Context) {
	userID := c.Query("user_id")
	state := domain.OrderState(c.Query("state"))

	groups, err := h.useCase.UpdateGroupStateByUser(c.Request.Context(), userID, state)
	if err != nil {
		h.log.Warnf("Failed to update groups of user %s to %s: %v", userID, state, err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to update orders: "+err.Error())
		return
	}

	h.log.Infof("%d groups of user %s updated to state %s", len(groups), userID, state)
	SuccessResponse(c, http.StatusOK, "Orders updated successfully", gin.H{"orders": groups})
}

func (h *OrderHandler) UpdateLine(c *gin.Context) {
	var req struct {
		GroupID     int64  `json:"group_id"`
		ProductName string `json:"product_name"`
		domain.LineChanges
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind JSON for update product: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	group, err := h.useCase.UpdateLine(c.Request.Context(), req.GroupID, req.ProductName, req.LineChanges)
	if err != nil {
		h.log.Warnf("Failed to update product %q in group %d: %v", req.ProductName, req.GroupID, err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to update product: "+err.Error())
		return
	}

	h.log.Infof("Product %q updated in group %d", req.ProductName, group.ID)
	SuccessResponse(c, http.StatusOK, "Product updated successfully", group)
}

func (h *OrderHandler) DeleteGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	deleted, err := h.useCase.DeleteGroup(c.Request.Context(), groupID)
	if err != nil {
		h.log.Errorf("Failed to delete group %d: %v", groupID, err)
		ErrorResponse(c, mapErrorToStatus(err), "Failed to delete order: "+err.Error())
		return
	}
	if !deleted {
		ErrorResponse(c, http.StatusNotFound, "Order not found")
		return
	}

	h.log.Infof("Group %d deleted", groupID)
	SuccessResponse(c, http.StatusOK, "Order deleted successfully", gin.H{"id": groupID})
}
