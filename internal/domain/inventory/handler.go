package inventory

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/inventory", auth.RequireRole(auth.RolePharmacist, auth.RoleNurse, auth.RoleDoctor, auth.RoleTechnician))
	read.GET("", h.ListItems)
	read.GET("/low-stock", h.GetLowStockItems)
	read.GET("/expired", h.GetExpiredItems)
	read.GET("/report", h.InventoryReport)
	read.GET("/:id", h.GetItem)
	read.GET("/:id/transactions", h.ListTransactions)

	use := api.Group("/inventory", auth.RequireRole(auth.RolePharmacist, auth.RoleNurse, auth.RoleDoctor))
	use.POST("/:id/consume", h.ConsumeInventory)
	use.POST("/:id/return", h.ReturnStock)

	stock := api.Group("/inventory", auth.RequireRole(auth.RolePharmacist))
	stock.POST("", h.AddInventoryItem)
	stock.POST("/:id/restock", h.Restock)
	stock.PUT("/:id/stock", h.UpdateStockLevel)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// bindStock reads the item id and a StockRequest body; quantity is required.
func bindStock(c echo.Context) (uuid.UUID, StockRequest, error) {
	var req StockRequest
	id, err := parseID(c)
	if err != nil {
		return uuid.Nil, req, err
	}
	if err := c.Bind(&req); err != nil {
		return uuid.Nil, req, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Quantity == nil {
		return uuid.Nil, req, apperr.ToHTTP(apperr.MissingField("quantity"))
	}
	return id, req, nil
}

func (h *Handler) AddInventoryItem(c echo.Context) error {
	var req AddItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.AddInventoryItem(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ListItems(c echo.Context) error {
	var f ItemFilter
	if v := c.QueryParam("name"); v != "" {
		f.Name = &v
	}
	if v := c.QueryParam("storage_location"); v != "" {
		f.StorageLocation = &v
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListItems(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}

func (h *Handler) ConsumeInventory(c echo.Context) error {
	id, req, err := bindStock(c)
	if err != nil {
		return err
	}
	item, err := h.svc.ConsumeInventory(c.Request().Context(), id, *req.Quantity, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ReturnStock(c echo.Context) error {
	id, req, err := bindStock(c)
	if err != nil {
		return err
	}
	item, err := h.svc.ReturnStock(c.Request().Context(), id, *req.Quantity, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) Restock(c echo.Context) error {
	id, req, err := bindStock(c)
	if err != nil {
		return err
	}
	item, err := h.svc.Restock(c.Request().Context(), id, *req.Quantity, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateStockLevel(c echo.Context) error {
	id, req, err := bindStock(c)
	if err != nil {
		return err
	}
	item, err := h.svc.UpdateStockLevel(c.Request().Context(), id, *req.Quantity, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) GetLowStockItems(c echo.Context) error {
	var threshold *int
	if raw := c.QueryParam("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "threshold must be an integer")
		}
		threshold = &n
	}
	items, err := h.svc.GetLowStockItems(c.Request().Context(), threshold)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Item{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetExpiredItems(c echo.Context) error {
	items, err := h.svc.GetExpiredItems(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Item{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) InventoryReport(c echo.Context) error {
	rep, err := h.svc.InventoryReport(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTransactions(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}
