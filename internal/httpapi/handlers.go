package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"merchledger/internal/domain"
)

type inventoryBatchCreateRequest struct {
	Items []domain.InventoryCreateRequest `json:"items"`
}

type inventoryBatchUpdateRequest struct {
	Items []domain.InventoryUpdateRequest `json:"items"`
}

type memberAssignRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("productID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleListTours(w http.ResponseWriter, r *http.Request) {
	tours, err := a.service.ListTours(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tours": tours})
}

func (a *API) handleCreateTour(w http.ResponseWriter, r *http.Request) {
	var req domain.TourCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tour, err := a.service.CreateTour(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tour": tour})
}

func (a *API) handleGetTour(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("tourID")
	if err := a.authorizeTour(r.Context(), tourID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	tour, err := a.service.GetTour(r.Context(), tourID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tour": tour})
}

func (a *API) handleListTourShows(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("tourID")
	if err := a.authorizeTour(r.Context(), tourID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	shows, err := a.service.ListShowsByTour(r.Context(), tourID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shows": shows})
}

func (a *API) handleAssignMember(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("tourID")
	if err := a.authorizeTour(r.Context(), tourID, permManageTour); err != nil {
		writeServiceError(w, err)
		return
	}
	var req memberAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	member := domain.TourMember{TourID: tourID, Username: strings.ToLower(strings.TrimSpace(req.Username)), Role: req.Role}
	if err := a.service.AssignTourRole(r.Context(), member); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"member": member})
}

func (a *API) handleCreateShow(w http.ResponseWriter, r *http.Request) {
	var req domain.ShowCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.authorizeTour(r.Context(), strings.TrimSpace(req.TourID), permManageTour); err != nil {
		writeServiceError(w, err)
		return
	}
	show, err := a.service.CreateShow(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"show": show})
}

func (a *API) handleGetShow(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	show, err := a.service.GetShow(r.Context(), showID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"show": show})
}

func (a *API) handlePreviousShow(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	previous, err := a.service.FindPreviousShow(r.Context(), showID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"show": previous})
}

func (a *API) handleListInventory(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	rows, err := a.service.ListInventory(r.Context(), showID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": rows})
}

func (a *API) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	row, err := a.service.GetInventory(r.Context(), showID, r.PathValue("productID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": row})
}

func (a *API) handleCreateInventory(w http.ResponseWriter, r *http.Request) {
	showID, productID := r.PathValue("showID"), r.PathValue("productID")
	if err := a.authorizeShow(r.Context(), showID, permManageInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.InventoryCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ProductID != "" && req.ProductID != productID {
		writeError(w, http.StatusBadRequest, errors.New("product_id in body does not match path"))
		return
	}
	row, err := a.service.CreateInventory(r.Context(), showID, productID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"inventory": row})
}

func (a *API) handleCreateInventoryBatch(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permManageInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	var req inventoryBatchCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.CreateInventoryBatch(r.Context(), showID, req.Items)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, batchStatus(len(result.Created), len(result.Failed)), result)
}

func (a *API) handleUpdateInventory(w http.ResponseWriter, r *http.Request) {
	showID, productID := r.PathValue("showID"), r.PathValue("productID")
	if err := a.authorizeShow(r.Context(), showID, permManageInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.InventoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ProductID != "" && req.ProductID != productID {
		writeError(w, http.StatusBadRequest, errors.New("product_id in body does not match path"))
		return
	}
	result, err := a.service.UpdateInventory(r.Context(), showID, productID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleUpdateInventoryBatch(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permManageInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	var req inventoryBatchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.UpdateInventoryBatch(r.Context(), showID, req.Items)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDeleteInventory(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permDeleteInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := a.service.DeleteInventory(r.Context(), showID, r.PathValue("productID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCopyInventory(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permManageInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	result, err := a.service.CopyFromPreviousShow(r.Context(), showID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewAdjustments); err != nil {
		writeServiceError(w, err)
		return
	}
	adjustments, err := a.service.ListAdjustments(r.Context(), showID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
}

func (a *API) handleListProductAdjustments(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewAdjustments); err != nil {
		writeServiceError(w, err)
		return
	}
	adjustments, err := a.service.ListProductAdjustments(r.Context(), showID, r.PathValue("productID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
}

func (a *API) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permManageAdjustments); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.AdjustmentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	adj, err := a.service.CreateAdjustment(r.Context(), showID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"adjustment": adj})
}

func (a *API) handleGetAdjustment(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewAdjustments); err != nil {
		writeServiceError(w, err)
		return
	}
	adj, err := a.service.GetAdjustment(r.Context(), showID, r.PathValue("adjustmentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustment": adj})
}

func (a *API) handleUpdateAdjustment(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permManageAdjustments); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.AdjustmentUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.UpdateAdjustment(r.Context(), showID, r.PathValue("adjustmentID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permManageAdjustments); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := a.service.DeleteAdjustment(r.Context(), showID, r.PathValue("adjustmentID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleShowStats(w http.ResponseWriter, r *http.Request) {
	showID := r.PathValue("showID")
	if err := a.authorizeShow(r.Context(), showID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	stats, err := a.service.ShowStats(r.Context(), showID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleTourStats(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("tourID")
	if err := a.authorizeTour(r.Context(), tourID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	stats, err := a.service.TourStats(r.Context(), tourID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleProductTourStats(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("tourID")
	if err := a.authorizeTour(r.Context(), tourID, permViewInventory); err != nil {
		writeServiceError(w, err)
		return
	}
	stats, err := a.service.ProductTourStats(r.Context(), r.PathValue("productID"), tourID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// batchStatus is 201 when everything was created, 207 when only part was,
// and 422 when nothing was.
func batchStatus(succeeded int, failed int) int {
	switch {
	case failed == 0:
		return http.StatusCreated
	case succeeded == 0:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusMultiStatus
	}
}
