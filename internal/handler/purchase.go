package handler

import (
    "errors"   // errors.Is for mapping service errors to HTTP codes
    "net/http" // HTTP status codes
    "strconv"  // path parameter parsing

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/event-registration/internal/lock"       // lock sentinel errors
    "github.com/iliyamo/event-registration/internal/model"      // purchase model for responses
    "github.com/iliyamo/event-registration/internal/repository" // repository sentinel errors
    "github.com/iliyamo/event-registration/internal/service"    // purchase workflow
)

// PurchaseHandler exposes the registration workflow over HTTP.  All routes
// require an authenticated user; the handler trusts the user_id placed in
// the context by the JWT middleware and never accepts a user id from the
// request body.
type PurchaseHandler struct {
    Purchases *service.PurchaseService
}

func NewPurchaseHandler(p *service.PurchaseService) *PurchaseHandler {
    return &PurchaseHandler{Purchases: p}
}

type purchaseResp struct {
    ID                uint64  `json:"id"`
    EventID           uint64  `json:"event_id"`
    Status            string  `json:"status"`
    AmountCents       uint32  `json:"amount_cents"`
    CheckoutSessionID string  `json:"checkout_session_id"`
    ProviderEventID   *string `json:"provider_event_id,omitempty"`
}

func toPurchaseResp(p *model.Purchase) purchaseResp {
    return purchaseResp{
        ID:                p.ID,
        EventID:           p.EventID,
        Status:            p.Status,
        AmountCents:       p.AmountCents,
        CheckoutSessionID: p.CheckoutSessionID,
        ProviderEventID:   p.ProviderEventID,
    }
}

// Create handles POST /v1/events/:id/purchases.  A fresh registration
// returns 201; a repeated submission that resolved to the caller's
// existing pending purchase returns 200 with that purchase.  A full event
// maps to 409 and lock contention beyond the acquisition budget maps to
// 503 with a retry hint.
func (h *PurchaseHandler) Create(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || eventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }

    p, created, err := h.Purchases.Create(c.Request().Context(), uid, eventID)
    if err != nil {
        switch {
        case errors.Is(err, service.ErrSoldOut):
            return c.JSON(http.StatusConflict, echo.Map{"error": "event sold out"})
        case errors.Is(err, service.ErrRegistrationClosed):
            return c.JSON(http.StatusForbidden, echo.Map{"error": "registration closed"})
        case errors.Is(err, repository.ErrEventNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        case errors.Is(err, lock.ErrTimeout):
            c.Response().Header().Set("Retry-After", "1")
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "busy, retry shortly"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "purchase failed"})
        }
    }
    status := http.StatusOK
    if created {
        status = http.StatusCreated
    }
    return c.JSON(status, toPurchaseResp(p))
}

// Cancel handles POST /v1/purchases/:id/cancel.  Cancelling an already
// terminal purchase succeeds without changing anything, so retried cancel
// requests also get a 204.
func (h *PurchaseHandler) Cancel(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    purchaseID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || purchaseID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid purchase id"})
    }

    if err := h.Purchases.Cancel(c.Request().Context(), uid, purchaseID); err != nil {
        switch {
        case errors.Is(err, repository.ErrPurchaseNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "purchase not found"})
        case errors.Is(err, repository.ErrForbidden):
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
        }
    }
    return c.NoContent(http.StatusNoContent)
}

// List handles GET /v1/purchases and returns the caller's purchases.
func (h *PurchaseHandler) List(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    purchases, err := h.Purchases.ListForUser(c.Request().Context(), uid)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
    }
    out := make([]purchaseResp, 0, len(purchases))
    for i := range purchases {
        out = append(out, toPurchaseResp(&purchases[i]))
    }
    return c.JSON(http.StatusOK, echo.Map{"purchases": out})
}

// Get handles GET /v1/purchases/:id.  Ownership is enforced in the
// service; other users' purchases come back as 403.
func (h *PurchaseHandler) Get(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    purchaseID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || purchaseID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid purchase id"})
    }
    p, err := h.Purchases.Get(c.Request().Context(), uid, purchaseID)
    if err != nil {
        switch {
        case errors.Is(err, repository.ErrPurchaseNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "purchase not found"})
        case errors.Is(err, repository.ErrForbidden):
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load failed"})
        }
    }
    return c.JSON(http.StatusOK, toPurchaseResp(p))
}
