package handler

import (
    "errors"   // errors.Is for sentinel mapping
    "net/http" // HTTP status codes
    "strings"  // event type normalisation

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/event-registration/internal/lock"       // lock sentinel errors
    "github.com/iliyamo/event-registration/internal/repository" // repository sentinel errors
    "github.com/iliyamo/event-registration/internal/service"    // webhook processor
)

// WebhookHandler receives terminal payment events from the provider.  The
// route is unauthenticated in the JWT sense; in production the provider's
// signature verification happens at the edge before the request reaches
// this process, so the body is trusted here.
type WebhookHandler struct {
    Webhooks *service.WebhookService
}

func NewWebhookHandler(w *service.WebhookService) *WebhookHandler {
    return &WebhookHandler{Webhooks: w}
}

type webhookReq struct {
    EventID    string `json:"event_id"`
    Type       string `json:"type"`
    PurchaseID uint64 `json:"purchase_id"`
}

// Handle processes POST /v1/payments/webhook.  Event types other than the
// two terminal ones are acknowledged with 200 and ignored, so the provider
// can send its full event stream without configuration.  Redeliveries of a
// processed event also return 200; the idempotency lives in the service.
// A 5xx tells the provider to redeliver later.
func (h *WebhookHandler) Handle(c echo.Context) error {
    var req webhookReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if strings.TrimSpace(req.EventID) == "" || req.PurchaseID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id and purchase_id required"})
    }

    var outcome service.Outcome
    switch req.Type {
    case "payment.succeeded":
        outcome = service.OutcomeSucceeded
    case "payment.failed":
        outcome = service.OutcomeFailed
    default:
        return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
    }

    err := h.Webhooks.HandleTerminalEvent(c.Request().Context(), req.EventID, req.PurchaseID, outcome)
    if err != nil {
        switch {
        case errors.Is(err, repository.ErrPurchaseNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "purchase not found"})
        case errors.Is(err, lock.ErrTimeout):
            c.Response().Header().Set("Retry-After", "1")
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "busy, redeliver later"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "webhook processing failed"})
        }
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "processed"})
}
