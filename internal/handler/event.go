package handler

import (
    "context"  // context with timeout for DB calls
    "errors"   // sentinel mapping
    "net/http" // HTTP status codes
    "strconv"  // path parameter parsing
    "strings"  // input trimming
    "time"     // DB call timeouts and start time parsing

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/event-registration/internal/model"      // event model
    "github.com/iliyamo/event-registration/internal/repository" // event repository
)

// EventHandler covers the event catalogue: admins create events, everyone
// can browse the published ones.  Capacity changes after creation are out
// of scope; the registered counter is owned by the purchase workflow.
type EventHandler struct {
    Events *repository.EventRepo
}

func NewEventHandler(e *repository.EventRepo) *EventHandler {
    return &EventHandler{Events: e}
}

type createEventReq struct {
    Title      string `json:"title"`
    Capacity   uint32 `json:"capacity"`
    PriceCents uint32 `json:"price_cents"`
    StartsAt   string `json:"starts_at"` // RFC3339
    Publish    bool   `json:"publish"`
}

type eventResp struct {
    ID              uint64    `json:"id"`
    Title           string    `json:"title"`
    Status          string    `json:"status"`
    Capacity        uint32    `json:"capacity"`
    RegisteredCount uint32    `json:"registered_count"`
    SpotsLeft       uint32    `json:"spots_left"`
    PriceCents      uint32    `json:"price_cents"`
    StartsAt        time.Time `json:"starts_at"`
}

func toEventResp(ev *model.Event) eventResp {
    return eventResp{
        ID:              ev.ID,
        Title:           ev.Title,
        Status:          ev.Status,
        Capacity:        ev.Capacity,
        RegisteredCount: ev.RegisteredCount,
        SpotsLeft:       ev.Capacity - ev.RegisteredCount,
        PriceCents:      ev.PriceCents,
        StartsAt:        ev.StartsAt,
    }
}

// Create handles POST /v1/events (admin only).  Events start in DRAFT
// unless publish is set, so an admin can stage an event before opening it
// for registration.
func (h *EventHandler) Create(c echo.Context) error {
    var req createEventReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Title = strings.TrimSpace(req.Title)
    if req.Title == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
    }
    if req.Capacity == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be positive"})
    }
    startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be RFC3339"})
    }

    status := model.EventDraft
    if req.Publish {
        status = model.EventPublished
    }
    ev := &model.Event{
        Title:      req.Title,
        Status:     status,
        Capacity:   req.Capacity,
        PriceCents: req.PriceCents,
        StartsAt:   startsAt,
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Events.Create(ctx, ev); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create event failed"})
    }
    return c.JSON(http.StatusCreated, toEventResp(ev))
}

// List handles GET /v1/events and returns published events only.
func (h *EventHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    events, err := h.Events.ListPublished(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
    }
    out := make([]eventResp, 0, len(events))
    for i := range events {
        out = append(out, toEventResp(&events[i]))
    }
    return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    ev, err := h.Events.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrEventNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load failed"})
    }
    return c.JSON(http.StatusOK, toEventResp(ev))
}
