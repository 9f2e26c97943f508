package scheduling

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconnect/telehealth/internal/platform/auth"
	"github.com/medconnect/telehealth/pkg/apperrors"
	"github.com/medconnect/telehealth/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts availability and teleconsultation endpoints on g
// (/api/v1/doctors). g must already require authentication.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/availability", h.ListSlots)
	g.POST("/availability", h.CreateSlot)
	g.GET("/availability/:id", h.GetSlot)
	g.PUT("/availability/:id", h.ReplaceSlot)
	g.PATCH("/availability/:id", h.PatchSlot)
	g.DELETE("/availability/:id", h.DeleteSlot)

	g.GET("/teleconsults", h.ListConsultations)
	g.POST("/teleconsults", h.CreateConsultation)
	g.GET("/teleconsults/:id", h.GetConsultation)
	g.PUT("/teleconsults/:id", h.ReplaceConsultation)
	g.PATCH("/teleconsults/:id", h.PatchConsultation)
	g.DELETE("/teleconsults/:id", h.DeleteConsultation)
}

func identity(c echo.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication credentials were not provided")
	}
	return id, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
	return id, nil
}

func decodeBody(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return echo.NewHTTPError(http.StatusBadRequest,
			map[string]string{"detail": "JSON parse error - " + err.Error()}).SetInternal(err)
	}
	return nil
}

// -- Availability --

func (h *Handler) CreateSlot(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var in SlotInput
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	slot, err := h.svc.CreateSlot(c.Request().Context(), id, in)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, slot)
}

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	slotID, err := pathID(c)
	if err != nil {
		return err
	}
	slot, err := h.svc.GetSlot(c.Request().Context(), id, slotID)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) ListSlots(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSlots(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

// ReplaceSlot is PUT: all of day, start_time and end_time are required.
func (h *Handler) ReplaceSlot(c echo.Context) error {
	var in SlotPatch
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	switch {
	case in.Day == nil:
		return apperrors.ToHTTP(apperrors.Required("day"))
	case in.StartTime == nil:
		return apperrors.ToHTTP(apperrors.Required("start_time"))
	case in.EndTime == nil:
		return apperrors.ToHTTP(apperrors.Required("end_time"))
	}
	return h.updateSlot(c, in)
}

func (h *Handler) PatchSlot(c echo.Context) error {
	var in SlotPatch
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	return h.updateSlot(c, in)
}

func (h *Handler) updateSlot(c echo.Context, patch SlotPatch) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	slotID, err := pathID(c)
	if err != nil {
		return err
	}
	slot, err := h.svc.UpdateSlot(c.Request().Context(), id, slotID, patch)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	slotID, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), id, slotID); err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Teleconsultation --

func (h *Handler) CreateConsultation(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var in ConsultationInput
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	tc, err := h.svc.CreateConsultation(c.Request().Context(), id, in)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, tc)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	tcID, err := pathID(c)
	if err != nil {
		return err
	}
	tc, err := h.svc.GetConsultation(c.Request().Context(), id, tcID)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, tc)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConsultations(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ReplaceConsultation(c echo.Context) error {
	return h.updateConsultation(c, true)
}

func (h *Handler) PatchConsultation(c echo.Context) error {
	return h.updateConsultation(c, false)
}

func (h *Handler) updateConsultation(c echo.Context, full bool) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	tcID, err := pathID(c)
	if err != nil {
		return err
	}
	ch, err := decodeChanges(c)
	if err != nil {
		return err
	}
	ch.Full = full
	tc, err := h.svc.UpdateConsultation(c.Request().Context(), id, tcID, ch)
	if err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, tc)
}

func (h *Handler) DeleteConsultation(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	tcID, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteConsultation(c.Request().Context(), id, tcID); err != nil {
		return apperrors.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// decodeChanges keeps the exact key set of the body alongside the typed
// values; the key set decides who may apply the update.
func decodeChanges(c echo.Context) (ConsultationChanges, error) {
	raw := map[string]json.RawMessage{}
	if err := decodeBody(c, &raw); err != nil {
		return ConsultationChanges{}, err
	}
	ch := ConsultationChanges{Keys: make(map[string]struct{}, len(raw))}
	for key, value := range raw {
		ch.Keys[key] = struct{}{}
		if string(value) == "null" {
			continue
		}
		var err error
		switch key {
		case FieldScheduledTime:
			var t time.Time
			if err = json.Unmarshal(value, &t); err == nil {
				ch.ScheduledTime = &t
			}
		case FieldDuration:
			var d int
			if err = json.Unmarshal(value, &d); err == nil {
				ch.Duration = &d
			}
		case FieldMeetingURL:
			var u string
			if err = json.Unmarshal(value, &u); err == nil {
				ch.MeetingURL = &u
			}
		case FieldStatus:
			var st Status
			if err := json.Unmarshal(value, &st); err != nil {
				return ConsultationChanges{}, apperrors.ToHTTP(checkStatus(nil))
			}
			ch.Status = &st
		}
		if err != nil {
			return ConsultationChanges{}, apperrors.ToHTTP(
				apperrors.Wrap(apperrors.KindInvalidValue, key, fmt.Sprintf("Invalid value for %s.", key), err))
		}
	}
	return ch, nil
}
