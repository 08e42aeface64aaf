package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-user-cache/users"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Pagination bounds for GET /users.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Handler serves the user routes.
type Handler struct {
	svc    UserService
	health HealthChecker
}

func NewHandler(svc UserService, health HealthChecker) *Handler {
	return &Handler{svc: svc, health: health}
}

// Resource paths under BasePath. LegacyResource is the path earlier
// clients of this service were built against.
const (
	Resource       = "/users"
	LegacyResource = "/usuarios"
)

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	v1 := e.Group(BasePath)

	for _, res := range []string{Resource, LegacyResource} {
		v1.GET(res, h.list)
		v1.POST(res, h.create)
		v1.GET(res+"/cache/stats", h.stats)
		v1.GET(res+"/:id", h.get)
		v1.PUT(res+"/:id", h.update)
		v1.PATCH(res+"/:id", h.update)
		v1.DELETE(res+"/:id", h.delete)
	}

	e.GET("/healthz", h.healthz)
}

func (h *Handler) list(c echo.Context) error {
	limit, offset := DefaultLimit, 0

	errs := echo.QueryParamsBinder(c).
		Int("limit", &limit).
		Int("offset", &offset).
		BindErrors()
	if len(errs) > 0 {
		fields := validation.Errors{}
		for _, err := range errs {
			var be *echo.BindingError
			if errors.As(err, &be) {
				fields[be.Field] = errors.New("must be an integer")
			}
		}
		return &users.ValidationError{Fields: fields}
	}

	fields := validation.Errors{
		"limit":  validation.Validate(limit, between(1, MaxLimit)),
		"offset": validation.Validate(offset, atLeast(0)),
	}
	if err := fields.Filter(); err != nil {
		return &users.ValidationError{Fields: err.(validation.Errors)}
	}

	page, err := h.svc.List(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	u, err := h.svc.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) create(c echo.Context) error {
	var in users.CreateUser
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return err
	}

	u, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var in users.UpdateUser
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return err
	}

	u, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type statsResponse struct {
	Hits                 int64   `json:"hits"`
	Misses               int64   `json:"misses"`
	DecodeFailures       int64   `json:"decode_failures"`
	Invalidations        int64   `json:"invalidations"`
	InvalidationFailures int64   `json:"invalidation_failures"`
	HitRatio             float64 `json:"hit_ratio"`
}

func (h *Handler) stats(c echo.Context) error {
	s := h.svc.Stats()
	return c.JSON(http.StatusOK, statsResponse{
		Hits:                 s.Hits,
		Misses:               s.Misses,
		DecodeFailures:       s.DecodeFailures,
		Invalidations:        s.Invalidations,
		InvalidationFailures: s.InvalidationFailures,
		HitRatio:             s.HitRatio(),
	})
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (h *Handler) healthz(c echo.Context) error {
	resp := healthResponse{Status: "ok", Components: map[string]string{}}
	status := http.StatusOK

	for name, err := range h.health.Health(c.Request().Context()) {
		if err != nil {
			resp.Status = "degraded"
			resp.Components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}
	return c.JSON(status, resp)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, invalid("id", "must be a valid UUID")
	}
	return id, nil
}

// decodeBody decodes a JSON object into dst. Unknown fields, trailing data
// and malformed JSON are validation failures.
func decodeBody(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return invalid("body", bodyError(err))
	}
	if dec.More() {
		return invalid("body", "must contain a single JSON object")
	}
	return nil
}

func bodyError(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.Is(err, io.EOF):
		return "must not be empty"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.As(err, &syntaxErr):
		return "must be valid JSON"
	}
	// json reports unknown fields as: json: unknown field "x"
	return strings.TrimPrefix(err.Error(), "json: ")
}

func between(lo, hi int) validation.Rule {
	return validation.By(func(value any) error {
		if n, _ := value.(int); n < lo || n > hi {
			return validation.NewError("validation_out_of_range", fmt.Sprintf("must be between %d and %d", lo, hi))
		}
		return nil
	})
}

func atLeast(lo int) validation.Rule {
	return validation.By(func(value any) error {
		if n, _ := value.(int); n < lo {
			return validation.NewError("validation_min_greater_equal_than_required", fmt.Sprintf("must be no less than %d", lo))
		}
		return nil
	})
}
