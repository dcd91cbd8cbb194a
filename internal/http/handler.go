package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/internal/query"
	repository "taskboard.com/taskboard/internal/repositories"
	"taskboard.com/taskboard/internal/services"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

type Handler struct {
	backend *services.Backend
}

func NewHandler(backend *services.Backend) *Handler {
	return &Handler{
		backend: backend,
	}
}

func (h *Handler) ListTasks(c echo.Context) error {
	opts, include, err := parseListQuery(c)
	if err != nil {
		return respondError(err)
	}

	page, err := h.backend.ListTasks(c.Request().Context(), opts, include)
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusOK, page)
}

func (h *Handler) CreateTask(c echo.Context) error {
	var in model.TaskInput
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
		return respondError(apperrors.ErrInvalidJSON)
	}

	task, err := h.backend.CreateTask(c.Request().Context(), in)
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusCreated, task)
}

func (h *Handler) UpdateTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return respondError(err)
	}

	var in model.TaskInput
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
		return respondError(apperrors.ErrInvalidJSON)
	}

	task, err := h.backend.UpdateTask(c.Request().Context(), id, in)
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return respondError(err)
	}

	if err := h.backend.DeleteTask(c.Request().Context(), id); err != nil {
		return respondError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.backend.ListUsers(c.Request().Context())
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusOK, users)
}

func taskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ErrTaskIDRequired
	}
	return id, nil
}

// parseListQuery reads include, page, limit, status and assignee. Missing
// values fall back to the client defaults.
func parseListQuery(c echo.Context) (repository.ListOptions, bool, error) {
	opts := repository.ListOptions{Page: query.DefaultPage, Limit: query.DefaultLimit}

	if raw := c.QueryParam("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page <= 0 {
			return opts, false, apperrors.ErrInvalidPage
		}
		opts.Page = page
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return opts, false, apperrors.ErrInvalidLimit
		}
		opts.Limit = limit
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := constants.TaskStatus(raw)
		if !status.Valid() {
			return opts, false, apperrors.NewValidationError("status", "status must be one of TO_DO, IN_PROGRESS, COMPLETED")
		}
		opts.Status = status
	}
	if raw := c.QueryParam("assignee"); raw != "" {
		assignee, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || assignee <= 0 {
			return opts, false, apperrors.NewValidationError("assignee", "assignee must be a positive id")
		}
		opts.Assignee = assignee
	}

	return opts, c.QueryParam("include") == "subtasks", nil
}

// respondError maps service errors to HTTP errors. Unknown errors are logged
// and hidden behind a generic message.
func respondError(err error) error {
	status := apperrors.StatusCode(err)
	var validationErr *apperrors.ValidationError
	var exception *apperrors.Exception
	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(status, validationErr.Message)
	case errors.As(err, &exception):
		return echo.NewHTTPError(status, exception.Message)
	}
	log.Printf("request failed: %v", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
