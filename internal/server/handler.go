package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/internal/session"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// Handler serves the session API.
type Handler struct {
	registry *session.Registry
	log      zerolog.Logger
}

// NewHandler creates the session API handler.
func NewHandler(registry *session.Registry, log zerolog.Logger) *Handler {
	return &Handler{registry: registry, log: log}
}

// RegisterRoutes mounts the session endpoints on the given group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.PUT("/sessions/:id/answers/:linkId", h.UpdateAnswer)
	api.POST("/sessions/:id/validate", h.ValidateSession)
	api.GET("/sessions/:id/response", h.GetResponse)
	api.GET("/sessions/:id/extract", h.ExtractData)
	api.GET("/sessions/:id/stream", h.StreamState)
}

type createSessionRequest struct {
	Questionnaire json.RawMessage        `json:"questionnaire"`
	Subject       *questionnaire.Subject `json:"subject,omitempty"`
}

type updateAnswerRequest struct {
	Value *jsontree.Node `json:"value"`
}

type stateDTO struct {
	Response         *questionnaire.Response         `json:"response"`
	VisibleItems     []questionnaire.Item            `json:"visibleItems"`
	ValidationErrors []questionnaire.ValidationError `json:"validationErrors"`
	CalculatedValues map[string]any                  `json:"calculatedValues"`
	IsValid          bool                            `json:"isValid"`
}

type sessionDTO struct {
	SessionID       string   `json:"sessionId"`
	QuestionnaireID string   `json:"questionnaireId"`
	State           stateDTO `json:"state"`
}

func toStateDTO(s session.State) stateDTO {
	resp := s.Response
	errs := s.ValidationErrors
	if errs == nil {
		errs = []questionnaire.ValidationError{}
	}
	visible := s.VisibleItems
	if visible == nil {
		visible = []questionnaire.Item{}
	}
	return stateDTO{
		Response:         &resp,
		VisibleItems:     visible,
		ValidationErrors: errs,
		CalculatedValues: s.CalculatedValues,
		IsValid:          s.IsValid,
	}
}

// CreateSession parses the submitted questionnaire and starts a session.
func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Questionnaire) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "questionnaire is required")
	}

	q, err := questionnaire.Parse(req.Questionnaire)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	opts := []session.Option{session.WithLogger(h.log)}
	if req.Subject != nil {
		opts = append(opts, session.WithSubject(req.Subject))
	}
	s := h.registry.Create(q, opts...)

	h.log.Info().Str("session_id", s.ID).Str("questionnaire_id", q.ID).Msg("session created")
	return c.JSON(http.StatusCreated, sessionDTO{
		SessionID:       s.ID,
		QuestionnaireID: q.ID,
		State:           toStateDTO(s.Manager.State()),
	})
}

// GetSession returns the current state snapshot.
func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionDTO{
		SessionID:       s.ID,
		QuestionnaireID: s.Manager.State().Response.QuestionnaireID,
		State:           toStateDTO(s.Manager.State()),
	})
}

// DeleteSession closes a session.
func (h *Handler) DeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.registry.Delete(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateAnswer applies one answer mutation and returns the new state. A JSON
// null value (or an absent value field) clears the answer.
func (h *Handler) UpdateAnswer(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req updateAnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	state := s.Manager.UpdateAnswer(c.Param("linkId"), req.Value)
	return c.JSON(http.StatusOK, toStateDTO(state))
}

// ValidateSession runs an on-demand full validation pass.
func (h *Handler) ValidateSession(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	errs := s.Manager.Validate()
	if errs == nil {
		errs = []questionnaire.ValidationError{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"isValid": len(errs) == 0,
		"errors":  errs,
	})
}

// GetResponse exports the canonical response document.
func (h *Handler) GetResponse(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Manager.GetResponse())
}

// ExtractData exports the template-projected document; 404 when the
// questionnaire defines no extraction template.
func (h *Handler) ExtractData(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	extracted := s.Manager.ExtractData()
	if extracted == nil {
		return echo.NewHTTPError(http.StatusNotFound, "questionnaire has no extraction template")
	}
	return c.JSONBlob(http.StatusOK, mustMarshal(extracted))
}

func (h *Handler) lookup(c echo.Context) (*session.Session, error) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return nil, err
	}
	return s, nil
}

func mustMarshal(n *jsontree.Node) []byte {
	b, err := n.MarshalJSON()
	if err != nil {
		return []byte("null")
	}
	return b
}
