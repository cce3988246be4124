package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	chains      *services.Chains
	rules       *services.Rules
	requests    *services.Requests
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	chains *services.Chains,
	rules *services.Rules,
	requests *services.Requests,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		chains:      chains,
		rules:       rules,
		requests:    requests,
		persistence: persistence,
		validator:   validator,
	}
}

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	chains := router.Group("/chains")
	chains.Post("/", h.CreateChain)
	chains.Get("/", h.GetChains)
	chains.Get("/:id", h.GetChain)
	chains.Post("/:id/steps", h.AddStep)
	chains.Put("/:id/steps/order", h.ReorderSteps)
	chains.Post("/:id/activate", h.ActivateChain)
	chains.Post("/:id/disable", h.DisableChain)

	rules := router.Group("/rules")
	rules.Post("/", h.CreateRule)
	rules.Get("/", h.GetRules)
	rules.Post("/preview", h.PreviewRoute)
	rules.Put("/:id", h.UpdateRule)
	rules.Post("/:id/deactivate", h.DeactivateRule)

	requests := router.Group("/requests")
	requests.Post("/", h.CreateRequest)
	requests.Get("/", h.GetRequests)
	requests.Post("/submit", h.SubmitDocument)
	requests.Get("/:id", h.GetRequest)
	requests.Get("/:id/actions", h.GetActions)
	requests.Post("/:id/actions", h.Act)
	requests.Post("/:id/cancel", h.CancelRequest)
	requests.Post("/:id/resume", h.ResumeRequest)
	requests.Get("/:id/metrics", h.GetMetrics)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	check := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

var errInvalidJSON = errors.New("invalid JSON format")

// bind decodes the JSON body into req and validates it. It writes nothing;
// callers answer a failure with badRequest.
func (h *APIHandlers) bind(c fiber.Ctx, req any) error {
	if err := c.Bind().JSON(req); err != nil {
		return errInvalidJSON
	}

	return h.validator.Struct(req)
}

func userID(c fiber.Ctx) string {
	return c.Get(UserHeader)
}

func (h *APIHandlers) CreateChain(c fiber.Ctx) error {
	var req CreateChainRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.chains.Create(c.Context(), req.toChain())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetChains(c fiber.Ctx) error {
	chains, err := h.chains.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(chains)
}

func (h *APIHandlers) GetChain(c fiber.Ctx) error {
	chain, err := h.chains.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(chain)
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	var req StepRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	chain, err := h.chains.AddStep(c.Context(), c.Params("id"), req.toStep())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(chain)
}

func (h *APIHandlers) ReorderSteps(c fiber.Ctx) error {
	var req ReorderStepsRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	chain, err := h.chains.ReorderSteps(c.Context(), c.Params("id"), req.StepIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(chain)
}

func (h *APIHandlers) ActivateChain(c fiber.Ctx) error {
	chain, err := h.chains.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(chain)
}

func (h *APIHandlers) DisableChain(c fiber.Ctx) error {
	chain, err := h.chains.Disable(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(chain)
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var req RuleRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.rules.Create(c.Context(), req.toRule())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *APIHandlers) UpdateRule(c fiber.Ctx) error {
	var req RuleRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.rules.Update(c.Context(), c.Params("id"), req.toRule())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	rules, err := h.rules.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rules)
}

func (h *APIHandlers) DeactivateRule(c fiber.Ctx) error {
	rule, err := h.rules.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) PreviewRoute(c fiber.Ctx) error {
	var req PreviewRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	decision, err := h.rules.Preview(c.Context(), req.Metadata)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(decision)
}

func (h *APIHandlers) CreateRequest(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	var req CreateRequestRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.requests.Create(c.Context(), services.CreateRequestInput{
		DocumentID:  req.DocumentID,
		ChainID:     req.ChainID,
		RequesterID: user,
		Priority:    req.Priority,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) SubmitDocument(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	var req SubmitDocumentRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.requests.Submit(c.Context(), services.SubmitInput{
		DocumentID:  req.DocumentID,
		RequesterID: user,
		Priority:    req.Priority,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetRequests(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	filter := persistence.RequestFilter{
		Status:      models.RequestStatus(c.Query("status")),
		ChainID:     c.Query("chain_id"),
		RequesterID: c.Query("requester_id"),
		AssignedTo:  c.Query("assigned_to"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return badRequest(c, "Invalid query parameters: limit must be a positive integer")
		}

		filter.Limit = limit
	}

	requests, err := h.requests.List(c.Context(), user, filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(requests)
}

func (h *APIHandlers) GetRequest(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	request, err := h.requests.Get(c.Context(), user, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	actions, err := h.requests.Actions(c.Context(), user, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(actions)
}

func (h *APIHandlers) Act(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	var req ActionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.requests.Act(c.Context(), user, c.Params("id"), services.ActInput{
		Action:      req.Action,
		Comments:    req.Comments,
		Annotations: req.Annotations,
		DelegateTo:  req.DelegateTo,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) CancelRequest(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	request, err := h.requests.Cancel(c.Context(), user, c.Params("id"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) ResumeRequest(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	request, err := h.requests.Resume(c.Context(), user, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) GetMetrics(c fiber.Ctx) error {
	user := userID(c)
	if user == "" {
		return unauthorized(c)
	}

	metrics, err := h.requests.Metrics(c.Context(), user, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(metrics)
}
