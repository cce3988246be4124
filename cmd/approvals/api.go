package main

import (
	"context"
	"strconv"

	"github.com/dukex/approvals/pkg/cmd"
	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/log"
	"github.com/dukex/approvals/pkg/permissions"
	"github.com/dukex/approvals/pkg/routing"
	"github.com/dukex/approvals/pkg/services"
	"github.com/dukex/approvals/pkg/web"
	"github.com/dukex/approvals/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v3"
)

type API struct {
	engine         *engine
	permissions    permissions.Config
	defaultChainID string
	validate       *validator.Validate
}

func NewAPI(e *engine, config permissions.Config, defaultChainID string) *API {
	return &API{
		engine:         e,
		permissions:    config,
		defaultChainID: defaultChainID,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	e := a.engine
	evaluator := conditions.NewEvaluator(e.logger)
	router := routing.NewEngine(e.persistence.RuleRepository(), e.documents, evaluator, e.logger)

	progressor := workflow.NewProgressor(workflow.Dependencies{
		Requests:    e.persistence.RequestRepository(),
		Actions:     e.persistence.ActionRepository(),
		Chains:      e.persistence.ChainRepository(),
		Documents:   e.documents,
		Conditions:  evaluator,
		SideEffects: cmd.NewRegistry(e.logger, e.documents),
		Notifier:    e.notifier,
		Audit:       e.audit,
		Metrics:     e.metrics,
		Tracer:      e.tracer,
		Logger:      e.logger,
	})

	handlers := web.NewAPIHandlers(
		services.NewChains(e.persistence, e.logger),
		services.NewRules(e.persistence, router, e.logger),
		services.NewRequests(services.RequestsDependencies{
			Persistence:    e.persistence,
			Router:         router,
			Guard:          permissions.NewGuard(a.permissions, e.identities, e.logger),
			Progressor:     progressor,
			DefaultChainID: a.defaultChainID,
			Documents:      e.documents,
			Logger:         e.logger,
		}),
		e.persistence,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvals API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})))

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}

func runAPI(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Approvals API")

	e, err := newEngine(ctx, command, logger)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	err = e.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	api := NewAPI(e, permissions.Config{
		AdminUserID: command.String("admin-user-id"),
		AdminRole:   command.String("admin-role"),
	}, command.String("default-chain-id"))

	err = api.Start(command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "API server stopped", "error", err)

		return err
	}

	return nil
}
