package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pavel8512/hhpilot/api/http/handlers"
)

// Register wires all HTTP routes onto given Fiber app.
func Register(
	app *fiber.App,
	authMW fiber.Handler,
	auth *handlers.AuthHandler,
	health *handlers.HealthHandler,
	searches *handlers.SearchHandler,
	responses *handlers.ResponseHandler,
	resumes *handlers.ResumeHandler,
) {
	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Health and readiness endpoints for probes/monitoring
	v1.Get("/health", health.Health)
	v1.Get("/ready", health.Ready)

	a := v1.Group("/auth")
	a.Post("/register", auth.Register)
	a.Post("/login", auth.Login)

	me := v1.Group("/me", authMW)
	me.Get("/", auth.Me)
	me.Put("/platform-token", auth.SetPlatformToken)

	sg := v1.Group("/searches", authMW)
	sg.Post("/", searches.Create)
	sg.Get("/", searches.List)
	sg.Get("/:id", searches.Get)
	sg.Put("/:id", searches.Update)
	sg.Delete("/:id", searches.Delete)
	sg.Post("/:id/pause", searches.Pause)
	sg.Post("/:id/resume", searches.Resume)
	sg.Post("/:id/reactivate", searches.Reactivate)
	sg.Post("/:id/run", searches.Run)

	rg := v1.Group("/responses", authMW)
	rg.Get("/", responses.List)
	rg.Get("/stats", responses.Stats)
	rg.Post("/sync", responses.Sync)
	rg.Get("/:id", responses.Get)

	rs := v1.Group("/resumes", authMW)
	rs.Post("/", resumes.Create)
	rs.Get("/", resumes.List)
	rs.Post("/:id/primary", resumes.SetPrimary)
	rs.Delete("/:id", resumes.Delete)
}
