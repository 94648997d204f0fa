package access

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// AccessControllerRoutes holds the paths the controller mounts.
type AccessControllerRoutes struct {
	Impersonate     string
	ImpersonateStop string
	Logout          string
}

// AccessController exposes the impersonation and logout operations over HTTP.
// Everything it does goes through the resolver and the coordinator; no role
// logic lives here.
type AccessController struct {
	Debug       bool
	Logger      Logger
	Resolver    *Resolver
	Coordinator *LogoutCoordinator
	Routes      *AccessControllerRoutes
	Flash       FlashWriter
}

// FlashWriter decorates a response with a one-shot notification message.
type FlashWriter interface {
	Error(c router.Context, data router.ViewContext) router.Context
	Success(c router.Context, data router.ViewContext) router.Context
}

type routerFlash struct{}

func (routerFlash) Error(c router.Context, data router.ViewContext) router.Context {
	return flash.WithError(c, data)
}

func (routerFlash) Success(c router.Context, data router.ViewContext) router.Context {
	return flash.WithSuccess(c, data)
}

// NewAccessController returns a controller with the default routes.
func NewAccessController(resolver *Resolver, coordinator *LogoutCoordinator) *AccessController {
	return &AccessController{
		Logger:      defLogger{},
		Resolver:    resolver,
		Coordinator: coordinator,
		Flash:       routerFlash{},
		Routes: &AccessControllerRoutes{
			Impersonate:     "/admin/impersonate",
			ImpersonateStop: "/admin/impersonate/stop",
			Logout:          "/logout",
		},
	}
}

func (a *AccessController) flash() FlashWriter {
	if a.Flash == nil {
		return routerFlash{}
	}
	return a.Flash
}

// RegisterAccessRoutes mounts the controller on the router.
func RegisterAccessRoutes[T any](app router.Router[T], controller *AccessController) {
	app.Post(controller.Routes.Impersonate, controller.ImpersonatePost)
	app.Post(controller.Routes.ImpersonateStop, controller.ImpersonateStopPost)
	app.Post(controller.Routes.Logout, controller.LogoutPost)
}

// ImpersonatePayload is the form payload
type ImpersonatePayload struct {
	TargetUserID string `form:"target_user_id" json:"target_user_id"`
}

// Validate will validate the payload
func (p ImpersonatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TargetUserID, validation.Required, is.UUID),
	)
}

// ImpersonatePost opens an override for the requested client.
func (a *AccessController) ImpersonatePost(ctx router.Context) error {
	payload := new(ImpersonatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("impersonate parse payload", "error", err)
		return a.flash().Error(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Redirect("/admin", http.StatusSeeOther)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("impersonate validate payload", "error", err)
		return a.flash().Error(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Redirect("/admin", http.StatusSeeOther)
	}

	if _, err := a.Resolver.Impersonate(ctx.Context(), payload.TargetUserID); err != nil {
		a.Logger.Error("impersonate rejected", "error", err)
		return a.flash().Error(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Unable to impersonate user",
		}).Redirect("/admin", http.StatusSeeOther)
	}

	// The effective identity now points at the client; land on their view.
	return a.flash().Success(ctx, router.ViewContext{
		"system_message": "Impersonation started",
	}).Redirect("/", http.StatusSeeOther)
}

// ImpersonateStopPost returns to the admin panel. Idempotent.
func (a *AccessController) ImpersonateStopPost(ctx router.Context) error {
	if err := a.Resolver.StopImpersonation(ctx.Context()); err != nil {
		a.Logger.Error("impersonate stop failed", "error", err)
		return a.flash().Error(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Unable to stop impersonation",
		}).Redirect("/", http.StatusSeeOther)
	}

	return a.flash().Success(ctx, router.ViewContext{
		"system_message": "Returned to admin panel",
	}).Redirect("/admin", http.StatusSeeOther)
}

// LogoutPost runs the logout sequence, using the response itself as the
// history-replacing navigation.
func (a *AccessController) LogoutPost(ctx router.Context) error {
	return a.Coordinator.LogoutWith(ctx.Context(), routerNavigator{ctx: ctx})
}

// routerNavigator adapts a router context into the coordinator's Navigator.
type routerNavigator struct {
	ctx router.Context
}

func (n routerNavigator) Replace(path string) error {
	return n.ctx.Redirect(path, http.StatusSeeOther)
}
