package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fundisha/backend/core/payment"
)

type paymentApi struct {
	svc payment.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc payment.Service) {
	api := paymentApi{svc: svc}

	pg := g.Group("/payments")

	// the provider redirects the payer here after checkout; no auth
	pg.GET("/verify/:ref", api.verify)

	ag := pg.Group("", jwt)
	ag.POST("/assignments/:id/initialize", api.initialize, studentMiddleware())
}

// Handlers

func (api *paymentApi) initialize(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Start(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *paymentApi) verify(ctx echo.Context) error {
	ass, err := api.svc.Confirm(ctx.Request().Context(), ctx.Param("ref"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}
