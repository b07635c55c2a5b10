package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/assignment"
)

type assignmentApi struct {
	svc     assignment.Service
	storage core.FileStorage
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc assignment.Service, storage core.FileStorage) {
	api := assignmentApi{
		svc:     svc,
		storage: storage,
	}

	ag := g.Group("/assignments", jwt)

	ag.POST("", api.submit, studentMiddleware())
	ag.GET("", api.query)
	ag.GET("/open", api.openQueue, tutorMiddleware())

	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/open", api.openForClaim, adminMiddleware())
	dg.POST("/assign", api.assign, adminMiddleware())
	dg.POST("/claim", api.claim, tutorMiddleware())
	dg.POST("/price", api.price, tutorMiddleware())
	dg.POST("/reject", api.reject, tutorMiddleware())
	dg.POST("/complete", api.complete, tutorMiddleware())
	dg.POST("/mark-paid", api.markPaid)
	dg.GET("/file", api.downloadSubmission)
	dg.GET("/completed-file", api.downloadCompleted)
}

// Handlers

// submit takes a multipart form: title, description, specialty and the
// assignment brief as "file".
func (api *assignmentApi) submit(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	data := assignment.NewAssignment{
		Title:       ctx.FormValue("title"),
		Description: ctx.FormValue("description"),
		Specialty:   ctx.FormValue("specialty"),
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "assignment file is required"})
	}
	if data.FileURL, err = saveUpload(ctx, api.storage, "submissions", fh); err != nil {
		return errors.Wrap(err, "saving submission file")
	}

	ass, err := api.svc.Submit(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, ass)
}

func (api *assignmentApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	filter := new(assignment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assignment.Assignment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	asses, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if asses == nil {
		asses = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asses)
}

func (api *assignmentApi) openQueue(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	asses, err := api.svc.OpenQueue(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	if asses == nil {
		asses = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asses)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	ass, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *assignmentApi) openForClaim(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	ass, err := api.svc.OpenForClaim(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *assignmentApi) assign(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data AssignRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ass, err := api.svc.Assign(ctx.Request().Context(), actor, ctx.Param("id"), data.TutorID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *assignmentApi) claim(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	ass, err := api.svc.Claim(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *assignmentApi) price(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data PriceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PriceRequest")
	}

	ass, err := api.svc.ReviewAndPrice(ctx.Request().Context(), actor, ctx.Param("id"), data.Price)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *assignmentApi) reject(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	ass, err := api.svc.Reject(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

// complete takes the solved work as multipart "file"; it stays gated
// behind payment for the student.
func (api *assignmentApi) complete(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "completed file is required"})
	}
	fileURL, err := saveUpload(ctx, api.storage, "solutions", fh)
	if err != nil {
		return errors.Wrap(err, "saving completed file")
	}

	ass, err := api.svc.Complete(ctx.Request().Context(), actor, ctx.Param("id"), fileURL)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *assignmentApi) markPaid(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	ass, err := api.svc.MarkPaid(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *assignmentApi) downloadSubmission(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	url, err := api.svc.SubmissionURL(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, url)
}

func (api *assignmentApi) downloadCompleted(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	url, err := api.svc.CompletedURL(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, url)
}

type (
	AssignRequest struct {
		TutorID string `json:"tutor_id" validate:"required"`
	}

	PriceRequest struct {
		Price float64 `json:"price"`
	}
)

func (ar *AssignRequest) Validate() error {
	ar.TutorID = core.CleanString(ar.TutorID)
	return core.Validate.Struct(ar)
}
