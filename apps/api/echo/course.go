package echoapi

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
)

type courseApi struct {
	svc      *course.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, svc *course.Service, validate *validator.Validate) {
	api := courseApi{
		svc:      svc,
		validate: validate,
	}

	g.POST("/authority", api.initialize)
	g.GET("/authority", api.retrieveAuthority)

	cg := g.Group("/courses")
	cg.POST("", api.create)
	cg.GET("", api.query)

	// detail endpoints
	dg := cg.Group("/:title")
	dg.GET("", api.status)
	dg.POST("/register", api.register)
	dg.POST("/withdraw", api.withdraw)
	dg.GET("/escrow", api.retrieveEscrow)
	dg.GET("/attendance/:participant", api.retrieveAttendance)

	lg := dg.Group("/lessons")
	lg.POST("", api.createLesson)
	lg.GET("", api.queryLessons)
	lg.GET("/:seq", api.retrieveLesson)
	lg.POST("/:seq/attendance", api.markAttendance)
}

type initializeRequest struct {
	Manager string `json:"manager"`
}

type registerRequest struct {
	Amount uint64 `json:"amount"`
}

type newLessonRequest struct {
	SequenceNumber     int       `json:"sequence_number"`
	AttendanceDeadline time.Time `json:"attendance_deadline" validate:"required"`
}

func pathParam(ctx echo.Context, name string) string {
	p := ctx.Param(name)
	if unescaped, err := url.PathUnescape(p); err == nil {
		return unescaped
	}
	return p
}

func seqParam(ctx echo.Context) (int, error) {
	seq, err := strconv.Atoi(ctx.Param("seq"))
	if err != nil {
		return 0, core.NewFieldError("seq", "seq must be a number")
	}
	return seq, nil
}

// Handlers

func (api *courseApi) initialize(ctx echo.Context) error {
	caller, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var data initializeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to initializeRequest")
	}

	auth, err := api.svc.Initialize(ctx.Request().Context(), course.NewAuthority{Admin: caller, Manager: data.Manager})
	if err != nil {
		return errors.Wrap(err, "initializing authority")
	}
	return ctx.JSON(http.StatusCreated, auth)
}

func (api *courseApi) retrieveAuthority(ctx echo.Context) error {
	auth, err := api.svc.GetAuthority(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting authority")
	}
	return ctx.JSON(http.StatusOK, auth)
}

func (api *courseApi) create(ctx echo.Context) error {
	caller, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), caller, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) query(ctx echo.Context) error {
	courses, err := api.svc.QueryCourses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) status(ctx echo.Context) error {
	st, err := api.svc.CourseStatus(ctx.Request().Context(), pathParam(ctx, "title"))
	if err != nil {
		return errors.Wrap(err, "getting course status")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *courseApi) register(ctx echo.Context) error {
	caller, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var data registerRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to registerRequest")
	}

	c, err := api.svc.RegisterParticipant(ctx.Request().Context(), pathParam(ctx, "title"), caller, data.Amount)
	if err != nil {
		return errors.Wrap(err, "registering participant")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) createLesson(ctx echo.Context) error {
	caller, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	var data newLessonRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to newLessonRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	l, err := api.svc.CreateLesson(ctx.Request().Context(), caller, pathParam(ctx, "title"), data.SequenceNumber, data.AttendanceDeadline)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *courseApi) queryLessons(ctx echo.Context) error {
	lessons, err := api.svc.QueryLessons(ctx.Request().Context(), pathParam(ctx, "title"))
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) retrieveLesson(ctx echo.Context) error {
	seq, err := seqParam(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.GetLesson(ctx.Request().Context(), pathParam(ctx, "title"), seq)
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *courseApi) markAttendance(ctx echo.Context) error {
	caller, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	seq, err := seqParam(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.MarkAttendance(ctx.Request().Context(), pathParam(ctx, "title"), seq, caller)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseApi) retrieveAttendance(ctx echo.Context) error {
	a, err := api.svc.GetAttendance(ctx.Request().Context(), pathParam(ctx, "title"), pathParam(ctx, "participant"))
	if err != nil {
		return errors.Wrap(err, "getting attendance")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseApi) withdraw(ctx echo.Context) error {
	caller, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.Withdraw(ctx.Request().Context(), pathParam(ctx, "title"), caller)
	if err != nil {
		return errors.Wrap(err, "withdrawing deposit")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseApi) retrieveEscrow(ctx echo.Context) error {
	escrow, err := api.svc.GetEscrow(ctx.Request().Context(), pathParam(ctx, "title"))
	if err != nil {
		return errors.Wrap(err, "getting escrow")
	}
	return ctx.JSON(http.StatusOK, escrow)
}
