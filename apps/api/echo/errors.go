package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
)

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "caller not authenticated")

var kindStatus = map[course.Kind]int{
	course.KindAuthorization: http.StatusForbidden,
	course.KindNotFound:      http.StatusNotFound,
	course.KindDuplicate:     http.StatusConflict,
	course.KindSequence:      http.StatusConflict,
	course.KindCapacity:      http.StatusConflict,
	course.KindState:         http.StatusConflict,
	course.KindTiming:        http.StatusConflict,
	course.KindFunds:         http.StatusPaymentRequired,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.IntegrityError is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *course.Error:
			code = kindStatus[origErr.Kind]
			message = echo.Map{"error": origErr.Msg, "kind": origErr.Kind.String()}
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateValidationErrors(origErr, translator)
		case *core.ValidationError:
			if fldErrs := origErr.FieldMap(); fldErrs != nil {
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			if ctx.Echo().Debug {
				message = err.Error()
			}

			args := []interface{}{errors.Wrap(err, msg)}
			if identity, iErr := getContextIdentity(ctx); iErr == nil {
				args = append(args, core.Caller(identity))
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
