package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"gamelend/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// WriteError renders err as {"error": {"code", "message", "details"}} and
// logs it. Errors outside the apperr taxonomy become internal errors whose
// cause only reaches the log.
func WriteError(c *gin.Context, err error) {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "internal server error")
	}
	meta := apperr.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if meta.ShowMessage && typed.Message() != "" {
		msg = typed.Message()
	}
	body := H{"code": typed.Code(), "message": msg}
	if meta.DetailsAllowed && typed.Details() != nil {
		body["details"] = typed.Details()
	}

	log := LoggerFrom(c)
	ctx := log.WithFields(c.Request.Context(), map[string]any{
		"code":  string(typed.Code()),
		"chain": apperr.Chain(err),
	})
	if meta.HTTPStatus >= 500 {
		log.Error(ctx, "request.error", err)
	} else {
		log.Debug(ctx, "request.rejected")
	}
	c.AbortWithStatusJSON(meta.HTTPStatus, H{"error": body})
}

// BindJSON decodes the body into dst and writes a validation error when it
// does not fit. Returns false when the handler should stop.
func BindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		WriteError(c, BindingError(err))
		return false
	}
	return true
}

// BindingError converts gin binding failures into a validation error with
// per-field details.
func BindingError(err error) *apperr.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[jsonName(fe)] = describe(fe)
		}
		return apperr.Validation("validation failed").WithDetails(details)
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Validation("request body is required")
	case errors.As(err, &syntax):
		return apperr.Validation("malformed JSON")
	case errors.As(err, &typeErr):
		return apperr.Validation("validation failed").WithDetails(map[string]string{
			typeErr.Field: "must be " + typeErr.Type.String(),
		})
	}
	return apperr.Validation("invalid request body")
}

func jsonName(fe validator.FieldError) string {
	if name := fe.Field(); name != "" {
		return name
	}
	return fe.Namespace()
}

var tagNameOnce sync.Once

// useJSONFieldNames makes validator report fields by their json tag.
func useJSONFieldNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid e-mail address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a UUID"
	}
	return "is invalid"
}
