package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/pkg/logger"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
)

var registerOnce sync.Once

// RegisterValidation makes gin's validator report fields by their JSON names.
func RegisterValidation() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	})
}

// getUserID 读取认证中间件写入的 user_id
func getUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	id, ok := v.(int64)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ContextUser); ok {
		if u, ok := v.(*model.User); ok {
			return u
		}
	}
	return nil
}

// pathID parses the :id route parameter. Non-numeric ids cannot exist and are reported as not found.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
		return 0, false
	}
	return id, true
}

// respondError maps service errors onto status codes and JSON bodies.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var (
		verr *apperr.ValidationError
		bad  *apperr.BadRequestError
		nf   *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": verr.Fields})
	case errors.As(err, &bad):
		c.JSON(http.StatusBadRequest, gin.H{"error": bad.Message})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrUnauthorized.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		logger.WithTrace(c.Request.Context(), log).Info("Permission denied",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": apperr.ErrForbidden.Error()})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Message})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
	default:
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindJSON decodes the request body into obj and runs its binding tags.
// An empty body decodes as an empty object.
func bindJSON(c *gin.Context, obj any) error {
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(obj)
	}
	if err != nil {
		return translateBindError(err)
	}
	return nil
}

func translateBindError(err error) error {
	var (
		ves     validator.ValidationErrors
		typeErr *json.UnmarshalTypeError
		synErr  *json.SyntaxError
	)
	switch {
	case errors.As(err, &ves):
		verr := &apperr.ValidationError{}
		for _, fe := range ves {
			verr.Add(fe.Field(), validationMessage(fe))
		}
		return verr
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apperr.Invalid(typeErr.Field, "Incorrect type. Expected "+typeErr.Type.String()+".")
	case errors.As(err, &synErr):
		return apperr.BadRequest(fmt.Sprintf("JSON parse error - %v", synErr))
	}
	return apperr.BadRequest("Malformed request: " + err.Error())
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "oneof":
		return fmt.Sprintf("\"%v\" is not a valid choice.", fe.Value())
	case "email":
		return "Enter a valid email address."
	case "eqfield":
		return "Password fields didn't match."
	case "hexcolor":
		return "Enter a color in #RRGGBB format."
	case "gt":
		return fmt.Sprintf("Ensure this value is greater than %s.", fe.Param())
	}
	return "Invalid value."
}
