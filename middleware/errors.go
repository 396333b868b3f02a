package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"wayfarer/apperror"
	"wayfarer/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var dupKeyField = regexp.MustCompile(`dup key: \{ ?"?([A-Za-z0-9_.]+)"?:`)

// ErrorHandler writes the last error recorded on the context as the JSON
// failure body. Handlers record errors with c.Error and abort.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, body := resolveError(err)
		if status >= http.StatusInternalServerError {
			logger.Log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			}).Error("Request failed")
		}
		c.JSON(status, body)
	}
}

func resolveError(err error) (int, gin.H) {
	var (
		appErr    *apperror.Error
		verrs     validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		writeErr  mongo.WriteException
	)

	switch {
	case errors.As(err, &verrs):
		messages := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			messages = append(messages, fieldMessage(fe))
		}
		return http.StatusBadRequest, gin.H{"success": false, "error": strings.Join(messages, ", "), "errors": messages}
	case errors.As(err, &appErr):
		if appErr.Status >= http.StatusInternalServerError && appErr.Status != http.StatusServiceUnavailable {
			return appErr.Status, failure("Internal server error")
		}
		return appErr.Status, failure(appErr.Message)
	case errors.Is(err, primitive.ErrInvalidHex):
		return http.StatusBadRequest, failure("Invalid id")
	case mongo.IsDuplicateKeyError(err):
		field := "value"
		if errors.As(err, &writeErr) && len(writeErr.WriteErrors) > 0 {
			if m := dupKeyField.FindStringSubmatch(writeErr.WriteErrors[0].Message); m != nil {
				field = m[1]
			}
		}
		return http.StatusBadRequest, failure("Duplicate field value: " + field)
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return http.StatusBadRequest, failure("Malformed JSON body")
	case errors.As(err, &typeErr):
		return http.StatusBadRequest, failure(fmt.Sprintf("%s has the wrong type", typeErr.Field))
	case errors.Is(err, io.EOF):
		return http.StatusBadRequest, failure("Request body is required")
	case errors.Is(err, jwt.ErrTokenExpired):
		return http.StatusUnauthorized, failure("Token expired")
	case isJWTError(err):
		return http.StatusUnauthorized, failure("Invalid token")
	case errors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound, failure("Resource not found")
	}
	return http.StatusInternalServerError, failure("Internal server error")
}

func isJWTError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenNotValidYet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func failure(message string) gin.H {
	return gin.H{"success": false, "error": message}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "objectid":
		return field + " must be a valid id"
	case "resourcetype":
		return field + " must be one of: blog, destination, guide, photo"
	case "hexcolor":
		return field + " must be a hex colour"
	case "url":
		return field + " must be a valid URL"
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}

// NotFound answers unmatched routes.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, failure("Route not found: "+c.Request.URL.Path))
	}
}
