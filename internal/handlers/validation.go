package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/response"
	appValidator "github.com/charlesng35/authcore/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When binding or validation fails, an error response is written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("Invalid request body"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, err)
		return false
	}

	return true
}

// requiredQuery reads a mandatory query parameter. A missing value renders the
// validation envelope keyed by the parameter name.
func requiredQuery(c *gin.Context, key string) (string, bool) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		response.Validation(c, map[string][]string{
			key: {appValidator.ValidationError{Field: key, Tag: "required"}.Message()},
		})
		return "", false
	}
	return value, true
}
