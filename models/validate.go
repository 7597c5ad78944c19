package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/unified_backend/utils"
)

var validate = validator.New()

// ValidationError carries the failing field -> rule map from validator.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func validateModel(obj interface{}) error {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return &ValidationError{Fields: utils.ProcessValidationErrors(err)}
	}
	return err
}
