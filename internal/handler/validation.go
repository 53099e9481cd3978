package handler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"market-radar/internal/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	symbolPattern = regexp.MustCompile(`^[A-Z0-9.-]{1,10}$`)
	registerOnce  sync.Once
)

type symbolURI struct {
	Symbol string `uri:"symbol" binding:"required,symbol"`
}

type historyQuery struct {
	OutputSize string `form:"outputsize" binding:"omitempty,oneof=compact full"`
}

type movingAveragesQuery struct {
	Periods string `form:"periods" binding:"omitempty,periods"`
}

type searchQuery struct {
	Keywords string `form:"keywords" binding:"required,max=100"`
}

type quotesQuery struct {
	Symbols string `form:"symbols" binding:"required,symbols"`
}

type earningsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=20"`
}

// registerValidations adds the symbol, symbols and periods tags to gin's
// validator engine.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
			return validSymbol(fl.Field().String())
		})
		_ = v.RegisterValidation("symbols", func(fl validator.FieldLevel) bool {
			for _, s := range splitList(fl.Field().String()) {
				if !validSymbol(s) {
					return false
				}
			}
			return true
		})
		_ = v.RegisterValidation("periods", func(fl validator.FieldLevel) bool {
			_, err := parsePeriods(fl.Field().String())
			return err == nil
		})
	})
}

// validSymbol accepts tickers case-insensitively; they are upper-cased downstream.
func validSymbol(s string) bool {
	return symbolPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePeriods reads a comma separated list of positive integers.
func parsePeriods(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	periods := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid period %q", part)
		}
		periods = append(periods, n)
	}
	return periods, nil
}

var tagMessages = map[string]string{
	"required": "is required",
	"symbol":   "must be 1-10 characters of A-Z, 0-9, '.' or '-'",
	"symbols":  "must be a comma separated list of valid symbols",
	"periods":  "must be comma separated positive integers",
	"oneof":    "must be one of: %s",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
}

// bindingError turns gin binding failures into a ValidationError.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		msg = "is invalid"
	}
	if strings.Contains(msg, "%s") {
		msg = fmt.Sprintf(msg, fe.Param())
	}
	return &domain.ValidationError{Field: fieldName(fe), Message: msg}
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "OutputSize":
		return "outputsize"
	default:
		return strings.ToLower(fe.Field())
	}
}
