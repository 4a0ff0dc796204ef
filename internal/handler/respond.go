package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fabianovilela/buymore/internal/domain/category"
	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/internal/domain/image"
	"github.com/fabianovilela/buymore/internal/domain/order"
	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/internal/domain/user"
)

const maxBodySize = 1 << 20

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ValidationError lists request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		keys = append(keys, k+" "+v)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

// writeJSON writes v with the given status. Encoding failures happen after
// the header is sent, so they are only logged.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("Write response",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Code: status, Message: msg})
}

// fail maps err to an HTTP status. Unknown errors are logged and answered
// with 500 without leaking their text.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *ValidationError
		couponErr     *coupon.InvalidError
		quantityErr   *order.InvalidQuantityError
		missingErr    *order.ProductNotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: "validation failed",
			Details: validationErr.Fields,
		})
		return
	case errors.As(err, &couponErr):
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: couponErr.Error(),
			Details: map[string]string{couponErr.Field: couponErr.Reason},
		})
		return
	case errors.As(err, &quantityErr), errors.As(err, &missingErr):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	status, known := statusOf(err)
	switch {
	case known == nil:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, status, http.StatusText(status))
	case status == http.StatusUnprocessableEntity:
		writeError(w, r, status, err.Error())
	default:
		writeError(w, r, status, known.Error())
	}
}

var statuses = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{
		coupon.ErrNotFound,
		order.ErrNotFound,
		order.ErrDiscountNotFound,
		product.ErrNotFound,
		category.ErrNotFound,
		user.ErrNotFound,
		image.ErrNotFound,
	}},
	{http.StatusConflict, []error{
		coupon.ErrCodeTaken,
		user.ErrEmailTaken,
		product.ErrInUse,
		user.ErrInUse,
	}},
	{http.StatusUnprocessableEntity, []error{
		product.ErrInvalid,
		category.ErrInvalid,
		user.ErrInvalid,
		order.ErrEmptyItems,
		order.ErrInvalidStatus,
		order.ErrInvalidUser,
		order.ErrNegativePrice,
		order.ErrDuplicateItems,
	}},
	{http.StatusRequestEntityTooLarge, []error{image.ErrTooLarge}},
	{http.StatusUnsupportedMediaType, []error{image.ErrUnsupportedType}},
}

// statusOf returns the HTTP status for err and the domain error it matched,
// or 500 and nil.
func statusOf(err error) (int, error) {
	for _, s := range statuses {
		for _, target := range s.errs {
			if errors.Is(err, target) {
				return s.status, target
			}
		}
	}
	return http.StatusInternalServerError, nil
}

// bind decodes the JSON body into dst and validates it.
func (h *Handler) bind(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ValidationError{Fields: map[string]string{"body": decodeReason(err)}}
	}
	return h.check(dst)
}

func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldReason(fe)
	}
	return &ValidationError{Fields: fields}
}

func decodeReason(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type)
	}
	if errors.Is(err, io.EOF) {
		return "must not be empty"
	}
	return err.Error()
}

func fieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email"
	case "uuid":
		return "must be a valid uuid"
	default:
		return "failed " + fe.Tag()
	}
}

// newValidator reports JSON field names and validates decimal amounts as
// numbers.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Fields: map[string]string{key: "must be a positive integer"}}
	}
	return id, nil
}
