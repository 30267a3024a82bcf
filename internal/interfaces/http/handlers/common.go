package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

// maxBodyBytes caps request bodies decoded by the handlers.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  map[string]string      `json:"fields,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAppError maps err to its HTTP status. AppErrors keep their code,
// message, field map and metadata; anything else is masked as internal.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		logger.Error("unhandled error", logging.Err(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
			Code:    string(errors.ErrCodeInternal),
			Message: errors.DefaultMessageForCode(errors.ErrCodeInternal),
		}})
		return
	}

	status := errors.HTTPStatusForCode(appErr.Code)
	body := ErrorBody{Code: string(appErr.Code), Message: appErr.Message, Fields: appErr.Fields, Meta: appErr.Meta}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logging.String("code", string(appErr.Code)), logging.Err(err))
		body.Message = errors.DefaultMessageForCode(appErr.Code)
		body.Meta = nil
	}
	if status == http.StatusTooManyRequests {
		if v, ok := appErr.Meta["retry_after_seconds"]; ok {
			if n, ok := v.(int); ok {
				w.Header().Set("Retry-After", strconv.Itoa(n))
			}
		}
	}
	writeJSON(w, status, ErrorResponse{Error: body})
}

// decode reads a JSON body into dst and runs the struct validation tags.
// An empty body is accepted when dst has no required fields.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "corps de requête invalide")
	}
	return validateStruct(dst)
}

func validateStruct(dst interface{}) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "requête invalide")
	}
	appErr := errors.New(errors.ErrCodeValidation, "requête invalide")
	for _, fe := range verrs {
		appErr = appErr.WithField(fe.Field(), ruleMessage(fe))
	}
	return appErr
}

const requiredMessage = "Ce champ est requis"

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return requiredMessage
	case "email":
		return "Adresse email invalide"
	case "gt":
		return "Doit être supérieur à " + fe.Param()
	case "gte":
		return "Doit être supérieur ou égal à " + fe.Param()
	case "min":
		return "Doit contenir au moins " + fe.Param() + " caractères"
	case "max":
		return "Doit contenir au plus " + fe.Param() + " caractères"
	default:
		return fe.Tag()
	}
}

// Date is a calendar day in a JSON body, written "2006-01-02".
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return errors.New(errors.ErrCodeBadRequest, "date invalide, format attendu AAAA-MM-JJ").WithDetail(s)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

// requireDate rejects a date sent as "" or null, which the required rule lets
// through because the pointer is set.
func requireDate(field string, d *Date) (time.Time, error) {
	t := d.ptr()
	if t == nil {
		return time.Time{}, errors.New(errors.ErrCodeValidation, "requête invalide").
			WithField(field, requiredMessage)
	}
	return *t, nil
}

// ptr returns nil for a nil or zero date.
func (d *Date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
