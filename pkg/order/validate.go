package order

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError lists every invalid field of a rejected order.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid order: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

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
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return f.Interface().(decimal.Decimal).String()
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return f.Interface().(common.Hash).Hex()
	}, common.Hash{})

	mustRegister(v, "positive_amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	mustRegister(v, "nonzero_hash", func(fl validator.FieldLevel) bool {
		return common.HexToHash(fl.Field().String()) != (common.Hash{})
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("order: register %s: %v", tag, err))
	}
}

// ValidateSubmission checks a signed order before it is accepted into the
// registry. It returns a *ValidationError naming every bad field.
func ValidateSubmission(o *Order, now time.Time) error {
	verr := &ValidationError{}

	if err := validate.Struct(o.Intent); err != nil {
		collect(verr, "order", err)
	}
	if err := validate.Struct(o.Commitment); err != nil {
		collect(verr, "commitment", err)
	}
	if o.Intent.Deadline > 0 && o.Expired(now) {
		verr.add("order.deadline", "deadline has passed")
	}
	if strings.TrimPrefix(o.Signature, "0x") == "" {
		verr.add("signature", "signature is required")
	}
	switch o.Type {
	case TypeSingleFill, TypeMultipleFills:
	default:
		verr.add("order_type", fmt.Sprintf("unknown order type %q", o.Type))
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func collect(verr *ValidationError, prefix string, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add(prefix, err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.add(prefix+"."+fe.Field(), describe(fe))
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "eth_addr":
		return "must be a 0x-prefixed 20-byte hex address"
	case "positive_amount":
		return "must be greater than zero"
	case "nonzero_hash":
		return "must be a non-zero 32-byte hash"
	case "nefield":
		return "must differ from " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
