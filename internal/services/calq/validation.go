package calq

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
)

const (
	tagText     = "required"
	tagCurrency = "required,len=3"
)

// checker validates and serializes caller arguments. Every failure is an ArgumentError
// naming the parameter and carrying the offending value.
type checker struct {
	validate *validator.Validate
}

func newChecker() *checker {
	return &checker{validate: validator.New()}
}

// text requires a non-empty string.
func (c *checker) text(param, value string) error {
	return c.tagged(param, value, tagText)
}

// currency requires exactly three characters.
func (c *checker) currency(value string) error {
	return c.tagged("currency", value, tagCurrency)
}

func (c *checker) tagged(param, value, tag string) error {
	if err := c.validate.Var(value, tag); err != nil {
		return newArgumentError(param, value)
	}
	return nil
}

// amount accepts any Go numeric kind or a json.Number, any sign, and rejects NaN and
// infinities, which have no JSON encoding.
func (c *checker) amount(value any) (float64, error) {
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, newArgumentError("amount", value)
	}
	return f, nil
}

func toFloat(value any) (float64, bool) {
	if n, ok := value.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// properties encodes an optional property mapping; nil encodes as "{}".
func (c *checker) properties(param string, props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", newArgumentError(param, props)
	}
	return string(data), nil
}

// structured encodes a required mapping: a non-nil map with string keys, a struct or a
// non-nil pointer to one. Primitives, slices and nil are rejected.
func (c *checker) structured(param string, value any) (string, error) {
	if !isStructured(value) {
		return "", newArgumentError(param, value)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", newArgumentError(param, value)
	}
	return string(data), nil
}

func isStructured(value any) bool {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		return !rv.IsNil() && rv.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		return true
	default:
		return false
	}
}

// stringify renders a non-nil global property value as text. Strings pass through,
// numbers use their shortest form, and anything without a natural text form is JSON.
func (c *checker) stringify(param string, value any) (string, error) {
	if isNil(value) {
		return "", newArgumentError(param, value)
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case error:
		return v.Error(), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", newArgumentError(param, value)
	}
	return string(data), nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
