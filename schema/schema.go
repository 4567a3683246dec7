// Package schema checks payloads against the constraints declared on their Go types.
//
// Payload structs declare constraints with `validate` tags (go-playground/validator). A violation is
// reported as a FormationViolation whose details map each offending JSON field path to the rule it
// broke, e.g. {"fields":{"idTagInfo.status":"oneof"}}.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"ocpp-rpc/message"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	codec = jsoniter.ConfigCompatibleWithStandardLibrary
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			switch name {
			case "-":
				return ""
			case "":
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks v against its struct tags. Values that are not structs carry no constraints.
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return message.NewError(message.CodeFormationViolation, "%v", err)
	}
	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := fieldPath(fe.Namespace())
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[path] = rule
		names = append(names, path)
	}
	return message.NewError(message.CodeFormationViolation, "invalid field(s): %s", strings.Join(names, ", ")).
		WithDetails(map[string]any{"fields": fields})
}

// Bind unmarshals a JSON object payload into v and validates it.
func Bind(payload json.RawMessage, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = message.EmptyPayload
	}
	if err := codec.Unmarshal(payload, v); err != nil {
		return bindError(payload, v, err)
	}
	return Validate(v)
}

// bindError names the field whose JSON type does not fit v. jsoniter errors carry no field path, so
// the payload is decoded again into a scratch value with encoding/json, whose UnmarshalTypeError does.
func bindError(payload json.RawMessage, v any, err error) error {
	if rt := reflect.TypeOf(v); rt != nil && rt.Kind() == reflect.Pointer {
		var te *json.UnmarshalTypeError
		if errors.As(json.Unmarshal(payload, reflect.New(rt.Elem()).Interface()), &te) && te.Field != "" {
			return message.NewError(message.CodeFormationViolation, "invalid field(s): %s", te.Field).
				WithDetails(map[string]any{"fields": map[string]string{te.Field: "type"}})
		}
	}
	return message.NewError(message.CodeFormationViolation, "payload does not match %T", v).
		WithDetails(map[string]any{"error": err.Error()})
}

// Marshal encodes a payload as a JSON object, mapping nil to "{}".
func Marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return message.EmptyPayload, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return message.EmptyPayload, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return codec.Marshal(v)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
