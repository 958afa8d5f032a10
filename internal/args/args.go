package args

import (
	"context"
	"fmt"
	"reflect"

	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/internal/sync"
)

func ArgsToInputs(c converter.Converter, args ...any) ([]payload.Payload, error) {
	inputs := make([]payload.Payload, 0, len(args))

	for _, arg := range args {
		input, err := c.To(arg)
		if err != nil {
			return nil, fmt.Errorf("converting arg to input: %w", err)
		}

		inputs = append(inputs, input)
	}

	return inputs, nil
}

// InputsToArgs decodes inputs into values matching the parameters of fn. The first
// parameter is skipped, and addContext returned, if it is a context.
func InputsToArgs(c converter.Converter, fn reflect.Value, inputs []payload.Payload) (args []reflect.Value, addContext bool, err error) {
	fnT := fn.Type()

	numArgs := fnT.NumIn()
	if numArgs > 0 && (IsOwnContext(fnT.In(0)) || isContext(fnT.In(0))) {
		addContext = true
	}

	expected := numArgs
	if addContext {
		expected--
	}

	if expected != len(inputs) {
		return nil, false, fmt.Errorf("mismatched argument count: expected %d, got %d", expected, len(inputs))
	}

	args = make([]reflect.Value, 0, expected)

	for i, input := range inputs {
		argT := fnT.In(numArgs - expected + i)

		arg := reflect.New(argT).Interface()
		if err := c.From(input, arg); err != nil {
			return nil, false, fmt.Errorf("converting input %d: %w", i, err)
		}

		args = append(args, reflect.ValueOf(arg).Elem())
	}

	return args, addContext, nil
}

// ReturnTypeMatch checks that fn returns (T, error) or just error when T is any.
func ReturnTypeMatch[T any](fn any) bool {
	fnType := reflect.TypeOf(fn)
	if fnType.Kind() != reflect.Func {
		return false
	}

	resultType := reflect.TypeOf((*T)(nil)).Elem()
	isAny := resultType.Kind() == reflect.Interface && resultType.NumMethod() == 0

	switch fnType.NumOut() {
	case 1:
		return isAny
	case 2:
		return isAny || fnType.Out(0) == resultType
	default:
		return false
	}
}

// ParamsMatch checks the number of arguments passed matches the number of parameters of fn.
func ParamsMatch(fn any, args ...any) bool {
	fnType := reflect.TypeOf(fn)
	if fnType.Kind() != reflect.Func {
		return false
	}

	numIn := fnType.NumIn()
	if numIn > 0 && (IsOwnContext(fnType.In(0)) || isContext(fnType.In(0))) {
		numIn--
	}

	return numIn == len(args)
}

// IsOwnContext reports whether inType is the workflow context.
func IsOwnContext(inType reflect.Type) bool {
	contextElem := reflect.TypeOf((*sync.Context)(nil)).Elem()
	return inType == contextElem
}

func isContext(inType reflect.Type) bool {
	contextElem := reflect.TypeOf((*context.Context)(nil)).Elem()
	return inType != nil && inType.Implements(contextElem)
}
