package workflowerrors

import "reflect"

func getErrorType(err error) string {
	return reflect.TypeOf(err).String()
}
