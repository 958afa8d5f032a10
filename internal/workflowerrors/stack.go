package workflowerrors

import goerrors "github.com/go-errors/errors"

func stack(skip int) string {
	goerr := goerrors.Wrap("", skip)
	return string(goerr.Stack())
}
