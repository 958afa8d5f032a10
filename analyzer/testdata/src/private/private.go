package private

import (
	"github.com/notifyhub/prepflow/workflow"
)

func wrongOrder(ctx workflow.Context) (error, string) {
	return nil, ""
}

func WrongOrder(ctx workflow.Context) (error, string) { // want "workflow \"WrongOrder\" doesn't return `error` as last return value"
	return nil, ""
}
