package workflow

import (
	"github.com/notifyhub/prepflow/internal/sync"
)

type (
	Context = sync.Context

	// Workflow is a function taking a Context and optional arguments, returning an error
	// or a result and an error.
	Workflow = any

	// Activity is a function taking an optional context.Context and arguments, returning
	// an error or a result and an error.
	Activity = any
)

// Canceled is returned by futures of calls made after the workflow instance was canceled.
var Canceled = sync.Canceled
