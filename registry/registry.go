package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/notifyhub/prepflow/internal/args"
	"github.com/notifyhub/prepflow/internal/fn"
	wf "github.com/notifyhub/prepflow/workflow"
)

type registeredWorkflow struct {
	fn             wf.Workflow
	failureHandler FailureHandler
}

type Registry struct {
	sync.Mutex

	workflowMap map[string]*registeredWorkflow
	activityMap map[string]any
}

// New creates a new registry instance.
func New() *Registry {
	return &Registry{
		workflowMap: make(map[string]*registeredWorkflow),
		activityMap: make(map[string]any),
	}
}

func (r *Registry) RegisterWorkflow(workflow wf.Workflow, opts ...RegisterOption) error {
	cfg := registerOptions(opts).applyRegisterOptions(registerConfig{})

	wfType := reflect.TypeOf(workflow)
	if wfType == nil || wfType.Kind() != reflect.Func {
		return &ErrInvalidWorkflow{"workflow is not a function"}
	}

	name := cfg.Name
	if name == "" {
		name = fn.Name(workflow)
	}

	if wfType.NumIn() == 0 {
		return &ErrInvalidWorkflow{"workflow does not accept context parameter"}
	}

	if !args.IsOwnContext(wfType.In(0)) {
		return &ErrInvalidWorkflow{"workflow does not accept context as first parameter"}
	}

	if wfType.NumOut() == 0 {
		return &ErrInvalidWorkflow{"workflow must return error"}
	}

	if wfType.NumOut() > 2 {
		return &ErrInvalidWorkflow{"workflow must return at most two values"}
	}

	errType := reflect.TypeOf((*error)(nil)).Elem()
	if !wfType.Out(wfType.NumOut() - 1).Implements(errType) {
		return &ErrInvalidWorkflow{"workflow must return error as last return value"}
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.workflowMap[name]; ok {
		return &ErrWorkflowAlreadyRegistered{fmt.Sprintf("workflow with name %q already registered", name)}
	}

	r.workflowMap[name] = &registeredWorkflow{
		fn:             workflow,
		failureHandler: cfg.FailureHandler,
	}

	return nil
}

// RegisterActivity registers a single activity function, or every exported method of a
// struct pointer under the method name.
func (r *Registry) RegisterActivity(activity wf.Activity, opts ...RegisterOption) error {
	cfg := registerOptions(opts).applyRegisterOptions(registerConfig{})

	t := reflect.TypeOf(activity)
	if t == nil {
		return &ErrInvalidActivity{"activity is nil"}
	}

	// Activities on struct
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
		return r.registerActivitiesFromStruct(activity)
	}

	if err := checkActivity(t); err != nil {
		return err
	}

	name := cfg.Name
	if name == "" {
		name = fn.Name(activity)
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.activityMap[name]; ok {
		return &ErrActivityAlreadyRegistered{fmt.Sprintf("activity with name %q already registered", name)}
	}

	r.activityMap[name] = activity

	return nil
}

func (r *Registry) registerActivitiesFromStruct(a any) error {
	v := reflect.ValueOf(a)
	t := v.Type()

	r.Lock()
	defer r.Unlock()

	for i := 0; i < v.NumMethod(); i++ {
		mv := v.Method(i)
		mt := t.Method(i)

		// Bound method values do not include the receiver
		if err := checkActivity(mv.Type()); err != nil {
			return fmt.Errorf("activity %s: %w", mt.Name, err)
		}

		if _, ok := r.activityMap[mt.Name]; ok {
			return &ErrActivityAlreadyRegistered{fmt.Sprintf("activity with name %q already registered", mt.Name)}
		}

		r.activityMap[mt.Name] = mv.Interface()
	}

	return nil
}

func checkActivity(actType reflect.Type) error {
	if actType.Kind() != reflect.Func {
		return &ErrInvalidActivity{"activity not a func"}
	}

	if actType.NumOut() == 0 {
		return &ErrInvalidActivity{"activity must return error"}
	}

	if actType.NumOut() > 2 {
		return &ErrInvalidActivity{"activity must return at most two values"}
	}

	errType := reflect.TypeOf((*error)(nil)).Elem()
	if !actType.Out(actType.NumOut() - 1).Implements(errType) {
		return &ErrInvalidActivity{"activity must return error as last return value"}
	}

	return nil
}

func (r *Registry) GetWorkflow(name string) (wf.Workflow, error) {
	r.Lock()
	defer r.Unlock()

	if w, ok := r.workflowMap[name]; ok {
		return w.fn, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
}

// GetFailureHandler returns the failure handler bound to the named workflow, nil if the
// workflow has none.
func (r *Registry) GetFailureHandler(name string) (FailureHandler, error) {
	r.Lock()
	defer r.Unlock()

	if w, ok := r.workflowMap[name]; ok {
		return w.failureHandler, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
}

func (r *Registry) GetActivity(name string) (any, error) {
	r.Lock()
	defer r.Unlock()

	if activity, ok := r.activityMap[name]; ok {
		return activity, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, name)
}
