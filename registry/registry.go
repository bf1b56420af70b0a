package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowkit/flowkit/model"
)

type FormFieldKind string

const FORM_FIELD_TEXT FormFieldKind = "text"
const FORM_FIELD_NUMBER FormFieldKind = "number"
const FORM_FIELD_BOOL FormFieldKind = "bool"
const FORM_FIELD_SELECT FormFieldKind = "select"

type FormField struct {
	Name     string        `json:"name"`
	Kind     FormFieldKind `json:"kind"`
	Required bool          `json:"required"`
	Help     string        `json:"help,omitempty"`
	Options  []string      `json:"options,omitempty"`
}

// FormSchema describes the configuration a driver accepts. Task configs are
// checked against it when a task is attached to a transition.
type FormSchema struct {
	Fields []FormField `json:"fields"`
}

func (s FormSchema) ValidateConfig(config map[string]any) error {
	for _, field := range s.Fields {
		if !field.Required {
			continue
		}
		if _, ok := config[field.Name]; !ok {
			return fmt.Errorf("missing required config field %q", field.Name)
		}
	}
	return nil
}

// TaskContext is handed to a driver for one execution. Config has already
// been resolved against the run data.
type TaskContext struct {
	Subject    model.SubjectRef
	Transition model.FlowTransition
	Config     map[string]any
	Payload    map[string]any
}

// TaskDriver is the common surface of every registered driver. A driver
// additionally implements exactly one of ValidationDriver, RestrictionDriver
// or ActionDriver, matching its declared Type.
type TaskDriver interface {
	Id() string
	SubjectType() string
	Type() model.TaskType
	Form() FormSchema
}

type ValidationDriver interface {
	TaskDriver
	Validate(ctx context.Context, tctx TaskContext) ([]model.FieldError, error)
}

type Verdict struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

type RestrictionDriver interface {
	TaskDriver
	Restrict(ctx context.Context, tctx TaskContext) (Verdict, error)
}

// ActionDriver is a side-effecting unit of work. Background reports whether
// the driver is eligible to run asynchronously after commit; background
// drivers must be idempotent since queue delivery is at-least-once.
type ActionDriver interface {
	TaskDriver
	Act(ctx context.Context, tctx TaskContext) error
	Background() bool
}

type DriverNotRegisteredError struct {
	Driver string
}

func (e DriverNotRegisteredError) Error() string {
	return fmt.Sprintf("task driver %q is not registered", e.Driver)
}

type RegistrationConflictError struct {
	Driver    string
	Existing  string
	Requested string
}

func (e RegistrationConflictError) Error() string {
	return fmt.Sprintf("task driver %q already registered for subject type %q, got %q", e.Driver, e.Existing, e.Requested)
}

// TaskRegistry maps driver ids to drivers. It is constructed at startup and
// passed explicitly into the engine; there is no ambient global registry.
type TaskRegistry struct {
	mu      sync.RWMutex
	drivers map[string]TaskDriver
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{drivers: make(map[string]TaskDriver)}
}

// Register adds a driver. Registering the same id with the same subject type
// again is a no-op; the same id with a different subject type is a conflict.
// The driver must implement the variant interface matching its declared type.
func (r *TaskRegistry) Register(driver TaskDriver) error {
	switch driver.Type() {
	case model.TASK_TYPE_VALIDATION:
		if _, ok := driver.(ValidationDriver); !ok {
			return fmt.Errorf("driver %q declares type %s but does not implement ValidationDriver", driver.Id(), driver.Type())
		}
	case model.TASK_TYPE_RESTRICTION:
		if _, ok := driver.(RestrictionDriver); !ok {
			return fmt.Errorf("driver %q declares type %s but does not implement RestrictionDriver", driver.Id(), driver.Type())
		}
	case model.TASK_TYPE_ACTION:
		if _, ok := driver.(ActionDriver); !ok {
			return fmt.Errorf("driver %q declares type %s but does not implement ActionDriver", driver.Id(), driver.Type())
		}
	default:
		return fmt.Errorf("driver %q declares unknown type %q", driver.Id(), driver.Type())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.drivers[driver.Id()]; ok {
		if existing.SubjectType() != driver.SubjectType() {
			return RegistrationConflictError{
				Driver:    driver.Id(),
				Existing:  existing.SubjectType(),
				Requested: driver.SubjectType(),
			}
		}
		return nil
	}
	r.drivers[driver.Id()] = driver
	return nil
}

func (r *TaskRegistry) Resolve(driverId string) (TaskDriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	driver, ok := r.drivers[driverId]
	if !ok {
		return nil, DriverNotRegisteredError{Driver: driverId}
	}
	return driver, nil
}

func (r *TaskRegistry) FormFor(driverId string) (FormSchema, error) {
	driver, err := r.Resolve(driverId)
	if err != nil {
		return FormSchema{}, err
	}
	return driver.Form(), nil
}

func (r *TaskRegistry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	return ids
}
