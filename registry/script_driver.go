package registry

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"go.uber.org/zap"
)

// Script drivers evaluate a javascript expression from the task config with
// `$` bound to {subject, payload, config}. They let deployments attach small
// rules to transitions without compiling a driver.

const CONFIG_KEY_EXPRESSION = "expression"
const CONFIG_KEY_BACKGROUND = "background"

type scriptDriver struct {
	id          string
	subjectType string
	taskType    model.TaskType
}

func (d *scriptDriver) Id() string {
	return d.id
}

func (d *scriptDriver) SubjectType() string {
	return d.subjectType
}

func (d *scriptDriver) Type() model.TaskType {
	return d.taskType
}

func (d *scriptDriver) Form() FormSchema {
	fields := []FormField{
		{Name: CONFIG_KEY_EXPRESSION, Kind: FORM_FIELD_TEXT, Required: true, Help: "javascript expression, `$` is bound to {subject, payload, config}"},
	}
	if d.taskType == model.TASK_TYPE_ACTION {
		fields = append(fields, FormField{Name: CONFIG_KEY_BACKGROUND, Kind: FORM_FIELD_BOOL, Help: "run after commit via the background queue"})
	}
	return FormSchema{Fields: fields}
}

func (d *scriptDriver) eval(tctx TaskContext) (goja.Value, error) {
	expression, ok := tctx.Config[CONFIG_KEY_EXPRESSION].(string)
	if !ok || expression == "" {
		return nil, fmt.Errorf("driver %s: config field %q must be a non-empty string", d.id, CONFIG_KEY_EXPRESSION)
	}
	vm := goja.New()
	err := vm.Set("$", map[string]any{
		"subject": map[string]any{
			"id":      tctx.Subject.Id,
			"type":    tctx.Subject.Type,
			"status":  tctx.Subject.Status,
			"payload": tctx.Subject.Payload,
		},
		"payload": tctx.Payload,
		"config":  tctx.Config,
	})
	if err != nil {
		return nil, err
	}
	value, err := vm.RunString(expression)
	if err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	return value, nil
}

type scriptValidation struct {
	scriptDriver
}

var _ ValidationDriver = new(scriptValidation)

// NewScriptValidation returns a validation driver whose expression evaluates
// to a {field: message} object; an empty object means the payload is valid.
func NewScriptValidation(id string, subjectType string) *scriptValidation {
	return &scriptValidation{scriptDriver{id: id, subjectType: subjectType, taskType: model.TASK_TYPE_VALIDATION}}
}

func (d *scriptValidation) Validate(ctx context.Context, tctx TaskContext) ([]model.FieldError, error) {
	value, err := d.eval(tctx)
	if err != nil {
		return nil, err
	}
	exported := value.Export()
	if exported == nil {
		return nil, nil
	}
	fields, ok := exported.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("driver %s: validation expression must evaluate to an object", d.id)
	}
	var errs []model.FieldError
	for field, message := range fields {
		errs = append(errs, model.FieldError{Field: field, Message: fmt.Sprintf("%v", message)})
	}
	return errs, nil
}

type scriptRestriction struct {
	scriptDriver
}

var _ RestrictionDriver = new(scriptRestriction)

// NewScriptRestriction returns a restriction driver whose expression
// evaluates to a boolean or to {allow: bool, reason: string}.
func NewScriptRestriction(id string, subjectType string) *scriptRestriction {
	return &scriptRestriction{scriptDriver{id: id, subjectType: subjectType, taskType: model.TASK_TYPE_RESTRICTION}}
}

func (d *scriptRestriction) Restrict(ctx context.Context, tctx TaskContext) (Verdict, error) {
	value, err := d.eval(tctx)
	if err != nil {
		return Verdict{}, err
	}
	switch exported := value.Export().(type) {
	case bool:
		return Verdict{Allow: exported}, nil
	case map[string]any:
		verdict := Verdict{}
		if allow, ok := exported["allow"].(bool); ok {
			verdict.Allow = allow
		}
		if reason, ok := exported["reason"].(string); ok {
			verdict.Reason = reason
		}
		return verdict, nil
	default:
		return Verdict{}, fmt.Errorf("driver %s: restriction expression must evaluate to a boolean or {allow, reason}", d.id)
	}
}

type scriptAction struct {
	scriptDriver
	background bool
}

var _ ActionDriver = new(scriptAction)

// NewScriptAction returns an action driver running its expression for side
// effects. Background-eligibility is declared at construction and carried as
// data on the driver.
func NewScriptAction(id string, subjectType string, background bool) *scriptAction {
	return &scriptAction{
		scriptDriver: scriptDriver{id: id, subjectType: subjectType, taskType: model.TASK_TYPE_ACTION},
		background:   background,
	}
}

func (d *scriptAction) Act(ctx context.Context, tctx TaskContext) error {
	logger.Debug("running script action", zap.String("driver", d.id), zap.String("subject", tctx.Subject.Id))
	_, err := d.eval(tctx)
	return err
}

func (d *scriptAction) Background() bool {
	return d.background
}
