package application

import (
	"fmt"
	"math"
	"strings"

	"github.com/arial-it/rlcf/internal/domain"
)

// FieldKind enumerates the primitive shapes of the schema mini-language.
type FieldKind int

// Field kinds produced by ParseFieldType.
const (
	KindString FieldKind = iota
	KindInt
	KindFloat
	KindList
	KindEnum
)

// FieldType is a structural descriptor parsed from the mini-language
// used in task schema documents: `str`, `int`, `float`, `List[...]`,
// `Literal['a', 'b']`. Descriptors are checked imperatively against
// incoming payloads; no language-native types are generated at runtime.
type FieldType struct {
	Kind FieldKind

	// Elem is the element descriptor for KindList.
	Elem *FieldType

	// Enum lists the allowed values for KindEnum.
	Enum []string
}

// ParseFieldType parses one mini-language type string. The grammar is
// closed: unknown forms are rejected rather than falling back to "any".
func ParseFieldType(s string) (FieldType, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "str":
		return FieldType{Kind: KindString}, nil
	case s == "int":
		return FieldType{Kind: KindInt}, nil
	case s == "float":
		return FieldType{Kind: KindFloat}, nil
	case strings.HasPrefix(s, "List[") && strings.HasSuffix(s, "]"):
		inner, err := ParseFieldType(s[len("List[") : len(s)-1])
		if err != nil {
			return FieldType{}, err
		}
		return FieldType{Kind: KindList, Elem: &inner}, nil
	case strings.HasPrefix(s, "Literal[") && strings.HasSuffix(s, "]"):
		body := s[len("Literal[") : len(s)-1]
		if strings.TrimSpace(body) == "" {
			return FieldType{}, fmt.Errorf("empty Literal")
		}
		parts := strings.Split(body, ",")
		values := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.TrimSpace(part)
			v = strings.Trim(v, `'"`)
			if v == "" {
				return FieldType{}, fmt.Errorf("empty Literal value in %q", s)
			}
			values = append(values, v)
		}
		return FieldType{Kind: KindEnum, Enum: values}, nil
	default:
		return FieldType{}, fmt.Errorf("unknown field type %q", s)
	}
}

// checkValue reports whether v conforms to the descriptor.
// Numbers arriving from decoded JSON are float64; integral float64
// values satisfy KindInt.
func (ft FieldType) checkValue(v any) error {
	switch ft.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case KindInt:
		switch n := v.(type) {
		case int, int64:
		case float64:
			if n != math.Trunc(n) {
				return fmt.Errorf("expected integer, got %v", n)
			}
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}
	case KindFloat:
		switch v.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case KindList:
		items, ok := v.([]any)
		if !ok {
			// Homogeneous string slices appear when payloads are built
			// in-process rather than decoded.
			if strs, isStrs := v.([]string); isStrs {
				if ft.Elem.Kind == KindString || ft.Elem.Kind == KindEnum {
					for _, s := range strs {
						if err := ft.Elem.checkValue(s); err != nil {
							return err
						}
					}
					return nil
				}
			}
			return fmt.Errorf("expected list, got %T", v)
		}
		for i, item := range items {
			if err := ft.Elem.checkValue(item); err != nil {
				return fmt.Errorf("element %d: %v", i, err)
			}
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected one of %v, got %T", ft.Enum, v)
		}
		for _, allowed := range ft.Enum {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("value %q not in %v", s, ft.Enum)
	}
	return nil
}

// ValidateFeedbackPayload checks a feedback payload against the task
// type's configured feedback schema. Every schema field is required.
// Returns a *domain.ValidationError listing all failures, or
// domain.ErrUnsupportedTaskType when the type has no schema.
func ValidateFeedbackPayload(schemas *TaskSchemaConfig, taskType domain.TaskType, payload map[string]any) error {
	schema, ok := schemas.Schema(taskType)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedTaskType, taskType)
	}
	return validateFields(fmt.Sprintf("feedback_data[%s]", taskType), schema.FeedbackData, payload)
}

// ValidateInputPayload checks a task input payload against the task
// type's configured input schema.
func ValidateInputPayload(schemas *TaskSchemaConfig, taskType domain.TaskType, payload map[string]any) error {
	schema, ok := schemas.Schema(taskType)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedTaskType, taskType)
	}
	return validateFields(fmt.Sprintf("input_data[%s]", taskType), schema.InputData, payload)
}

func validateFields(entity string, fields map[string]string, payload map[string]any) error {
	verr := domain.NewValidationError(entity)
	for field, typeStr := range fields {
		ft, err := ParseFieldType(typeStr)
		if err != nil {
			// Schema documents are validated at load time; a parse
			// failure here means the descriptor was edited in memory.
			verr.AddError(fmt.Sprintf("%s: bad descriptor %q", field, typeStr))
			continue
		}
		v, present := payload[field]
		if !present {
			verr.AddError(fmt.Sprintf("%s: required field missing", field))
			continue
		}
		if err := ft.checkValue(v); err != nil {
			verr.AddError(fmt.Sprintf("%s: %v", field, err))
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
