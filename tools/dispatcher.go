package tools

import (
	"context"
	"fmt"

	"github.com/playback-history/collector/errkind"
)

// Dispatch validates args against the named tool's declared schema, invokes
// its handler, and always returns a valid Envelope — handler errors and
// unregistered tool names are caught here and turned into failure
// envelopes, never a generic "tool execution failed" and never a panic
// escaping to the caller.
func Dispatch(ctx context.Context, reg *Registry, app *App, tool string, args map[string]any) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			env = failureEnvelope(tool, errkind.New(errkind.Internal, fmt.Sprintf("panic: %v", r)))
		}
	}()

	def, ok := reg.Lookup(tool)
	if !ok {
		return failureEnvelope(tool, errkind.New(errkind.NotFound, fmt.Sprintf("unknown tool '%s'", tool)))
	}

	coerced, err := coerceArgs(def, args)
	if err != nil {
		return failureEnvelope(tool, err)
	}

	result, err := def.Handler(ctx, app, coerced)
	if err != nil {
		return failureEnvelope(tool, err)
	}
	return successEnvelope(tool, result)
}

// coerceArgs validates presence of required params, applies declared
// defaults for omitted optional ones, and coerces each present value to
// its declared type — the dispatcher's one validation pass standing in for
// the dynamic, loosely-typed arg maps tool calls arrive as on the wire.
func coerceArgs(def *Def, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		raw, present := args[p.Name]
		if !present {
			if p.Required {
				return nil, errkind.New(errkind.InvalidArgument, fmt.Sprintf("%s: missing required argument %q", def.Name, p.Name))
			}
			out[p.Name] = p.Default
			continue
		}
		coerced, err := coerceValue(p, raw)
		if err != nil {
			return nil, errkind.New(errkind.InvalidArgument, fmt.Sprintf("%s: argument %q: %v", def.Name, p.Name, err))
		}
		out[p.Name] = coerced
	}
	return out, nil
}

func coerceValue(p Param, raw any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return b, nil
	case TypeInt:
		return coerceInt(raw)
	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
	default:
		return raw, nil
	}
}

// coerceInt accepts float64 in particular because args arriving from
// encoding/json unmarshal every bare JSON number into a float64.
func coerceInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("expected integer, got non-integral number %v", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

// splitKind extracts a rendering (kind, message) pair for any error —
// *errkind.Error is split into its declared Kind and Message; anything
// else is reported as an Internal kind carrying the error's own text.
func splitKind(err error) (errkind.Kind, string) {
	var e *errkind.Error
	if errkind.As(err, &e) {
		return e.Kind, e.Message
	}
	return errkind.Internal, err.Error()
}
