package mapper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/validation"
)

// Identity copies the declared fields from each input record.
func Identity(fields ...string) Mapper {
	fields = append([]string(nil), fields...)
	return Func(fields, func(_ context.Context, rec Record, _ *Diagnostics) (Record, error) {
		return rec.Select(fields), nil
	})
}

// Constant returns the same values for every record. Fields are declared in
// the given order.
func Constant(fields []string, values Record) Mapper {
	fixed := values.Clone()
	return Func(fields, func(_ context.Context, _ Record, _ *Diagnostics) (Record, error) {
		return fixed.Clone(), nil
	})
}

// Failing fails every record with message.
func Failing(fields []string, message string) Mapper {
	return Func(fields, func(_ context.Context, _ Record, _ *Diagnostics) (Record, error) {
		return nil, errors.New(message)
	})
}

// StopWhen wraps inner and requests a stop on the first record whose field
// equals value. Records before it are transformed by inner.
func StopWhen(inner Mapper, field, value string) Mapper {
	return &stopWhen{inner: inner, field: field, value: value}
}

type stopWhen struct {
	inner Mapper
	field string
	value string
}

func (s *stopWhen) Fields() []string {
	return s.inner.Fields()
}

func (s *stopWhen) Transform(ctx context.Context, rec Record, diag *Diagnostics) (Record, error) {
	if rec[s.field] == s.value {
		return nil, Stop(fmt.Sprintf("%s=%s", s.field, s.value))
	}
	return s.inner.Transform(ctx, rec, diag)
}

func (s *stopWhen) Clone() Mapper {
	return &stopWhen{inner: CopyFor(s.inner), field: s.field, value: s.value}
}

// Params configures a built-in mapper looked up by name.
type Params struct {
	// Fields are the declared output fields.
	Fields []string

	// Set holds "name=value" assignments for the constant mapper.
	Set string

	// StopWhen, when not empty, is a "field=value" condition that raises a stop request.
	StopWhen string

	// FailMessage is the error raised by the fail mapper.
	FailMessage string
}

var builtins = map[string]func(Params) (Mapper, error){
	"identity": func(p Params) (Mapper, error) {
		if err := validation.ValidateFieldNames("mapper", "fields", p.Fields); err != nil {
			return nil, err
		}
		if len(p.Fields) == 0 {
			return nil, gferrors.NewValidationError("mapper", "fields", "", "cannot be empty").
				WithHint("identity needs the columns to copy, e.g. -fields id,name")
		}
		return Identity(p.Fields...), nil
	},
	"constant": func(p Params) (Mapper, error) {
		names, values, err := ParseAssignments(p.Set)
		if err != nil {
			return nil, err
		}
		return Constant(names, values), nil
	},
	"fail": func(p Params) (Mapper, error) {
		if err := validation.ValidateFieldNames("mapper", "fields", p.Fields); err != nil {
			return nil, err
		}
		msg := p.FailMessage
		if msg == "" {
			msg = "an exception was raised"
		}
		return Failing(p.Fields, msg), nil
	},
}

// Names returns the names of the built-in mappers.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the built-in mapper called name.
func Lookup(name string, p Params) (Mapper, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, gferrors.NewValidationError("mapper", "name", name, "unknown mapper").
			WithHint("use one of: " + strings.Join(Names(), ", "))
	}

	m, err := build(p)
	if err != nil {
		return nil, err
	}

	if p.StopWhen != "" {
		field, value, ok := strings.Cut(p.StopWhen, "=")
		if !ok || field == "" {
			return nil, gferrors.NewValidationError("mapper", "stop_when", p.StopWhen, "expected field=value")
		}
		m = StopWhen(m, field, value)
	}
	return m, nil
}

// ParseAssignments parses "a=1,b=2" into ordered names and their values.
func ParseAssignments(s string) ([]string, Record, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil, gferrors.NewValidationError("mapper", "set", s, "cannot be empty").
			WithHint("use name=value pairs separated by commas, e.g. a=1,b=2")
	}

	var names []string
	values := make(Record)
	for _, part := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, nil, gferrors.NewValidationError("mapper", "set", part, "expected name=value")
		}
		if _, dup := values[name]; dup {
			return nil, nil, gferrors.NewValidationError("mapper", "set", name, "assigned twice")
		}
		names = append(names, name)
		values[name] = value
	}
	return names, values, nil
}
