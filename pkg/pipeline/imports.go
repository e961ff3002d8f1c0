package pipeline

import (
	"context"
	"fmt"
)

// Module is an external capability attached to every worker's environment at
// creation, after variables and functions and before the init script.
type Module interface {
	Name() string
	Attach(env *Environment) error
}

// ImportSet is the read-only collection of names and values applied
// identically to every worker's environment at creation. It is captured once
// at run start and must not be mutated afterward.
type ImportSet struct {
	// UseProfile enables the Bootstrap hook.
	UseProfile bool
	// Bootstrap runs first, before anything else is imported.
	Bootstrap func(env *Environment) error
	// Variables are copied into the environment.
	Variables map[string]any
	// Functions are copied into the environment; values are caller-defined
	// callables retrieved back with Environment.Func.
	Functions map[string]any
	// Modules are attached in order after variables and functions.
	Modules []Module
	// InitScript runs last, once the environment is otherwise complete.
	InitScript func(ctx context.Context, env *Environment) error
}

// Environment is one worker's isolated execution context. Each worker gets
// its own copy of the imported variables and functions; mutations stay local
// to the worker.
type Environment struct {
	id        string
	variables map[string]any
	functions map[string]any
}

// newEnvironment allocates an environment and applies the import set in
// order: bootstrap, variables, functions, modules, init script. Any error
// aborts creation.
func newEnvironment(ctx context.Context, id string, imports ImportSet) (*Environment, error) {
	env := &Environment{
		id:        id,
		variables: make(map[string]any, len(imports.Variables)),
		functions: make(map[string]any, len(imports.Functions)),
	}

	if imports.UseProfile && imports.Bootstrap != nil {
		if err := imports.Bootstrap(env); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}
	for name, value := range imports.Variables {
		env.variables[name] = value
	}
	for name, fn := range imports.Functions {
		env.functions[name] = fn
	}
	for _, module := range imports.Modules {
		if err := module.Attach(env); err != nil {
			return nil, fmt.Errorf("attach module %s: %w", module.Name(), err)
		}
	}
	if imports.InitScript != nil {
		if err := imports.InitScript(ctx, env); err != nil {
			return nil, fmt.Errorf("init script: %w", err)
		}
	}

	return env, nil
}

// ID returns the owning worker's identifier.
func (e *Environment) ID() string {
	return e.id
}

// Var returns an imported or locally set variable.
func (e *Environment) Var(name string) (any, bool) {
	v, ok := e.variables[name]
	return v, ok
}

// SetVar sets a worker-local variable. The worker alone reads and writes its
// environment, so no locking is needed.
func (e *Environment) SetVar(name string, value any) {
	e.variables[name] = value
}

// Func returns an imported function value.
func (e *Environment) Func(name string) (any, bool) {
	fn, ok := e.functions[name]
	return fn, ok
}

// SetFunc registers a function value; used by modules during attachment.
func (e *Environment) SetFunc(name string, fn any) {
	e.functions[name] = fn
}
