package flow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprPredicate compiles expression once (on first use) and caches the
// resulting *vm.Program, mirroring the teacher's ConditionEvaluator
// (internal/application/executor/conditions.go: compiledCache map[string]*
// vm.Program guarded by a mutex). The teacher also caches per-execution
// evaluation *results*; this predicate is re-evaluated on every branch/while
// check by design (spec §4.1: "Predicates do not mutate state"; a cached
// boolean result would stop reflecting updated variables across While
// iterations, which the teacher's own per-execution result cache never had
// to worry about since conditions there gate a single edge traversal, not a
// loop).
type exprPredicate struct {
	source string

	once    sync.Once
	program *vm.Program
	compErr error
}

func (p *exprPredicate) compile() {
	p.program, p.compErr = expr.Compile(p.source, expr.AsBool())
}

// Eval runs the compiled program against an environment built from value
// (under the key "value") and the execution's variables (under "vars"),
// the same two-tier environment shape the teacher passes to expr.Run.
func (p *exprPredicate) Eval(value any, variables map[string]any) bool {
	p.once.Do(p.compile)
	if p.compErr != nil {
		return false
	}
	env := map[string]any{"value": value, "vars": variables}
	out, err := expr.Run(p.program, env)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

// ExprPredicate builds a branch/while predicate from an expr-lang/expr
// expression string (SPEC_FULL.md's "expr-lang/expr, exactly as the
// teacher's ConditionEvaluator"). The expression sees `value` (the node's
// current value, passed through unchanged, so struct fields and map keys
// are both reachable by name) and `vars` (the execution's
// variables), e.g. `"value.Result > 10"` or `"vars.retries < 3"`.
func ExprPredicate[T any](expression string) func(T, map[string]any) bool {
	p := &exprPredicate{source: expression}
	return func(value T, variables map[string]any) bool {
		return p.Eval(value, variables)
	}
}

// MustExprPredicate is ExprPredicate but validates the expression compiles
// immediately, panicking at flow-construction time instead of silently
// evaluating to false on every call — useful for catching a typo'd
// expression during registration rather than at the first evaluation.
func MustExprPredicate[T any](expression string) func(T, map[string]any) bool {
	if _, err := expr.Compile(expression, expr.AsBool()); err != nil {
		panic(fmt.Sprintf("flow: invalid expr predicate %q: %v", expression, err))
	}
	return ExprPredicate[T](expression)
}
