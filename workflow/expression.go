package workflow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// whenPrograms caches compiled step gates. Programs are safe for concurrent
// runs once compiled.
var whenPrograms = &programCache{programs: make(map[string]*vm.Program)}

type programCache struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func (c *programCache) get(src string) (*vm.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[src]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, ok := c.programs[src]; ok {
		return prg, nil
	}
	prg, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("workflow: compile when %q: %w", src, err)
	}
	c.programs[src] = prg
	return prg, nil
}

// EvaluateWhen runs a step's boolean gate against the case view. Top-level
// view keys are variables, so `outstanding_amount > 500 && debtor.risk_profile == "high"`
// reads the same fields conditions do. An empty expression holds.
func EvaluateWhen(src string, view CaseView) (bool, error) {
	if src == "" {
		return true, nil
	}
	prg, err := whenPrograms.get(src)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(prg, map[string]any(view))
	if err != nil {
		return false, fmt.Errorf("workflow: evaluate when %q: %w", src, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("workflow: when %q returned %T, want bool", src, out)
	}
	return ok, nil
}
