// internal/service/promotion/infrastructure/rule/cel_engine.go
package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"promo/internal/service/promotion/domain"
)

// CELRuleEngineAdapter 是 domain.RuleEngine 接口的 CEL 实现。
// 规则是一个布尔表达式，可引用变量 userId (string) 和 isVip (bool)，
// 例如 `isVip == true` 或 `userId.startsWith("vip-")`。
// 编译结果按规则文本缓存，同一条规则只编译一次。
type CELRuleEngineAdapter struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCELRuleEngineAdapter() (*CELRuleEngineAdapter, error) {
	env, err := cel.NewEnv(
		cel.Variable("userId", cel.StringType),
		cel.Variable("isVip", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELRuleEngineAdapter{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 实现了 domain.RuleEngine 接口。空规则表示人人可领。
func (a *CELRuleEngineAdapter) Evaluate(ruleDefinition string, fact domain.Fact) (bool, error) {
	if ruleDefinition == "" {
		return true, nil
	}

	program, err := a.compile(ruleDefinition)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(map[string]interface{}{
		"userId": fact.UserID,
		"isVip":  fact.IsVip,
	})
	if err != nil {
		return false, fmt.Errorf("rule evaluation failed: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule did not evaluate to a boolean: %q", ruleDefinition)
	}
	return result, nil
}

func (a *CELRuleEngineAdapter) compile(ruleDefinition string) (cel.Program, error) {
	a.mu.RLock()
	program, ok := a.programs[ruleDefinition]
	a.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := a.env.Compile(ruleDefinition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule compilation failed: %w", issues.Err())
	}
	program, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule program construction failed: %w", err)
	}

	a.mu.Lock()
	a.programs[ruleDefinition] = program
	a.mu.Unlock()
	return program, nil
}
