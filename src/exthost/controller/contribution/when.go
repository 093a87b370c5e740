package contribution

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
	contextservice "github.com/uber/exthost-broker/src/exthost/controller/context-service"
	"github.com/uber/exthost-broker/src/exthost/entity"
)

// _lookupFn is the function every context key in a `when` expression is rewritten into.
const _lookupFn = "__context"

type lookupFunc = func(key string) interface{}

// compileWhen compiles a `when` expression. Identifiers and dotted member chains are resolved as context
// keys, so `resource.language == "go"` reads the computed "resource.language" property and `config.a.b`
// reads the literal setting "a.b".
func compileWhen(when string) (*vm.Program, error) {
	program, err := expr.Compile(when,
		expr.Env(map[string]interface{}{
			_lookupFn: lookupFunc(func(string) interface{} { return nil }),
		}),
		expr.AllowUndefinedVariables(),
		expr.Patch(contextKeyPatcher{}),
	)
	if err != nil {
		return nil, fmt.Errorf("compiling when clause %q: %w", when, err)
	}
	return program, nil
}

// evaluateWhen runs program against model and reports whether the result is truthy.
func evaluateWhen(program *vm.Program, model entity.Model) (bool, error) {
	env := map[string]interface{}{
		_lookupFn: lookupFunc(func(key string) interface{} {
			value, _ := contextservice.GetComputedContextProperty(model.Environment, model.Configuration, model.Context, key)
			return value
		}),
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	return entity.IsTruthy(result), nil
}

// contextKeyPatcher rewrites identifiers into lookups, then folds each static member access on a lookup
// into a lookup of the dotted key. The walk is post-order, so chains fold from the innermost node out.
type contextKeyPatcher struct{}

func (contextKeyPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		ast.Patch(node, lookupNode(n.Value))
	case *ast.MemberNode:
		prefix, ok := lookupKey(n.Node)
		if !ok {
			return
		}
		property, ok := n.Property.(*ast.StringNode)
		if !ok {
			return
		}
		ast.Patch(node, lookupNode(prefix+"."+property.Value))
	}
}

func lookupNode(key string) *ast.CallNode {
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: _lookupFn},
		Arguments: []ast.Node{&ast.StringNode{Value: key}},
	}
}

// lookupKey returns the key of a node created by lookupNode.
func lookupKey(node ast.Node) (string, bool) {
	call, ok := node.(*ast.CallNode)
	if !ok || len(call.Arguments) != 1 {
		return "", false
	}
	callee, ok := call.Callee.(*ast.IdentifierNode)
	if !ok || callee.Value != _lookupFn {
		return "", false
	}
	key, ok := call.Arguments[0].(*ast.StringNode)
	if !ok {
		return "", false
	}
	return key.Value, true
}
