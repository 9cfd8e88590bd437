package operators

import (
	"context"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/contexts"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
)

// EchoClassPath and EchoClass name the built-in echo operator in
// mission templates.
const (
	EchoClassPath = "operators.echo"
	EchoClass     = "EchoOperator"
)

// EchoOperator writes its resolved arguments into the party's job
// context subtree and succeeds. It exercises the whole pipeline
// without moving data, which makes it the operator of choice for
// deployment smoke tests.
type EchoOperator struct {
	cm   *contexts.ConfigManager
	args map[string]interface{}
}

// NewEchoOperator is the registry factory for EchoOperator.
func NewEchoOperator(party string, cm *contexts.ConfigManager, args map[string]interface{}) (interfaces.Operator, error) {
	return &EchoOperator{cm: cm, args: args}, nil
}

// Run copies every argument under outputs.<key> of the party subtree.
func (o *EchoOperator) Run(ctx context.Context, configMap map[string]interface{}) (bool, error) {
	for key, value := range o.args {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := o.cm.SetJobContext(ctx, "outputs."+key, value); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RegisterBuiltins adds every compiled-in operator to the registry.
func RegisterBuiltins(registry *Registry) {
	registry.Register(EchoClassPath, EchoClass, NewEchoOperator)
}
