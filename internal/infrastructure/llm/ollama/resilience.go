package ollama

import (
	"context"

	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

// do runs one HTTP exchange under the client's executor. Retryable failures
// surface as domain.ErrTemporary.
func (c *Client) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	op := "ollama." + operation
	err := c.executor.Execute(ctx, op, fn, resilience.ClassifyTransient)
	return resilience.WrapTemporary(op, err, resilience.ClassifyTransient)
}
