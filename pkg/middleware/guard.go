package middleware

import (
	"fmt"
	"net/http"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// GuardEnv is the environment a Guard expression is evaluated against.
type GuardEnv struct {
	Protocol string            `expr:"protocol"`
	Method   string            `expr:"method"`
	Path     string            `expr:"path"`
	Remote   string            `expr:"remote"`
	Header   map[string]string `expr:"header"`
	Params   map[string]string `expr:"params"`
	Body     string            `expr:"body"`
}

func guardEnv(c *Context) GuardEnv {
	header := make(map[string]string, len(c.Header))
	for k := range c.Header {
		header[k] = c.Header.Get(k)
	}
	return GuardEnv{
		Protocol: c.Protocol,
		Method:   c.Method,
		Path:     c.Path,
		Remote:   c.Remote,
		Header:   header,
		Params:   c.Params,
		Body:     string(c.Body),
	}
}

// Guard compiles a boolean expression and returns a middleware that
// answers 403 whenever it evaluates to false.
//
//	method == "GET" && header["X-Tenant"] != ""
func Guard(expression string) (Middleware, error) {
	program, err := expr.Compile(expression, expr.Env(GuardEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile guard %q: %w", expression, err)
	}
	return guardProgram(expression, program), nil
}

func guardProgram(expression string, program *vm.Program) Middleware {
	return Named("guard", func(c *Context, next Next) *Response {
		out, err := expr.Run(program, guardEnv(c))
		if err != nil {
			c.Logger().Warn("guard evaluation failed", "expression", expression, "error", err)
			return Text(http.StatusInternalServerError, "guard evaluation failed")
		}
		if ok, _ := out.(bool); !ok {
			return Text(http.StatusForbidden, "forbidden")
		}
		return next(c)
	})
}
