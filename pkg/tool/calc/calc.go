package calc

import (
	"context"
	"math"

	"github.com/expr-lang/expr"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const description = `A calculator that evaluates mathematical expressions.
Do not use this tool for complex logic, programming, or string concatenation tasks, it is strictly for mathematical calculations.

infix ops:
    + - * / % : add sub mult div mod
    ** or ^ : exp

functions:
    use like sin(123)
    abs ceil floor round
    trig (radians only): sin cos tan sinh cosh tanh
    inv: asin acos atan
    inv_hyp: asinh acosh atanh
    conv: rad deg
    roots/logs: sqrt cbrt log lg ln exp

constants:
    e pi

Example usage: { "expr": "round(12345 / 543)" }`

type calculator struct{}

// New creates the calculator tool
func New() *calculator {
	return &calculator{}
}

func (x *calculator) Flags() []cli.Flag {
	return nil
}

func (x *calculator) Prompt(ctx context.Context) string {
	return ""
}

func (x *calculator) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "calculator",
				Description: description,
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"expr": {
							Type:        genai.TypeString,
							Description: "Mathematical expression to evaluate",
						},
					},
					Required: []string{"expr"},
				},
			},
		},
	}
}

func (x *calculator) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	src, ok := fc.Args["expr"].(string)
	if !ok || src == "" {
		return nil, goerr.New("missing 'expr' parameter")
	}

	result, err := Evaluate(src)
	if err != nil {
		return nil, err
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": result},
	}, nil
}

var unary = map[string]func(float64) float64{
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"sinh":  math.Sinh,
	"cosh":  math.Cosh,
	"tanh":  math.Tanh,
	"asinh": math.Asinh,
	"acosh": math.Acosh,
	"atanh": math.Atanh,
	"sqrt":  math.Sqrt,
	"cbrt":  math.Cbrt,
	"log":   math.Log10,
	"lg":    math.Log2,
	"ln":    math.Log,
	"exp":   math.Exp,
	"rad":   func(v float64) float64 { return v * math.Pi / 180 },
	"deg":   func(v float64) float64 { return v * 180 / math.Pi },
}

var env = map[string]any{
	"pi": math.Pi,
	"e":  math.E,
}

func options() []expr.Option {
	opts := []expr.Option{expr.Env(env)}
	for name, fn := range unary {
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, goerr.New("function takes exactly one argument", goerr.V("function", name))
			}
			v, err := toFloat(params[0])
			if err != nil {
				return nil, goerr.Wrap(err, "invalid argument", goerr.V("function", name))
			}
			return fn(v), nil
		}))
	}
	return opts
}

// Evaluate computes a numeric expression. Integer arithmetic stays integral
// where the expression language keeps it so.
func Evaluate(src string) (any, error) {
	program, err := expr.Compile(src, options()...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile expression", goerr.V("expr", src))
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate expression", goerr.V("expr", src))
	}

	if _, err := toFloat(out); err != nil {
		return nil, goerr.New("expression is not numeric", goerr.V("expr", src), goerr.V("result", out))
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	}
	return 0, goerr.New("not a number", goerr.V("value", v))
}
