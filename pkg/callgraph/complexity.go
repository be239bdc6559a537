package callgraph

import (
	"github.com/pkg/errors"
)

// Complexity is the ordered set of asymptotic complexity classes assigned to
// call graph functions by an external bounds analyzer.
type Complexity int

const (
	ComplexityZero Complexity = iota
	ComplexityConstant
	ComplexityLogarithmic
	ComplexityLinear
	ComplexityQuadratic
	ComplexityCubic
	ComplexityQuartic
	ComplexityGeneric
	// ComplexityUnknown sorts above Generic so that unclassified functions are
	// never removed by a threshold comparison.
	ComplexityUnknown
)

var complexityNames = map[Complexity]string{
	ComplexityZero:        "zero",
	ComplexityConstant:    "constant",
	ComplexityLogarithmic: "logarithmic",
	ComplexityLinear:      "linear",
	ComplexityQuadratic:   "quadratic",
	ComplexityCubic:       "cubic",
	ComplexityQuartic:     "quartic",
	ComplexityGeneric:     "generic",
	ComplexityUnknown:     "unknown",
}

func (c Complexity) String() string {
	name, ok := complexityNames[c]
	if !ok {
		return "unknown"
	}
	return name
}

func ParseComplexity(s string) (Complexity, error) {
	for complexity, name := range complexityNames {
		if name == s {
			return complexity, nil
		}
	}
	return ComplexityUnknown, errors.Errorf("unsupported complexity class: %q", s)
}

// MaxComplexity selects the class with the highest degree.
func MaxComplexity(values ...Complexity) Complexity {
	max := ComplexityZero
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}

func (c Complexity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Complexity) UnmarshalText(text []byte) error {
	parsed, err := ParseComplexity(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
