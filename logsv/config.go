package logsv

import "fmt"

// VariableType selects which transform variable a pricing or density grid
// refers to: the forward log-return, the accumulated quadratic variation
// annualized by maturity, or the volatility level shifted by the mean level.
type VariableType int

const (
	LogReturn VariableType = iota
	QVar
	Sigma
)

func (v VariableType) String() string {
	switch v {
	case LogReturn:
		return "log_return"
	case QVar:
		return "qvar"
	case Sigma:
		return "sigma"
	}
	return fmt.Sprintf("VariableType(%d)", int(v))
}

// MarshalText implements encoding.TextMarshaler for request/response bodies.
func (v VariableType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *VariableType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "log_return":
		*v = LogReturn
	case "qvar":
		*v = QVar
	case "sigma":
		*v = Sigma
	default:
		return fmt.Errorf("unknown variable type %q", string(b))
	}
	return nil
}

// Measure selects the pricing measure. Under Spot the forward log-return
// satisfies E[exp(X)] = 1; under Inverse (the numeraire is the asset itself,
// as for inverse futures) E[exp(-X)] = 1 and the volatility drift carries a
// leverage adjustment.
type Measure int

const (
	Spot Measure = iota
	Inverse
)

func (m Measure) String() string {
	switch m {
	case Spot:
		return "spot"
	case Inverse:
		return "inverse"
	}
	return fmt.Sprintf("Measure(%d)", int(m))
}

func (m Measure) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Measure) UnmarshalText(b []byte) error {
	switch string(b) {
	case "spot":
		*m = Spot
	case "inverse":
		*m = Inverse
	default:
		return fmt.Errorf("unknown measure %q", string(b))
	}
	return nil
}

// Alpha is the sign of the convexity drift of the log-return under the
// measure: dX = Alpha * 0.5 * eta^2 sigma^2 dt + eta sigma dW0.
func (m Measure) Alpha() float64 {
	if m == Inverse {
		return 1.0
	}
	return -1.0
}
