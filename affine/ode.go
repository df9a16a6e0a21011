package affine

import (
	"errors"
	"math/cmplx"

	"github.com/banachtech/stochvol/logsv"
)

// pointCoef carries the constant coefficients of one transform point's ODE
// system. With d_m = (m+1) A_{m+1} and E the coefficient array of
// (Sum_m d_m y^m)^2, the system reads
//
//	dA_k/dtau = s_k + Sum_j p_j d_{k-j}
//	          + 0.5 vartheta^2 (theta^2 E_k + 2 theta E_{k-1} + E_{k-2}).
type pointCoef struct {
	s0, s1, s2 complex128
	p0, p1, p2 complex128
	hv, t2, tt complex128
	terms      int
}

func newPointCoef(p logsv.Params, cfg Config, phi, psi complex128, eta float64) pointCoef {
	alpha := complex(cfg.Measure.Alpha(), 0)
	ceta := complex(eta, 0)
	c := 0.5*phi*(phi-alpha) - psi

	// Inverse-measure drift adjustment, optionally levered by the backbone.
	ind := complex(0, 0)
	if cfg.Measure == logsv.Inverse {
		ind = complex(1, 0)
		if cfg.BackboneInDrift {
			ind = ceta
		}
	}
	b := (ind - phi*ceta) * complex(p.Beta, 0)

	theta := complex(p.Theta, 0)
	kappa := complex(p.Kappa(), 0)
	return pointCoef{
		s0:    c * ceta * ceta * theta * theta,
		s1:    2 * c * ceta * ceta * theta,
		s2:    c * ceta * ceta,
		p0:    b * theta * theta,
		p1:    2*b*theta - kappa,
		p2:    b - complex(p.Kappa2, 0),
		hv:    complex(0.5*p.Vartheta2(), 0),
		t2:    theta * theta,
		tt:    2 * theta,
		terms: cfg.Order.Terms(),
	}
}

// rhs writes dA/dtau into dst. The quadratic arrays are expanded by hand for
// both truncation orders.
func (pc pointCoef) rhs(dst, a []complex128) {
	switch pc.terms {
	case 3:
		d0, d1 := a[1], 2*a[2]
		e0 := 2*a[2] + a[1]*a[1]
		e1 := 4 * a[1] * a[2]
		e2 := 4 * a[2] * a[2]
		dst[0] = pc.s0 + pc.p0*d0 + pc.hv*pc.t2*e0
		dst[1] = pc.s1 + pc.p0*d1 + pc.p1*d0 + pc.hv*(pc.t2*e1+pc.tt*e0)
		dst[2] = pc.s2 + pc.p1*d1 + pc.p2*d0 + pc.hv*(pc.t2*e2+pc.tt*e1+e0)
	case 5:
		d0, d1, d2, d3 := a[1], 2*a[2], 3*a[3], 4*a[4]
		e0 := 2*a[2] + a[1]*a[1]
		e1 := 6*a[3] + 4*a[1]*a[2]
		e2 := 12*a[4] + 4*a[2]*a[2] + 6*a[1]*a[3]
		e3 := 12*a[2]*a[3] + 8*a[1]*a[4]
		e4 := 9*a[3]*a[3] + 16*a[2]*a[4]
		dst[0] = pc.s0 + pc.p0*d0 + pc.hv*pc.t2*e0
		dst[1] = pc.s1 + pc.p0*d1 + pc.p1*d0 + pc.hv*(pc.t2*e1+pc.tt*e0)
		dst[2] = pc.s2 + pc.p0*d2 + pc.p1*d1 + pc.p2*d0 + pc.hv*(pc.t2*e2+pc.tt*e1+e0)
		dst[3] = pc.p0*d3 + pc.p1*d2 + pc.p2*d1 + pc.hv*(pc.t2*e3+pc.tt*e2+e1)
		dst[4] = pc.p1*d3 + pc.p2*d2 + pc.hv*(pc.t2*e4+pc.tt*e3+e2)
	}
}

// jacobian writes d rhs / dA into the row-major matrix jac. The first column
// stays zero because A0 never feeds back.
func (pc pointCoef) jacobian(jac [][]complex128, a []complex128) {
	for i := range jac {
		for j := range jac[i] {
			jac[i][j] = 0
		}
	}
	switch pc.terms {
	case 3:
		jac[0][1] = pc.p0 + 2*pc.hv*pc.t2*a[1]
		jac[0][2] = 2 * pc.hv * pc.t2
		jac[1][1] = pc.p1 + pc.hv*(4*pc.t2*a[2]+2*pc.tt*a[1])
		jac[1][2] = 2*pc.p0 + pc.hv*(4*pc.t2*a[1]+2*pc.tt)
		jac[2][1] = pc.p2 + pc.hv*(4*pc.tt*a[2]+2*a[1])
		jac[2][2] = 2*pc.p1 + pc.hv*(8*pc.t2*a[2]+4*pc.tt*a[1]+2)
	case 5:
		jac[0][1] = pc.p0 + 2*pc.hv*pc.t2*a[1]
		jac[0][2] = 2 * pc.hv * pc.t2
		jac[1][1] = pc.p1 + pc.hv*(4*pc.t2*a[2]+2*pc.tt*a[1])
		jac[1][2] = 2*pc.p0 + pc.hv*(4*pc.t2*a[1]+2*pc.tt)
		jac[1][3] = 6 * pc.hv * pc.t2
		jac[2][1] = pc.p2 + pc.hv*(6*pc.t2*a[3]+4*pc.tt*a[2]+2*a[1])
		jac[2][2] = 2*pc.p1 + pc.hv*(8*pc.t2*a[2]+4*pc.tt*a[1]+2)
		jac[2][3] = 3*pc.p0 + pc.hv*(6*pc.t2*a[1]+6*pc.tt)
		jac[2][4] = 12 * pc.hv * pc.t2
		jac[3][1] = pc.hv * (8*pc.t2*a[4] + 6*pc.tt*a[3] + 4*a[2])
		jac[3][2] = 2*pc.p2 + pc.hv*(12*pc.t2*a[3]+8*pc.tt*a[2]+4*a[1])
		jac[3][3] = 3*pc.p1 + pc.hv*(12*pc.t2*a[2]+6*pc.tt*a[1]+6)
		jac[3][4] = 4*pc.p0 + pc.hv*(8*pc.t2*a[1]+12*pc.tt)
		jac[4][1] = pc.hv * (8*pc.tt*a[4] + 6*a[3])
		jac[4][2] = pc.hv * (16*pc.t2*a[4] + 12*pc.tt*a[3] + 8*a[2])
		jac[4][3] = 3*pc.p2 + pc.hv*(18*pc.t2*a[3]+12*pc.tt*a[2]+6*a[1])
		jac[4][4] = 4*pc.p1 + pc.hv*(16*pc.t2*a[2]+8*pc.tt*a[1]+12)
	}
}

// solveLinear solves the small dense complex system in place by Gaussian
// elimination with partial pivoting. gonum's mat package has no complex
// factorizations, and the systems here are at most 5x5.
func solveLinear(m [][]complex128, rhs []complex128) error {
	n := len(rhs)
	for col := 0; col < n; col++ {
		pivot := col
		best := cmplx.Abs(m[col][col])
		for r := col + 1; r < n; r++ {
			if v := cmplx.Abs(m[r][col]); v > best {
				best, pivot = v, r
			}
		}
		if best == 0 {
			return errors.New("affine: singular newton system")
		}
		if pivot != col {
			m[col], m[pivot] = m[pivot], m[col]
			rhs[col], rhs[pivot] = rhs[pivot], rhs[col]
		}
		inv := 1 / m[col][col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] * inv
			if f == 0 {
				continue
			}
			for k := col; k < n; k++ {
				m[r][k] -= f * m[col][k]
			}
			rhs[r] -= f * rhs[col]
		}
	}
	for r := n - 1; r >= 0; r-- {
		acc := rhs[r]
		for k := r + 1; k < n; k++ {
			acc -= m[r][k] * rhs[k]
		}
		rhs[r] = acc / m[r][r]
	}
	return nil
}
