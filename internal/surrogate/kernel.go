package surrogate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kernel is a constant-scaled anisotropic squared-exponential covariance
//
//	k(x, x') = Amplitude * exp(-1/2 * sum_d ((x_d - x'_d) / LengthScales[d])^2)
type Kernel struct {
	Amplitude    float64
	LengthScales []float64
}

// Eval returns the covariance between two parameter vectors
func (k Kernel) Eval(a, b []float64) float64 {
	var d2 float64
	for i, l := range k.LengthScales {
		d := (a[i] - b[i]) / l
		d2 += d * d
	}
	return k.Amplitude * math.Exp(-0.5*d2)
}

// Gram returns the symmetric covariance matrix of the rows of x with nugget added to the diagonal
func (k Kernel) Gram(x mat.Matrix, nugget float64) *mat.SymDense {
	n, _ := x.Dims()
	rows := rowsOf(x)
	g := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		g.SetSym(i, i, k.Amplitude+nugget)
		for j := i + 1; j < n; j++ {
			g.SetSym(i, j, k.Eval(rows[i], rows[j]))
		}
	}
	return g
}

// Cross returns the n×s covariance between training rows x and query rows q
func (k Kernel) Cross(x, q mat.Matrix) *mat.Dense {
	n, _ := x.Dims()
	s, _ := q.Dims()
	xr := rowsOf(x)
	qr := rowsOf(q)
	c := mat.NewDense(n, s, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < s; j++ {
			c.Set(i, j, k.Eval(xr[i], qr[j]))
		}
	}
	return c
}

func rowsOf(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	if rv, ok := m.(mat.RawRowViewer); ok {
		for i := range rows {
			rows[i] = rv.RawRowView(i)
		}
		return rows
	}
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}
