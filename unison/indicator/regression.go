package indicator

// LinearRegression fits y = a + b*x over the last n pushed pairs. It
// composes a Variance over the x stream with a Covariance over (x, y);
// the slope is the ratio of the two raw numerators and the intercept
// follows from the window sums. Value reports nothing while fewer than
// two pairs have been seen or while the x stream carries no variance.
type LinearRegression struct {
	vr *Variance
	cv *Covariance
}

func NewLinearRegression(n int) (*LinearRegression, error) {
	vr, err := NewVariance(n)
	if err != nil {
		return nil, err
	}
	cv, err := NewCovariance(n)
	if err != nil {
		return nil, err
	}
	return &LinearRegression{vr: vr, cv: cv}, nil
}

func (lr *LinearRegression) Push(x, y float64) {
	lr.vr.Push(x)
	lr.cv.Push(x, y)
}

// Value returns the intercept and slope of the current fit.
func (lr *LinearRegression) Value() (intercept, slope float64, ok bool) {
	if !lr.vr.has || !lr.cv.has || lr.vr.num == 0 {
		return 0, 0, false
	}
	sumX, _ := lr.cv.xAvg.sum.Value()
	sumY, _ := lr.cv.yAvg.sum.Value()
	n := float64(lr.cv.xAvg.len())
	slope = lr.cv.num / lr.vr.num
	intercept = (sumY - slope*sumX) / n
	return intercept, slope, true
}

// Eval evaluates the current fit at x. With no fit available yet it
// degrades to zero, which callers treat as "no correction".
func (lr *LinearRegression) Eval(x float64) float64 {
	a, b, ok := lr.Value()
	if !ok {
		return 0
	}
	return a + b*x
}
