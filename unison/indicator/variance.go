package indicator

// Variance maintains the unbiased sample variance of the last n pushed
// values using the windowed form of the Youngs-Cramer update: the running
// numerator is adjusted with both the old and new mean, and with the evicted
// element once the window is saturated. The running mean stays available
// through Mean.
type Variance struct {
	avg *Average
	num float64
	has bool
}

func NewVariance(n int) (*Variance, error) {
	avg, err := NewAverage(n)
	if err != nil {
		return nil, err
	}
	return &Variance{avg: avg}, nil
}

func (va *Variance) Push(v float64) {
	oldAvg, ok := va.avg.Value()
	if !ok {
		va.avg.Push(v)
		return
	}
	oldest := va.avg.sum.win.oldest()
	evicting := va.avg.len() == va.avg.sum.win.cap()
	va.avg.Push(v)
	newAvg, _ := va.avg.Value()
	var d float64
	if evicting {
		d = (v - newAvg + oldest - oldAvg) * (v - oldest)
	} else {
		d = (v - newAvg) * (v - oldAvg)
	}
	va.num += d
	if va.num < 0 {
		// Cancellation can push the numerator epsilon-negative.
		va.num = 0
	}
	va.has = true
}

func (va *Variance) Value() (float64, bool) {
	if !va.has || va.avg.len() < 2 {
		return 0, false
	}
	return va.num / float64(va.avg.len()-1), true
}

// Mean reports the running mean over the same window.
func (va *Variance) Mean() (float64, bool) {
	return va.avg.Value()
}

// Covariance maintains the unbiased sample covariance of the last n pushed
// pairs, with the same update scheme as Variance applied across the two
// coupled streams.
type Covariance struct {
	xAvg *Average
	yAvg *Average
	num  float64
	has  bool
}

func NewCovariance(n int) (*Covariance, error) {
	xAvg, err := NewAverage(n)
	if err != nil {
		return nil, err
	}
	yAvg, err := NewAverage(n)
	if err != nil {
		return nil, err
	}
	return &Covariance{xAvg: xAvg, yAvg: yAvg}, nil
}

func (cv *Covariance) Push(x, y float64) {
	oldXAvg, ok := cv.xAvg.Value()
	if !ok {
		cv.xAvg.Push(x)
		cv.yAvg.Push(y)
		return
	}
	lastX := cv.xAvg.sum.win.oldest()
	lastY := cv.yAvg.sum.win.oldest()
	evicting := cv.xAvg.len() == cv.xAvg.sum.win.cap()
	cv.xAvg.Push(x)
	cv.yAvg.Push(y)
	newYAvg, _ := cv.yAvg.Value()
	d := (x - oldXAvg) * (y - newYAvg)
	if evicting {
		d -= (lastX - oldXAvg) * (lastY - newYAvg)
	}
	cv.num += d
	cv.has = true
}

func (cv *Covariance) Value() (float64, bool) {
	if !cv.has || cv.xAvg.len() < 2 {
		return 0, false
	}
	return cv.num / float64(cv.xAvg.len()-1), true
}
