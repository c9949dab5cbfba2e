package indicator

import (
	"math"
	"sort"
	"testing"

	"pgregory.net/rapid"
)

// The property tests compare every streaming indicator against an offline
// oracle computed from scratch on the window contents after each push.

const eps = 1e-9

// tail returns the last min(len(xs), n) elements of xs.
func tail(xs []float64, n int) []float64 {
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func TestSumMatchesOracle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		xs := rapid.SliceOfN(rapid.Float64Range(0, 1), 1, 3*n).Draw(t, "xs")

		s, _ := NewSum(n)
		for i, x := range xs {
			s.Push(x)
			win := tail(xs[:i+1], n)
			var want float64
			for _, w := range win {
				want += w
			}
			got, ok := s.Value()
			if !ok {
				t.Fatalf("no value after %d pushes", i+1)
			}
			if math.Abs(got-want) > eps {
				t.Fatalf("sum after %d pushes: got %v want %v", i+1, got, want)
			}
		}
	})
}

func TestAverageMatchesOracle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		xs := rapid.SliceOfN(rapid.Float64Range(0, 1), 1, 3*n).Draw(t, "xs")

		a, _ := NewAverage(n)
		for i, x := range xs {
			a.Push(x)
			want := mean(tail(xs[:i+1], n))
			got, _ := a.Value()
			if math.Abs(got-want) > eps {
				t.Fatalf("average after %d pushes: got %v want %v", i+1, got, want)
			}
		}
	})
}

func TestVarianceMatchesOracle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 64).Draw(t, "n")
		xs := rapid.SliceOfN(rapid.Float64Range(0, 1), 2, 3*n).Draw(t, "xs")

		va, _ := NewVariance(n)
		for i, x := range xs {
			va.Push(x)
			if i == 0 {
				continue
			}
			win := tail(xs[:i+1], n)
			m := mean(win)
			var want float64
			for _, w := range win {
				want += (w - m) * (w - m)
			}
			want /= float64(len(win) - 1)
			got, ok := va.Value()
			if !ok {
				t.Fatalf("no variance after %d pushes", i+1)
			}
			if math.Abs(got-want) > eps {
				t.Fatalf("variance after %d pushes: got %v want %v", i+1, got, want)
			}
		}
	})
}

func TestCovarianceMatchesOracle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 64).Draw(t, "n")
		xs := rapid.SliceOfN(rapid.Float64Range(0, 1), 2, 3*n).Draw(t, "xs")
		ys := rapid.SliceOfN(rapid.Float64Range(0, 1), len(xs), len(xs)).Draw(t, "ys")

		cv, _ := NewCovariance(n)
		for i := range xs {
			cv.Push(xs[i], ys[i])
			if i == 0 {
				continue
			}
			wx, wy := tail(xs[:i+1], n), tail(ys[:i+1], n)
			mx, my := mean(wx), mean(wy)
			var want float64
			for j := range wx {
				want += (wx[j] - mx) * (wy[j] - my)
			}
			want /= float64(len(wx) - 1)
			got, ok := cv.Value()
			if !ok {
				t.Fatalf("no covariance after %d pushes", i+1)
			}
			if math.Abs(got-want) > eps {
				t.Fatalf("covariance after %d pushes: got %v want %v", i+1, got, want)
			}
		}
	})
}

func TestLinearRegressionMatchesOracle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 64).Draw(t, "n")
		xs := rapid.SliceOfN(rapid.Float64Range(0, 1), 2, 3*n).Draw(t, "xs")
		ys := rapid.SliceOfN(rapid.Float64Range(0, 1), len(xs), len(xs)).Draw(t, "ys")

		lr, _ := NewLinearRegression(n)
		for i := range xs {
			lr.Push(xs[i], ys[i])
			a, b, ok := lr.Value()
			if !ok {
				continue
			}
			wx, wy := tail(xs[:i+1], n), tail(ys[:i+1], n)
			fn := float64(len(wx))
			var sx, sy float64
			for j := range wx {
				sx += wx[j]
				sy += wy[j]
			}
			// Same law as (n·Σxy − Σx·Σy) / (n·Σx² − (Σx)²), summed about
			// the window means: the raw form cancels catastrophically when
			// the x values lie close together.
			mx, my := sx/fn, sy/fn
			var sxx, sxy float64
			for j := range wx {
				sxx += (wx[j] - mx) * (wx[j] - mx)
				sxy += (wx[j] - mx) * (wy[j] - my)
			}
			wantB := sxy / sxx
			wantA := (sy - wantB*sx) / fn
			if math.Abs(b-wantB) > eps {
				t.Fatalf("slope after %d pushes: got %v want %v", i+1, b, wantB)
			}
			if math.Abs(a-wantA) > eps {
				t.Fatalf("intercept after %d pushes: got %v want %v", i+1, a, wantA)
			}
		}
	})
}

func TestMedianMatchesOracle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 65).Draw(t, "n")
		xs := rapid.SliceOfN(rapid.Float64Range(0, 1), 1, 3*n).Draw(t, "xs")

		m, _ := NewMedian(n)
		for i, x := range xs {
			m.Push(x)
			win := append([]float64(nil), tail(xs[:i+1], n)...)
			sort.Float64s(win)
			var want float64
			if len(win)%2 == 0 {
				want = (win[len(win)/2-1] + win[len(win)/2]) / 2
			} else {
				want = win[len(win)/2]
			}
			got, ok := m.Value()
			if !ok {
				t.Fatalf("no median after %d pushes", i+1)
			}
			if math.Abs(got-want) > eps {
				t.Fatalf("median after %d pushes (n=%d): got %v want %v", i+1, n, got, want)
			}
		}
	})
}
