// Package indicator implements streaming statistics over a sliding window of
// fixed capacity: sum, mean, variance, covariance, linear regression and a
// running median. Every indicator follows the same contract: a constructor
// taking the window size, Push to feed one element, and Value which reports
// the current statistic together with a bool that is false until enough
// elements have been seen.
//
// All updates are O(1) amortised except the median, which is O(log n).
// Indicators are not safe for concurrent use.
package indicator

import "errors"

// ErrInvalidSize is returned by the constructors when the requested window
// size cannot hold a single element.
var ErrInvalidSize = errors.New("indicator: window size must be at least 1")

// Sum maintains the sum of the last n pushed values.
type Sum struct {
	win *window
	sum float64
	has bool
}

func NewSum(n int) (*Sum, error) {
	if n < 1 {
		return nil, ErrInvalidSize
	}
	return &Sum{win: newWindow(n)}, nil
}

func (s *Sum) Push(v float64) {
	if evicted, ok := s.win.push(v); ok {
		s.sum += v - evicted
	} else {
		s.sum += v
	}
	s.has = true
}

func (s *Sum) Value() (float64, bool) {
	return s.sum, s.has
}

// Average maintains the mean of the last n pushed values.
type Average struct {
	sum *Sum
}

func NewAverage(n int) (*Average, error) {
	sum, err := NewSum(n)
	if err != nil {
		return nil, err
	}
	return &Average{sum: sum}, nil
}

func (a *Average) Push(v float64) {
	a.sum.Push(v)
}

func (a *Average) Value() (float64, bool) {
	v, ok := a.sum.Value()
	if !ok {
		return 0, false
	}
	return v / float64(a.sum.win.len()), true
}

// len reports how many elements are currently in the window.
func (a *Average) len() int {
	return a.sum.win.len()
}
