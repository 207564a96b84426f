package ddiclient

import (
	"fmt"
	"io"
	"time"
)

// speedMeter wraps a response body, enforcing the low-speed abort (spec
// §4.1/§5: abort when the transfer runs below lowSpeedRate bytes/sec for a
// continuous window of lowSpeedTime). It is the generalization of the
// teacher's progressReader (a reporter-closure around io.Reader) from
// "always report" to "abort on sustained violation".
type speedMeter struct {
	r             io.Reader
	lowSpeedTime  time.Duration
	lowSpeedRate  int64
	start         time.Time
	total         int64
	lastOKAt      time.Time
	lastOKBytes   int64
	now           func() time.Time
}

func newSpeedMeter(r io.Reader, lowSpeedTime time.Duration, lowSpeedRate int64) *speedMeter {
	now := time.Now()
	return &speedMeter{
		r:            r,
		lowSpeedTime: lowSpeedTime,
		lowSpeedRate: lowSpeedRate,
		start:        now,
		lastOKAt:     now,
		now:          time.Now,
	}
}

func (m *speedMeter) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.total += int64(n)

	if m.lowSpeedTime > 0 && m.lowSpeedRate > 0 {
		now := m.now()
		elapsed := now.Sub(m.lastOKAt)
		bytesSinceOK := m.total - m.lastOKBytes
		rate := int64(0)
		if elapsed > 0 {
			rate = int64(float64(bytesSinceOK) / elapsed.Seconds())
		}
		if rate >= m.lowSpeedRate || elapsed < m.lowSpeedTime {
			if rate >= m.lowSpeedRate {
				m.lastOKAt = now
				m.lastOKBytes = m.total
			}
		} else {
			return n, fmt.Errorf("transfer stalled below %d bytes/sec for %s", m.lowSpeedRate, m.lowSpeedTime)
		}
	}

	return n, err
}

// avgSpeed returns the average transfer speed in bytes/sec over the whole
// read, given the final byte count n.
func (m *speedMeter) avgSpeed(n int64) float64 {
	elapsed := m.now().Sub(m.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed
}
