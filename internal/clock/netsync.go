// ABOUTME: Server clock estimation for network stream sources
// ABOUTME: Tracks offset and drift between a stream server and this host
package clock

import (
	"log"
	"sync"
	"time"
)

// Quality represents server clock estimate quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

const (
	maxSampleRTT     = 100000 // µs, samples above are discarded
	maxResidual      = 50000  // µs, larger residuals look like clock jumps
	degradedRTT      = 50000  // µs
	lostAfter        = 5 * time.Second
	defaultSmoothing = 0.1
)

// ServerClock estimates the offset and drift of a stream server's clock from
// four-timestamp exchanges (client send, server receive, server send,
// client receive), all in microseconds.
type ServerClock struct {
	mu sync.RWMutex

	now func() time.Time

	offset         int64   // server - client, µs
	drift          float64 // µs per µs
	rtt            int64
	quality        Quality
	lastSync       time.Time
	lastSyncMicros int64 // client time of the last accepted sample
	samples        int
	smoothing      float64
}

// NewServerClock creates an estimator with no samples
func NewServerClock() *ServerClock {
	return &ServerClock{
		now:       time.Now,
		smoothing: defaultSmoothing,
		quality:   QualityLost,
	}
}

// ClientMicros returns this host's wall clock in microseconds
func (sc *ServerClock) ClientMicros() int64 {
	return sc.now().UnixMicro()
}

// ProcessSample folds one timestamp exchange into the estimate
func (sc *ServerClock) ProcessSample(t1, t2, t3, t4 int64) {
	rtt := (t4 - t1) - (t3 - t2)
	measured := ((t2 - t1) + (t3 - t4)) / 2

	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.rtt = rtt
	sc.lastSync = sc.now()

	if rtt > maxSampleRTT {
		log.Printf("Discarding clock sample: high RTT %dµs", rtt)
		return
	}

	switch sc.samples {
	case 0:
		sc.offset = measured
		sc.lastSyncMicros = t4
		sc.samples++
		sc.quality = QualityGood
		log.Printf("Initial server clock: offset=%dµs, rtt=%dµs", sc.offset, rtt)
		return
	case 1:
		if dt := float64(t4 - sc.lastSyncMicros); dt > 0 {
			sc.drift = float64(measured-sc.offset) / dt
		}
		sc.offset = measured
		sc.lastSyncMicros = t4
		sc.samples++
		sc.quality = QualityGood
		return
	}

	dt := float64(t4 - sc.lastSyncMicros)
	if dt <= 0 {
		log.Printf("Discarding clock sample: non-monotonic time")
		return
	}

	// Predict from the drift model, then correct by a fraction of the residual
	predicted := sc.offset + int64(sc.drift*dt)
	residual := measured - predicted
	if residual > maxResidual || residual < -maxResidual {
		log.Printf("Discarding clock sample: residual %dµs", residual)
		return
	}

	sc.offset = predicted + int64(sc.smoothing*float64(residual))
	sc.drift += sc.smoothing * float64(residual) / dt
	sc.lastSyncMicros = t4
	sc.samples++

	if rtt < degradedRTT {
		sc.quality = QualityGood
	} else {
		sc.quality = QualityDegraded
	}

	if sc.samples < 10 {
		log.Printf("Clock sample #%d: offset=%dµs, drift=%.9f, residual=%dµs, rtt=%dµs",
			sc.samples, sc.offset, sc.drift, residual, rtt)
	}
}

// Synced reports whether any sample has been accepted
func (sc *ServerClock) Synced() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.samples > 0
}

// ServerMicros returns the current time on the server's clock
func (sc *ServerClock) ServerMicros() int64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	client := sc.now().UnixMicro()
	if sc.samples == 0 {
		return client
	}
	return client + sc.offset + int64(sc.drift*float64(client-sc.lastSyncMicros))
}

// ServerToLocal converts a server timestamp to local wall time
func (sc *ServerClock) ServerToLocal(server int64) time.Time {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if sc.samples == 0 {
		return time.UnixMicro(server)
	}

	// server = client*(1+drift) + offset - drift*lastSync
	client := (float64(server) - float64(sc.offset) + sc.drift*float64(sc.lastSyncMicros)) / (1 + sc.drift)
	return time.UnixMicro(int64(client))
}

// Stats returns the offset, last RTT and quality
func (sc *ServerClock) Stats() (offset, rtt int64, quality Quality) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.offset, sc.rtt, sc.quality
}

// CheckQuality marks the estimate lost when samples stop arriving
func (sc *ServerClock) CheckQuality() Quality {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.now().Sub(sc.lastSync) > lostAfter {
		sc.quality = QualityLost
	}
	return sc.quality
}
