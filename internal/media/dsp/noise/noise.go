// Package noise applies RNNoise-based ML noise suppression to the
// capture path ahead of AGC/VAD (spec §4.8: optional capture-side signal
// conditioning).
package noise

/*
#cgo pkg-config: rnnoise
#include <rnnoise.h>
#include <stdlib.h>
*/
import "C"
import (
	"sync"
	"unsafe"
)

const frameSize = 480 // RNNoise native frame size

// Canceller splits each 960-sample (20ms @ 48kHz) frame into two 480-sample
// halves and denoises each with its own persistent RNNoise state.
type Canceller struct {
	mu      sync.Mutex
	st0     *C.DenoiseState
	st1     *C.DenoiseState
	level   float32 // 0.0 = bypass, 1.0 = full suppression
	enabled bool

	cIn  *C.float
	cOut *C.float
}

// New allocates two RNNoise state instances and pre-allocated C buffers.
func New() *Canceller {
	cIn := (*C.float)(C.malloc(C.size_t(frameSize) * C.size_t(unsafe.Sizeof(C.float(0)))))
	cOut := (*C.float)(C.malloc(C.size_t(frameSize) * C.size_t(unsafe.Sizeof(C.float(0)))))
	return &Canceller{
		st0:     C.rnnoise_create(nil),
		st1:     C.rnnoise_create(nil),
		level:   1.0,
		enabled: false,
		cIn:     cIn,
		cOut:    cOut,
	}
}

// SetEnabled enables or disables noise suppression.
func (nc *Canceller) SetEnabled(on bool) {
	nc.mu.Lock()
	nc.enabled = on
	nc.mu.Unlock()
}

// SetLevel sets the suppression blend level, clamped to [0, 1].
func (nc *Canceller) SetLevel(level float32) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	nc.mu.Lock()
	nc.level = level
	nc.mu.Unlock()
}

// Process applies noise suppression in-place to buf (must be exactly 960
// samples). No-op when disabled or level == 0.
func (nc *Canceller) Process(buf []float32) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if !nc.enabled || nc.level == 0 {
		return
	}

	inSlice := unsafe.Slice(nc.cIn, frameSize)
	outSlice := unsafe.Slice(nc.cOut, frameSize)
	level := nc.level

	for i := 0; i < frameSize; i++ {
		inSlice[i] = C.float(buf[i] * 32767.0)
	}
	C.rnnoise_process_frame(nc.st0, nc.cOut, nc.cIn)
	for i := 0; i < frameSize; i++ {
		denoised := float32(outSlice[i]) / 32767.0
		buf[i] = buf[i]*(1-level) + denoised*level
	}

	for i := 0; i < frameSize; i++ {
		inSlice[i] = C.float(buf[frameSize+i] * 32767.0)
	}
	C.rnnoise_process_frame(nc.st1, nc.cOut, nc.cIn)
	for i := 0; i < frameSize; i++ {
		denoised := float32(outSlice[i]) / 32767.0
		buf[frameSize+i] = buf[frameSize+i]*(1-level) + denoised*level
	}
}

// Close frees the underlying C RNNoise state instances and buffers.
func (nc *Canceller) Close() error {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	if nc.st0 != nil {
		C.rnnoise_destroy(nc.st0)
		nc.st0 = nil
	}
	if nc.st1 != nil {
		C.rnnoise_destroy(nc.st1)
		nc.st1 = nil
	}
	if nc.cIn != nil {
		C.free(unsafe.Pointer(nc.cIn))
		nc.cIn = nil
	}
	if nc.cOut != nil {
		C.free(unsafe.Pointer(nc.cOut))
		nc.cOut = nil
	}
	return nil
}
