package registry

import (
	"github.com/mabhi256/heapref/internal/heap/model"
)

// StackRegistry holds frames, traces and threads, used to name stack roots
type StackRegistry struct {
	frames  *Registry[model.ID, *model.Frame]
	traces  *Registry[model.SerialNum, *model.Trace]
	threads *Registry[model.SerialNum, *model.StartThread]
}

func NewStackRegistry() *StackRegistry {
	return &StackRegistry{
		frames:  New[model.ID, *model.Frame](),
		traces:  New[model.SerialNum, *model.Trace](),
		threads: New[model.SerialNum, *model.StartThread](),
	}
}

func (r *StackRegistry) AddFrame(frame *model.Frame) {
	r.frames.Add(frame.StackFrameID, frame)
}

func (r *StackRegistry) AddTrace(trace *model.Trace) {
	r.traces.Add(trace.StackTraceSerialNumber, trace)
}

func (r *StackRegistry) StartThread(thread *model.StartThread) {
	r.threads.Add(thread.ThreadSerialNumber, thread)
}

func (r *StackRegistry) Frame(id model.ID) (*model.Frame, bool) {
	return r.frames.Get(id)
}

func (r *StackRegistry) Trace(serial model.SerialNum) (*model.Trace, bool) {
	return r.traces.Get(serial)
}

func (r *StackRegistry) Thread(serial model.SerialNum) (*model.StartThread, bool) {
	return r.threads.Get(serial)
}

// FrameOf returns the frameNumber-th frame of the thread's stack trace
func (r *StackRegistry) FrameOf(threadSerial model.SerialNum, frameNumber int32) (*model.Frame, bool) {
	if frameNumber < 0 {
		return nil, false
	}

	var trace *model.Trace
	if thread, ok := r.threads.Get(threadSerial); ok {
		trace, _ = r.traces.Get(thread.StackTraceSerialNumber)
	}
	if trace == nil {
		// older dumps only link traces to threads from the trace side
		r.traces.Each(func(_ model.SerialNum, t *model.Trace) bool {
			if t.ThreadSerialNumber == threadSerial {
				trace = t
				return false
			}
			return true
		})
	}
	if trace == nil || int(frameNumber) >= len(trace.StackFrameIDs) {
		return nil, false
	}

	return r.frames.Get(trace.StackFrameIDs[frameNumber])
}

func (r *StackRegistry) FrameCount() int {
	return r.frames.Count()
}

func (r *StackRegistry) TraceCount() int {
	return r.traces.Count()
}

func (r *StackRegistry) ThreadCount() int {
	return r.threads.Count()
}
