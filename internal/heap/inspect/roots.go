package inspect

import (
	"context"
	"fmt"

	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/referrers"
)

// Roots lists static reference fields of every class, in class dump order, followed
// by the dump's GC roots in dump order. Roots whose object is missing from the dump
// carry a nil Type.
func (in *Inspector) Roots(ctx context.Context) ([]referrers.RootDescriptor, error) {
	var roots []referrers.RootDescriptor

	in.heap.Classes.EachDump(func(dump *model.ClassDump) bool {
		for _, f := range dump.StaticFields {
			if !f.Type.IsReference() || f.Value == 0 {
				continue
			}
			name := in.className(dump.ClassObjectID) + "." + in.heap.Strings.GetOrUnresolved(f.NameID)
			roots = append(roots, in.root(referrers.Address(dump.ClassObjectID), f.Value, referrers.StaticVar, name))
		}
		return true
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, gc := range in.heap.Roots.All() {
		kind, name := in.describeRoot(gc)
		roots = append(roots, in.root(0, gc.ObjectID, kind, name))
	}

	return roots, nil
}

func (in *Inspector) root(slot referrers.Address, obj model.ID, kind referrers.RootKind, name string) referrers.RootDescriptor {
	r := referrers.RootDescriptor{
		Address: slot,
		Object:  referrers.Address(obj),
		Kind:    kind,
		Name:    name,
	}
	if o, ok := in.Object(r.Object); ok {
		r.Type = o.Type
		r.Size = o.Size
	}
	return r
}

func (in *Inspector) describeRoot(gc model.GCRoot) (referrers.RootKind, string) {
	switch gc.Tag {
	case model.HPROF_GC_ROOT_JNI_GLOBAL:
		return referrers.StrongHandle, "JNI global"
	case model.HPROF_GC_ROOT_JNI_LOCAL:
		return referrers.LocalVar, "JNI local " + in.frameName(gc)
	case model.HPROF_GC_ROOT_JAVA_FRAME:
		return referrers.LocalVar, "local " + in.frameName(gc)
	case model.HPROF_GC_ROOT_NATIVE_STACK:
		return referrers.LocalVar, "native stack of " + in.threadName(gc.ThreadSerialNumber)
	case model.HPROF_GC_ROOT_STICKY_CLASS:
		return referrers.StrongHandle, "system class " + in.className(gc.ObjectID)
	case model.HPROF_GC_ROOT_THREAD_BLOCK:
		return referrers.StrongHandle, "thread block of " + in.threadName(gc.ThreadSerialNumber)
	case model.HPROF_GC_ROOT_MONITOR_USED:
		return referrers.Pinning, "busy monitor"
	case model.HPROF_GC_ROOT_THREAD_OBJ:
		return referrers.StrongHandle, "thread " + in.threadName(gc.ThreadSerialNumber)
	default:
		return referrers.StrongHandle, "unknown root"
	}
}

func (in *Inspector) threadName(serial model.SerialNum) string {
	if thread, ok := in.heap.Stacks.Thread(serial); ok {
		return fmt.Sprintf("%q", in.heap.Strings.GetOrUnresolved(thread.ThreadNameID))
	}
	return fmt.Sprintf("thread #%d", serial)
}

// frameName renders "in Class.method (File.java:42) of "main"" when the frame is known
func (in *Inspector) frameName(gc model.GCRoot) string {
	frame, ok := in.heap.Stacks.FrameOf(gc.ThreadSerialNumber, gc.FrameNumber)
	if !ok {
		return "in " + in.threadName(gc.ThreadSerialNumber)
	}

	method := in.heap.Strings.GetOrUnresolved(frame.MethodNameID)
	if classID, ok := in.heap.Classes.BySerial(frame.ClassSerialNumber); ok {
		method = in.className(classID) + "." + method
	}

	source := in.heap.Strings.GetOrUnresolved(frame.SourceFileNameID)
	var location string
	switch {
	case frame.LineNumber > 0:
		location = fmt.Sprintf("%s:%d", source, frame.LineNumber)
	case frame.LineNumber == model.LineNative:
		location = "native method"
	case frame.LineNumber == model.LineCompiled:
		location = "compiled method"
	default:
		location = source
	}

	return fmt.Sprintf("in %s (%s) of %s", method, location, in.threadName(gc.ThreadSerialNumber))
}
