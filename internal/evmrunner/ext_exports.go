//go:build cgo && engine
// +build cgo,engine

package evmrunner

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

/*
#include <stdint.h>
typedef struct {
    uint8_t* ptr;
    uint32_t len;
} engine_bytes;
*/
import "C"

// extHandles is a global registry of active Ext instances referenced from
// the external engine library via an opaque handle, the same pattern as
// revm_bridge/handles.go's handleMap for *state.StateDB.
var extHandles sync.Map // map[uintptr]Ext

var extHandleSeq uintptr

func registerExt(ext Ext) uintptr {
	h := atomic.AddUintptr(&extHandleSeq, 1)
	extHandles.Store(h, ext)
	return h
}

func releaseExt(h uintptr) {
	extHandles.Delete(h)
}

func lookupExt(h uintptr) (Ext, bool) {
	v, ok := extHandles.Load(h)
	if !ok {
		return nil, false
	}
	return v.(Ext), true
}

// extActions drains the action log recorded for handle h, for the caller to
// fold into block-level results after a Call returns.
func extActions(h uintptr) []LoggedAction {
	ext, ok := lookupExt(h)
	if !ok {
		return nil
	}
	return ext.Actions()
}

//export re_ext_get
func re_ext_get(handle C.uintptr_t, key *C.uint8_t, keyLen C.uint32_t, out *C.engine_bytes) C.int {
	ext, ok := lookupExt(uintptr(handle))
	if !ok || out == nil {
		return -1
	}
	k := C.GoBytes(unsafe.Pointer(key), C.int(keyLen))
	v, present := ext.Get(k)
	if !present {
		out.ptr = nil
		out.len = 0
		return 1
	}
	cbuf := C.CBytes(v)
	out.ptr = (*C.uint8_t)(cbuf)
	out.len = C.uint32_t(len(v))
	return 0
}

//export re_ext_has_key
func re_ext_has_key(handle C.uintptr_t, key *C.uint8_t, keyLen C.uint32_t) C.int {
	ext, ok := lookupExt(uintptr(handle))
	if !ok {
		return -1
	}
	k := C.GoBytes(unsafe.Pointer(key), C.int(keyLen))
	if ext.HasKey(k) {
		return 1
	}
	return 0
}

//export re_ext_set
func re_ext_set(handle C.uintptr_t, key *C.uint8_t, keyLen C.uint32_t, val *C.uint8_t, valLen C.uint32_t) C.int {
	ext, ok := lookupExt(uintptr(handle))
	if !ok {
		return -1
	}
	k := C.GoBytes(unsafe.Pointer(key), C.int(keyLen))
	v := C.GoBytes(unsafe.Pointer(val), C.int(valLen))
	ext.Set(k, v)
	return 0
}

//export re_ext_remove
func re_ext_remove(handle C.uintptr_t, key *C.uint8_t, keyLen C.uint32_t) C.int {
	ext, ok := lookupExt(uintptr(handle))
	if !ok {
		return -1
	}
	k := C.GoBytes(unsafe.Pointer(key), C.int(keyLen))
	ext.Remove(k)
	return 0
}

//export re_ext_log_action
func re_ext_log_action(handle C.uintptr_t, kind C.uint8_t, data *C.uint8_t, dataLen C.uint32_t) {
	ext, ok := lookupExt(uintptr(handle))
	if !ok {
		return
	}
	d := C.GoBytes(unsafe.Pointer(data), C.int(dataLen))
	ext.LogAction(ActionKind(kind), d)
}
