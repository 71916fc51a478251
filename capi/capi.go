// Command capi exposes the runtime over a C ABI. Build it as a shared
// library (go build -buildmode=c-shared) and drive it from any host that
// can call C functions.
//
// Handle discipline: ma_runtime_new returns an opaque handle that is a
// registry index, never a Go pointer. Every handle must be released
// exactly once with ma_runtime_free; releasing NULL is a no-op. The host
// must not call ma_runtime_free concurrently with other calls on the
// same handle — drain in-flight work first.
package main

/*
#include <stdlib.h>

typedef void (*ma_event_callback)(const char* event_json, void* user_data);

static void ma_call_event_callback(ma_event_callback cb, const char* event_json, void* user_data) {
	cb(event_json, user_data);
}
*/
import "C"

import (
	"unsafe"

	meetingcore "github.com/meetingassist/meeting-core"
	"github.com/meetingassist/meeting-core/internal/handles"
)

var registry = handles.NewRegistry()

const invalidHandleEnvelope = `{"ok":false,"schemaVersion":1,"error":{"code":"invalid_handle","message":"handle is not a live runtime"}}`
const invalidRequestEnvelope = `{"ok":false,"schemaVersion":1,"error":{"code":"invalid_request","message":"request pointer is null"}}`

//export ma_runtime_new
func ma_runtime_new(configJSON *C.char) unsafe.Pointer {
	cfg := ""
	if configJSON != nil {
		cfg = C.GoString(configJSON)
	}
	rt, err := meetingcore.New(cfg)
	if err != nil {
		return nil
	}
	// the handle is a registry index wearing a pointer type, so no Go
	// pointer ever crosses the boundary
	h := registry.Register(rt)
	return unsafe.Pointer(h)
}

//export ma_runtime_free
func ma_runtime_free(handle unsafe.Pointer) {
	if handle == nil {
		return
	}
	obj, ok := registry.Unregister(uintptr(handle))
	if !ok {
		return
	}
	rt := obj.(*meetingcore.Runtime)
	rt.SetEventCallback(nil)
	_ = rt.Close()
}

//export ma_invoke_json
func ma_invoke_json(handle unsafe.Pointer, requestJSON *C.char) *C.char {
	if requestJSON == nil {
		return C.CString(invalidRequestEnvelope)
	}
	rt, ok := lookup(handle)
	if !ok {
		return C.CString(invalidHandleEnvelope)
	}
	return C.CString(rt.InvokeJSON(C.GoString(requestJSON)))
}

//export ma_set_event_callback
func ma_set_event_callback(handle unsafe.Pointer, callback C.ma_event_callback, userData unsafe.Pointer) {
	rt, ok := lookup(handle)
	if !ok {
		return
	}
	if callback == nil {
		rt.SetEventCallback(nil)
		return
	}

	// the serialized envelope already names its event, so the C side
	// receives a single self-describing string
	rt.SetEventCallback(func(event string, payload []byte) {
		cEnvelope := C.CString(string(payload))
		C.ma_call_event_callback(callback, cEnvelope, userData)
		C.free(unsafe.Pointer(cEnvelope))
	})
}

//export ma_free_c_string
func ma_free_c_string(ptr *C.char) {
	if ptr == nil {
		return
	}
	C.free(unsafe.Pointer(ptr))
}

func lookup(handle unsafe.Pointer) (*meetingcore.Runtime, bool) {
	if handle == nil {
		return nil, false
	}
	obj, ok := registry.Lookup(uintptr(handle))
	if !ok {
		return nil, false
	}
	return obj.(*meetingcore.Runtime), true
}

func main() {}
