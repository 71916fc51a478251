package main

// cgo is unavailable inside _test.go files, so the tests in this
// package drive the exported surface through the wrappers below. The C
// callback forwards into goTestRecordEnvelope (ctest_record.go) the
// same way a host binary would forward into its own handler.

/*
#include <stdlib.h>

typedef void (*ma_event_callback)(const char* event_json, void* user_data);

extern void goTestRecordEnvelope(char* event_json);

static void ma_test_forward(const char* event_json, void* user_data) {
	goTestRecordEnvelope((char*)event_json);
}

static ma_event_callback ma_test_forward_ptr(void) {
	return ma_test_forward;
}
*/
import "C"

import "unsafe"

func newRuntimeForTest(configJSON string) unsafe.Pointer {
	cfg := C.CString(configJSON)
	defer C.free(unsafe.Pointer(cfg))
	return ma_runtime_new(cfg)
}

func invokeForTest(handle unsafe.Pointer, requestJSON string) string {
	req := C.CString(requestJSON)
	defer C.free(unsafe.Pointer(req))

	out := ma_invoke_json(handle, req)
	if out == nil {
		return ""
	}
	defer ma_free_c_string(out)
	return C.GoString(out)
}

func invokeNilRequestForTest(handle unsafe.Pointer) string {
	out := ma_invoke_json(handle, nil)
	if out == nil {
		return ""
	}
	defer ma_free_c_string(out)
	return C.GoString(out)
}

func freeNilCStringForTest() {
	ma_free_c_string(nil)
}

func registerRecordingCallbackForTest(handle unsafe.Pointer) {
	ma_set_event_callback(handle, C.ma_test_forward_ptr(), nil)
}

func disableCallbackForTest(handle unsafe.Pointer) {
	ma_set_event_callback(handle, nil, nil)
}
