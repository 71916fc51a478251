package main

// Lives apart from ctest.go because a file using //export must keep
// its cgo preamble free of definitions.

import "C"

import "sync"

var (
	recordedMu        sync.Mutex
	recordedEnvelopes []string
)

//export goTestRecordEnvelope
func goTestRecordEnvelope(envelope *C.char) {
	recordedMu.Lock()
	recordedEnvelopes = append(recordedEnvelopes, C.GoString(envelope))
	recordedMu.Unlock()
}

func takeRecordedEnvelopes() []string {
	recordedMu.Lock()
	defer recordedMu.Unlock()
	out := recordedEnvelopes
	recordedEnvelopes = nil
	return out
}
