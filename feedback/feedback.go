// Package feedback builds the DDI feedback/attribute JSON payloads (spec
// §4.2). It performs no I/O; ddiclient POSTs/PUTs the bytes it produces.
package feedback

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Finished is the DDI "result.finished" enum.
type Finished string

const (
	FinishedNone    Finished = "none"
	FinishedSuccess Finished = "success"
	FinishedFailure Finished = "failure"
)

// Execution is the DDI "status.execution" enum.
type Execution string

const (
	ExecutionProceeding Execution = "proceeding"
	ExecutionClosed     Execution = "closed"
	ExecutionRejected   Execution = "rejected"
)

type result struct {
	Finished Finished `json:"finished"`
}

type status struct {
	Result    result    `json:"result"`
	Execution Execution `json:"execution"`
	Details   []string  `json:"details,omitempty"`
}

// Payload is the wire shape POSTed to a feedback endpoint, or the identify
// payload PUT to configData when Data is set.
type Payload struct {
	ID     string            `json:"id,omitempty"`
	Time   string            `json:"time"`
	Status status            `json:"status"`
	Data   map[string]string `json:"data,omitempty"`
}

// now is overridable in tests so feedback timestamps are deterministic.
var now = func() time.Time { return time.Now().UTC() }

func timestamp() string {
	return now().Format("20060102T150405")
}

// Progress builds a none/proceeding feedback payload carrying a single
// detail line, used for in-flight download/install status.
func Progress(actionID, detail string) *Payload {
	p := &Payload{
		ID:   actionID,
		Time: timestamp(),
		Status: status{
			Result:    result{Finished: FinishedNone},
			Execution: ExecutionProceeding,
		},
	}
	if detail != "" {
		p.Status.Details = []string{detail}
	}
	return p
}

// Terminal builds a success|failure / closed feedback payload for a
// deployment's terminal outcome.
func Terminal(actionID string, success bool, detail string) *Payload {
	finished := FinishedFailure
	if success {
		finished = FinishedSuccess
	}
	p := &Payload{
		ID:   actionID,
		Time: timestamp(),
		Status: status{
			Result:    result{Finished: finished},
			Execution: ExecutionClosed,
		},
	}
	if detail != "" {
		p.Status.Details = []string{detail}
	}
	return p
}

// CancelAcknowledged builds the success/closed feedback sent when a cancel
// was honored (canceled, or the stopId was unknown/not in progress).
func CancelAcknowledged(actionID, detail string) *Payload {
	return &Payload{
		ID:   actionID,
		Time: timestamp(),
		Status: status{
			Result:    result{Finished: FinishedSuccess},
			Execution: ExecutionClosed,
			Details:   detailsOrNil(detail),
		},
	}
}

// CancelRejected builds the success/rejected feedback sent when a cancel
// arrives after installation has already started.
func CancelRejected(actionID, detail string) *Payload {
	return &Payload{
		ID:   actionID,
		Time: timestamp(),
		Status: status{
			Result:    result{Finished: FinishedSuccess},
			Execution: ExecutionRejected,
			Details:   detailsOrNil(detail),
		},
	}
}

// Identify builds the success/closed configData payload carrying the
// device's attribute map.
func Identify(attrs map[string]string) *Payload {
	return &Payload{
		Time: timestamp(),
		Status: status{
			Result:    result{Finished: FinishedSuccess},
			Execution: ExecutionClosed,
		},
		Data: attrs,
	}
}

func detailsOrNil(detail string) []string {
	if detail == "" {
		return nil
	}
	return []string{detail}
}

// Marshal encodes p as the DDI wire format.
func Marshal(p *Payload) ([]byte, error) {
	return json.Marshal(p)
}
