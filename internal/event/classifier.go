// Package event turns raw sensor-peer lines into typed events.
package event

import (
	"strings"
	"time"
	"unicode/utf8"

	"stimctl/internal/model"
)

const (
	lineTriggerOn  = "FES ON"
	lineTriggerOff = "FES OFF"

	telemetryPrefix  = "IMU,"
	peripheralPrefix = "CH"

	// minimum comma-separated payload fields after the telemetry prefix
	telemetryMinFields = 3
)

// DecodeLine converts one raw line to text. Undecodable bytes are replaced
// with U+FFFD so classification still proceeds on partial text; trailing
// CR/LF framing is stripped.
func DecodeLine(raw []byte) string {
	s := strings.TrimRight(string(raw), "\r\n")
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

// Classify maps one decoded line to an Event. Empty and whitespace-only
// lines are discarded: ok is false and no event is produced.
func Classify(line string, at time.Time) (model.Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return model.Event{}, false
	}

	ev := model.Event{Raw: trimmed, At: at}
	switch trimmed {
	case lineTriggerOn:
		ev.Kind = model.EventTriggerOn
		return ev, true
	case lineTriggerOff:
		ev.Kind = model.EventTriggerOff
		return ev, true
	}

	if strings.HasPrefix(trimmed, telemetryPrefix) {
		fields := strings.Split(trimmed, ",")[1:]
		if len(fields) >= telemetryMinFields {
			ev.Kind = model.EventTelemetry
			ev.Fields = fields
			return ev, true
		}
		ev.Kind = model.EventMalformed
		return ev, true
	}

	if strings.HasPrefix(trimmed, peripheralPrefix) {
		ev.Kind = model.EventPeripheralState
		return ev, true
	}

	ev.Kind = model.EventGeneric
	return ev, true
}
