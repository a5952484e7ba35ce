// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package motorbridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/robovox/internal/events"
)

// LineKind classifies one telemetry line by its prefix.
type LineKind int

const (
	LineUnknown LineKind = iota
	LineData
	LineAck
	LineAlert
	LineScan
)

// String returns the metric label for a line kind.
func (k LineKind) String() string {
	switch k {
	case LineData:
		return "data"
	case LineAck:
		return "ack"
	case LineAlert:
		return "alert"
	case LineScan:
		return "scan"
	default:
		return "unknown"
	}
}

// Classify determines the line kind from its prefix.
func Classify(line string) LineKind {
	switch {
	case strings.HasPrefix(line, "DATA:"):
		return LineData
	case strings.HasPrefix(line, "ACK:"):
		return LineAck
	case strings.HasPrefix(line, "ALERT:"):
		return LineAlert
	case strings.HasPrefix(line, "SCAN:"):
		return LineScan
	default:
		return LineUnknown
	}
}

// SensorFrame is one parsed DATA telemetry record. Distances are in
// centimeters; -1 denotes "no echo".
type SensorFrame struct {
	S1       int
	S2       int
	S3       int
	MQ2      int
	Servo    int
	LMotor   int
	RMotor   int
	Obstacle bool
	Warning  bool
}

// dataKeys is the canonical field order of a DATA line.
var dataKeys = []string{"S1", "S2", "S3", "MQ2", "SERVO", "LMOTOR", "RMOTOR", "OBSTACLE", "WARNING"}

// ParseDataLine parses a DATA telemetry line:
//
//	DATA:S1:42,S2:-1,S3:100,MQ2:120,SERVO:90,LMOTOR:80,RMOTOR:80,OBSTACLE:0,WARNING:0
//
// Every field must be present and integral; a malformed line is rejected
// whole (the frame is dropped, never partially applied).
func ParseDataLine(line string) (SensorFrame, error) {
	var frame SensorFrame

	body, ok := strings.CutPrefix(line, "DATA:")
	if !ok {
		return frame, fmt.Errorf("not a DATA line: %q", line)
	}

	values := make(map[string]int, len(dataKeys))
	for _, pair := range strings.Split(body, ",") {
		key, raw, found := strings.Cut(pair, ":")
		if !found {
			return frame, fmt.Errorf("malformed field %q", pair)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return frame, fmt.Errorf("field %s is not an integer: %q", key, raw)
		}
		values[key] = n
	}

	for _, key := range dataKeys {
		if _, ok := values[key]; !ok {
			return frame, fmt.Errorf("missing field %s", key)
		}
	}

	frame = SensorFrame{
		S1:       values["S1"],
		S2:       values["S2"],
		S3:       values["S3"],
		MQ2:      values["MQ2"],
		Servo:    values["SERVO"],
		LMotor:   values["LMOTOR"],
		RMotor:   values["RMOTOR"],
		Obstacle: values["OBSTACLE"] != 0,
		Warning:  values["WARNING"] != 0,
	}
	return frame, nil
}

// EncodeLine renders the frame back into its canonical DATA line form.
// For any well-formed line, EncodeLine(ParseDataLine(line)) == line.
func (f SensorFrame) EncodeLine() string {
	var b strings.Builder
	b.WriteString("DATA:")
	fmt.Fprintf(&b, "S1:%d,S2:%d,S3:%d,MQ2:%d,SERVO:%d,LMOTOR:%d,RMOTOR:%d,OBSTACLE:%d,WARNING:%d",
		f.S1, f.S2, f.S3, f.MQ2, f.Servo, f.LMotor, f.RMotor, boolInt(f.Obstacle), boolInt(f.Warning))
	return b.String()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// MinDistance returns the minimum non-negative distance reading, or -1
// when all three sensors report no echo.
func (f SensorFrame) MinDistance() int {
	min := -1
	for _, d := range []int{f.S1, f.S2, f.S3} {
		if d < 0 {
			continue
		}
		if min < 0 || d < min {
			min = d
		}
	}
	return min
}

// Report converts the frame to its esp32.raw bus representation.
func (f SensorFrame) Report(ts int64) events.SensorReport {
	return events.SensorReport{
		Data: events.SensorData{
			S1:          f.S1,
			S2:          f.S2,
			S3:          f.S3,
			MQ2:         f.MQ2,
			LMotor:      f.LMotor,
			RMotor:      f.RMotor,
			Obstacle:    f.Obstacle,
			Warning:     f.Warning,
			MinDistance: f.MinDistance(),
			IsSafe:      !f.Obstacle && !f.Warning,
		},
		TS: ts,
	}
}

// Ack is a parsed acknowledgment line.
type Ack struct {
	Command string
	OK      bool
	Reason  string
}

// ParseAckLine parses ACK:<CMD>:OK or ACK:<CMD>:BLOCKED:<REASON>.
func ParseAckLine(line string) (Ack, error) {
	body, ok := strings.CutPrefix(line, "ACK:")
	if !ok {
		return Ack{}, fmt.Errorf("not an ACK line: %q", line)
	}

	cmd, rest, found := strings.Cut(body, ":")
	if !found || cmd == "" {
		return Ack{}, fmt.Errorf("malformed ACK line: %q", line)
	}

	switch {
	case rest == "OK":
		return Ack{Command: cmd, OK: true}, nil
	case strings.HasPrefix(rest, "BLOCKED"):
		reason := strings.TrimPrefix(rest, "BLOCKED")
		reason = strings.TrimPrefix(reason, ":")
		return Ack{Command: cmd, OK: false, Reason: reason}, nil
	default:
		return Ack{}, fmt.Errorf("unknown ACK status in %q", line)
	}
}

// ParseAlertLine parses ALERT:COLLISION:<detail>, returning the detail.
func ParseAlertLine(line string) (string, error) {
	body, ok := strings.CutPrefix(line, "ALERT:COLLISION")
	if !ok {
		return "", fmt.Errorf("not a collision alert: %q", line)
	}
	return strings.TrimPrefix(body, ":"), nil
}

// ParseScanLine parses one line of a scan sweep into its structured
// esp32.scan representation.
func ParseScanLine(line string) (events.ScanReport, error) {
	body, ok := strings.CutPrefix(line, "SCAN:")
	if !ok {
		return events.ScanReport{}, fmt.Errorf("not a SCAN line: %q", line)
	}

	switch {
	case body == "START":
		return events.ScanReport{Phase: "start"}, nil
	case body == "COMPLETE":
		return events.ScanReport{Phase: "complete"}, nil
	case strings.HasPrefix(body, "POS:"):
		return parseScanPos(strings.TrimPrefix(body, "POS:"))
	case strings.HasPrefix(body, "BEST:"):
		return parseScanBest(strings.TrimPrefix(body, "BEST:"))
	default:
		return events.ScanReport{}, fmt.Errorf("unknown SCAN line: %q", line)
	}
}

// parseScanPos parses "<angle>,S1:%d,S2:%d,S3:%d".
func parseScanPos(body string) (events.ScanReport, error) {
	parts := strings.Split(body, ",")
	if len(parts) != 4 {
		return events.ScanReport{}, fmt.Errorf("malformed SCAN:POS body %q", body)
	}

	angle, err := strconv.Atoi(parts[0])
	if err != nil {
		return events.ScanReport{}, fmt.Errorf("SCAN:POS angle %q: %w", parts[0], err)
	}

	sample := events.ScanSample{Angle: angle}
	for i, field := range []*int{&sample.S1, &sample.S2, &sample.S3} {
		key := fmt.Sprintf("S%d", i+1)
		raw, ok := strings.CutPrefix(parts[i+1], key+":")
		if !ok {
			return events.ScanReport{}, fmt.Errorf("SCAN:POS field %q lacks %s prefix", parts[i+1], key)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return events.ScanReport{}, fmt.Errorf("SCAN:POS field %s %q: %w", key, raw, err)
		}
		*field = n
	}

	return events.ScanReport{Phase: "pos", Sample: &sample}, nil
}

// parseScanBest parses "<angle>,DIST:<cm>".
func parseScanBest(body string) (events.ScanReport, error) {
	angleStr, distPart, found := strings.Cut(body, ",")
	if !found {
		return events.ScanReport{}, fmt.Errorf("malformed SCAN:BEST body %q", body)
	}

	angle, err := strconv.Atoi(angleStr)
	if err != nil {
		return events.ScanReport{}, fmt.Errorf("SCAN:BEST angle %q: %w", angleStr, err)
	}

	raw, ok := strings.CutPrefix(distPart, "DIST:")
	if !ok {
		return events.ScanReport{}, fmt.Errorf("SCAN:BEST field %q lacks DIST prefix", distPart)
	}
	dist, err := strconv.Atoi(raw)
	if err != nil {
		return events.ScanReport{}, fmt.Errorf("SCAN:BEST distance %q: %w", raw, err)
	}

	return events.ScanReport{Phase: "best", BestAngle: angle, BestDist: dist}, nil
}
