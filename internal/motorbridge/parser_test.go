// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package motorbridge

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want LineKind
	}{
		{"DATA:S1:10,S2:20", LineData},
		{"ACK:FORWARD:OK", LineAck},
		{"ALERT:COLLISION:front", LineAlert},
		{"SCAN:START", LineScan},
		{"SCAN:COMPLETE", LineScan},
		{"GARBAGE", LineUnknown},
		{"", LineUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.line); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestDataLineRoundTrip(t *testing.T) {
	lines := []string{
		"DATA:S1:42,S2:-1,S3:100,MQ2:120,SERVO:90,LMOTOR:80,RMOTOR:80,OBSTACLE:0,WARNING:0",
		"DATA:S1:5,S2:8,S3:12,MQ2:0,SERVO:0,LMOTOR:0,RMOTOR:0,OBSTACLE:1,WARNING:1",
		"DATA:S1:-1,S2:-1,S3:-1,MQ2:300,SERVO:45,LMOTOR:-50,RMOTOR:50,OBSTACLE:0,WARNING:1",
	}

	for _, line := range lines {
		frame, err := ParseDataLine(line)
		if err != nil {
			t.Fatalf("ParseDataLine(%q): %v", line, err)
		}
		if got := frame.EncodeLine(); got != line {
			t.Errorf("round trip mismatch:\n got %q\nwant %q", got, line)
		}
	}
}

func TestParseDataLineRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"non-numeric value", "DATA:S1:NaN,S2:12,S3:30"},
		{"missing fields", "DATA:S1:10,S2:20,S3:30"},
		{"field without value", "DATA:S1,S2:20,S3:30,MQ2:0,SERVO:0,LMOTOR:0,RMOTOR:0,OBSTACLE:0,WARNING:0"},
		{"wrong prefix", "INFO:S1:10"},
		{"empty body", "DATA:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDataLine(tt.line); err == nil {
				t.Errorf("ParseDataLine(%q) should fail", tt.line)
			}
		})
	}
}

func TestMinDistance(t *testing.T) {
	tests := []struct {
		name       string
		s1, s2, s3 int
		want       int
	}{
		{"all positive", 42, 30, 100, 30},
		{"one no-echo", -1, 50, 60, 50},
		{"two no-echo", -1, -1, 25, 25},
		{"all no-echo", -1, -1, -1, -1},
		{"zero is valid", 0, 10, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := SensorFrame{S1: tt.s1, S2: tt.s2, S3: tt.s3}
			if got := f.MinDistance(); got != tt.want {
				t.Errorf("MinDistance() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReportMapsToBusSchema(t *testing.T) {
	frame := SensorFrame{S1: -1, S2: 40, S3: 60, MQ2: 150, Servo: 90, LMotor: 70, RMotor: 70}
	report := frame.Report(1700000000)

	if report.Data.MinDistance != 40 {
		t.Errorf("min_distance = %d, want 40", report.Data.MinDistance)
	}
	if report.Data.Obstacle || report.Data.Warning {
		t.Error("flags should be clear")
	}
	if !report.Data.IsSafe {
		t.Error("clear frame must be safe")
	}
	if report.TS != 1700000000 {
		t.Errorf("ts = %d", report.TS)
	}

	unsafe := SensorFrame{S1: 5, S2: 5, S3: 5, Obstacle: true}
	if unsafe.Report(0).Data.IsSafe {
		t.Error("obstacle frame must not be safe")
	}
}

func TestParseAckLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Ack
		wantErr bool
	}{
		{"ACK:FORWARD:OK", Ack{Command: "FORWARD", OK: true}, false},
		{"ACK:FORWARD:BLOCKED:OBSTACLE", Ack{Command: "FORWARD", OK: false, Reason: "OBSTACLE"}, false},
		{"ACK:STOP:BLOCKED", Ack{Command: "STOP", OK: false}, false},
		{"ACK:FORWARD:MAYBE", Ack{}, true},
		{"ACK:", Ack{}, true},
		{"NACK:FORWARD:OK", Ack{}, true},
	}

	for _, tt := range tests {
		got, err := ParseAckLine(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAckLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAckLine(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseAlertLine(t *testing.T) {
	detail, err := ParseAlertLine("ALERT:COLLISION:front-left")
	if err != nil {
		t.Fatal(err)
	}
	if detail != "front-left" {
		t.Errorf("detail = %q, want front-left", detail)
	}

	if _, err := ParseAlertLine("ALERT:OVERHEAT:cpu"); err == nil {
		t.Error("non-collision alert should be rejected")
	}
}

func TestParseScanLine(t *testing.T) {
	start, err := ParseScanLine("SCAN:START")
	if err != nil || start.Phase != "start" {
		t.Errorf("SCAN:START = %+v, %v", start, err)
	}

	complete, err := ParseScanLine("SCAN:COMPLETE")
	if err != nil || complete.Phase != "complete" {
		t.Errorf("SCAN:COMPLETE = %+v, %v", complete, err)
	}

	pos, err := ParseScanLine("SCAN:POS:90,S1:42,S2:55,S3:-1")
	if err != nil {
		t.Fatalf("SCAN:POS: %v", err)
	}
	if pos.Phase != "pos" || pos.Sample == nil {
		t.Fatalf("SCAN:POS = %+v", pos)
	}
	if pos.Sample.Angle != 90 || pos.Sample.S1 != 42 || pos.Sample.S3 != -1 {
		t.Errorf("sample = %+v", pos.Sample)
	}

	best, err := ParseScanLine("SCAN:BEST:135,DIST:88")
	if err != nil {
		t.Fatalf("SCAN:BEST: %v", err)
	}
	if best.Phase != "best" || best.BestAngle != 135 || best.BestDist != 88 {
		t.Errorf("best = %+v", best)
	}

	bad := []string{"SCAN:POS:x,S1:1,S2:2,S3:3", "SCAN:POS:90,S1:1", "SCAN:BEST:90", "SCAN:WAT"}
	for _, line := range bad {
		if _, err := ParseScanLine(line); err == nil {
			t.Errorf("ParseScanLine(%q) should fail", line)
		}
	}
}
