package models

import "testing"

func TestValidJobType(t *testing.T) {
	for _, jt := range []JobType{JobTypeOpenURL, JobTypeSnapshotSuite, JobTypeStressRun, JobTypeWorkflowRun, JobTypeDeviceProfile} {
		if !ValidJobType(jt) {
			t.Errorf("%s should be valid", jt)
		}
	}
	if ValidJobType("make_coffee") {
		t.Error("make_coffee should not be valid")
	}
	if ValidJobType("") {
		t.Error("Empty type should not be valid")
	}
}

func TestTerminal(t *testing.T) {
	cases := map[JobStatus]bool{
		JobStatusQueued:    false,
		JobStatusRunning:   false,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestLaneIDFor(t *testing.T) {
	if got := LaneIDFor("emulator-5554"); got != "device:emulator-5554" {
		t.Errorf("Wrong lane id: %s", got)
	}
	if got := LaneIDFor(""); got != DefaultLaneID {
		t.Errorf("Expected default lane, got %s", got)
	}
}

func TestPayloadCopy(t *testing.T) {
	orig := Payload{
		"url":    "https://example.com",
		"nested": map[string]interface{}{"depth": 2},
	}

	cp := orig.Copy()
	cp["url"] = "https://elsewhere"
	cp["nested"].(map[string]interface{})["depth"] = 99

	if orig["url"] != "https://example.com" {
		t.Error("Top-level copy is not independent")
	}
	if orig["nested"].(map[string]interface{})["depth"] != 2 {
		t.Error("Nested copy is not independent")
	}
}

func TestPayloadCopyDeepNesting(t *testing.T) {
	orig := Payload{
		"meta": map[string]interface{}{
			"inner": map[string]interface{}{"depth": 3},
		},
		"steps": []interface{}{
			map[string]interface{}{"action": "tap", "args": []interface{}{"1", "2"}},
		},
	}

	cp := orig.Copy()
	cp["meta"].(map[string]interface{})["inner"].(map[string]interface{})["depth"] = 99
	step := cp["steps"].([]interface{})[0].(map[string]interface{})
	step["action"] = "swipe"
	step["args"].([]interface{})[0] = "mutated"

	if orig["meta"].(map[string]interface{})["inner"].(map[string]interface{})["depth"] != 3 {
		t.Error("Two-level nested map is shared with the copy")
	}
	origStep := orig["steps"].([]interface{})[0].(map[string]interface{})
	if origStep["action"] != "tap" {
		t.Error("Map inside a slice is shared with the copy")
	}
	if origStep["args"].([]interface{})[0] != "1" {
		t.Error("Slice inside a nested map is shared with the copy")
	}
}

func TestPayloadCopyNil(t *testing.T) {
	var p Payload
	if p.Copy() != nil {
		t.Error("Copy of nil payload should be nil")
	}
}
