package runtime

import "testing"

func TestParseStageStatus_Aliases(t *testing.T) {
	cases := map[string]StageStatus{
		"success":         StatusSuccess,
		"ok":              StatusSuccess,
		"partial_success": StatusPartialSuccess,
		"partial-success": StatusPartialSuccess,
		"retry":           StatusRetry,
		"fail":            StatusFail,
		"failure":         StatusFail,
		"error":           StatusFail,
		"skipped":         StatusSkipped,
		"skip":            StatusSkipped,
	}
	for in, want := range cases {
		got, err := ParseStageStatus(in)
		if err != nil {
			t.Fatalf("ParseStageStatus(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseStageStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseStageStatus_CustomValuePassesThroughLowercased(t *testing.T) {
	got, err := ParseStageStatus("Ported")
	if err != nil {
		t.Fatalf("ParseStageStatus: %v", err)
	}
	if got != StageStatus("ported") {
		t.Fatalf("got %q, want ported", got)
	}
	if got.IsCanonical() {
		t.Fatalf("custom status should not be canonical")
	}
}

func TestParseStageStatus_EmptyIsError(t *testing.T) {
	if _, err := ParseStageStatus("   "); err == nil {
		t.Fatalf("expected error for empty status")
	}
}

func TestGateSatisfied(t *testing.T) {
	satisfied := []StageStatus{StatusSuccess, StatusPartialSuccess}
	unsatisfied := []StageStatus{StatusRetry, StatusFail, StatusSkipped}
	for _, s := range satisfied {
		if !s.GateSatisfied() {
			t.Fatalf("%q should satisfy a goal gate", s)
		}
	}
	for _, s := range unsatisfied {
		if s.GateSatisfied() {
			t.Fatalf("%q should not satisfy a goal gate", s)
		}
	}
}

func TestOutcomeCanonicalize_FillsNilCollections(t *testing.T) {
	o := Outcome{Status: "ok"}
	co, err := o.Canonicalize()
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if co.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success", co.Status)
	}
	if co.ContextUpdates == nil || co.SuggestedNextIDs == nil {
		t.Fatalf("Canonicalize should fill nil collections")
	}
}

func TestOutcomeCanonicalize_RejectsEmptyStatus(t *testing.T) {
	if _, err := (Outcome{}).Canonicalize(); err == nil {
		t.Fatalf("expected error for empty status")
	}
}

func TestOutcomeValidate_RequiresFailureReasonOnFailOrRetry(t *testing.T) {
	if err := (Outcome{Status: StatusFail}).Validate(); err == nil {
		t.Fatalf("expected error for Fail with no failure_reason")
	}
	if err := (Outcome{Status: StatusRetry}).Validate(); err == nil {
		t.Fatalf("expected error for Retry with no failure_reason")
	}
	if err := (Outcome{Status: StatusFail, FailureReason: "bad"}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := (Outcome{Status: StatusSuccess}).Validate(); err != nil {
		t.Fatalf("Success should never require a failure_reason: %v", err)
	}
}
