package domain

import (
	"errors"
	"testing"
)

func validRequest() ScopeRequest {
	return ScopeRequest{
		ConditionID:       "cond-1",
		PrimaryDocumentID: "doc-1",
		Scope:             ScopePage,
		SelectionBox:      &BoundingBox{X: 0.1, Y: 0.1, Width: 0.05, Height: 0.05},
	}
}

func TestScopeRequest_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ScopeRequest)
		wantErr bool
	}{
		{"valid page scope", func(r *ScopeRequest) {}, false},
		{"valid document scope", func(r *ScopeRequest) { r.Scope = ScopeDocument }, false},
		{"valid project scope", func(r *ScopeRequest) {
			r.Scope = ScopeProject
			r.ProjectID = "proj-1"
		}, false},
		{"missing condition", func(r *ScopeRequest) { r.ConditionID = "" }, true},
		{"missing document", func(r *ScopeRequest) { r.PrimaryDocumentID = "" }, true},
		{"project scope without projectId", func(r *ScopeRequest) { r.Scope = ScopeProject }, true},
		{"unknown scope", func(r *ScopeRequest) { r.Scope = "building" }, true},
		{"threshold above one", func(r *ScopeRequest) { r.ConfidenceThreshold = 1.5 }, true},
		{"no template and no selection", func(r *ScopeRequest) {
			r.SelectionBox = nil
		}, true},
		{"template id instead of selection", func(r *ScopeRequest) {
			r.SelectionBox = nil
			r.TemplateID = "tpl-1"
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)

			err := req.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("error not wrapped with ErrValidation: %v", err)
			}
		})
	}
}

func TestScopeRequest_ApplyDefaults(t *testing.T) {
	req := ScopeRequest{ConditionID: "c", PrimaryDocumentID: "d"}
	req.ApplyDefaults()

	if req.Scope != ScopePage {
		t.Errorf("default scope: got %q, want %q", req.Scope, ScopePage)
	}
	if req.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("default threshold: got %g", req.ConfidenceThreshold)
	}
	if req.MaxMatches != DefaultMaxMatches {
		t.Errorf("default maxMatches: got %d", req.MaxMatches)
	}
	if req.PageNumber != 0 {
		t.Errorf("page should stay unset for later resolution, got %d", req.PageNumber)
	}
}

func TestScopeRequest_ApplyDefaults_PreservesExplicit(t *testing.T) {
	req := ScopeRequest{ConfidenceThreshold: 0.9, MaxMatches: 50, PageNumber: 3}
	req.ApplyDefaults()

	if req.ConfidenceThreshold != 0.9 || req.MaxMatches != 50 || req.PageNumber != 3 {
		t.Errorf("explicit values overwritten: %+v", req)
	}
}
