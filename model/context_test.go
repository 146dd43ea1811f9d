package model

import (
	"context"
	"testing"
)

func TestRequestContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rc      *RequestContext
		wantErr bool
	}{
		{
			name: "valid context",
			rc: &RequestContext{
				SubjectID: "emp-1",
				SessionID: "sess-1",
			},
			wantErr: false,
		},
		{
			name: "missing SubjectID",
			rc: &RequestContext{
				SessionID: "sess-1",
			},
			wantErr: true,
		},
		{
			name: "missing SessionID",
			rc: &RequestContext{
				SubjectID: "emp-1",
			},
			wantErr: true,
		},
		{
			name:    "missing both",
			rc:      &RequestContext{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestContext_HasRole(t *testing.T) {
	rc := &RequestContext{
		Roles: []string{"manager", "accountant"},
	}
	if !rc.HasRole("manager") {
		t.Error("HasRole(manager) = false, want true")
	}
	if !rc.HasRole("accountant") {
		t.Error("HasRole(accountant) = false, want true")
	}
	if rc.HasRole("intern") {
		t.Error("HasRole(intern) = true, want false")
	}
}

func TestRequestContext_HasRole_empty(t *testing.T) {
	rc := &RequestContext{}
	if rc.HasRole("manager") {
		t.Error("HasRole(manager) on empty roles = true, want false")
	}
}

func TestRequestContext_Claim(t *testing.T) {
	rc := &RequestContext{
		Claims: map[string]any{
			"email":       "ana@fiscalis.test",
			"employee_id": 7,
		},
	}
	if got := rc.Claim("email"); got != "ana@fiscalis.test" {
		t.Errorf("Claim(email) = %v, want ana@fiscalis.test", got)
	}
	if got := rc.Claim("employee_id"); got != 7 {
		t.Errorf("Claim(employee_id) = %v, want 7", got)
	}
	if got := rc.Claim("missing"); got != nil {
		t.Errorf("Claim(missing) = %v, want nil", got)
	}
}

func TestRequestContext_Claim_nil_map(t *testing.T) {
	rc := &RequestContext{}
	if got := rc.Claim("any"); got != nil {
		t.Errorf("Claim(any) on nil claims = %v, want nil", got)
	}
}

func TestWithRequestContext_and_RequestContextFrom(t *testing.T) {
	rctx := &RequestContext{
		SubjectID: "emp-1",
		SessionID: "sess-1",
	}
	ctx := WithRequestContext(context.Background(), rctx)
	got := RequestContextFrom(ctx)
	if got != rctx {
		t.Errorf("RequestContextFrom() = %v, want %v", got, rctx)
	}
}

func TestRequestContextFrom_absent(t *testing.T) {
	got := RequestContextFrom(context.Background())
	if got != nil {
		t.Errorf("RequestContextFrom(empty context) = %v, want nil", got)
	}
}

func TestMustRequestContext_present(t *testing.T) {
	rctx := &RequestContext{
		SubjectID: "emp-1",
		SessionID: "sess-1",
	}
	ctx := WithRequestContext(context.Background(), rctx)
	got := MustRequestContext(ctx)
	if got != rctx {
		t.Errorf("MustRequestContext() = %v, want %v", got, rctx)
	}
}

func TestMustRequestContext_absent_panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustRequestContext(empty context) did not panic")
		}
	}()
	MustRequestContext(context.Background())
}
