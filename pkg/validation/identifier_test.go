// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		wantErr  bool
	}{
		// Valid tenant ids
		{"simple", "acme", false},
		{"default tenant", "default", false},
		{"single char", "a", false},
		{"with digits", "tenant42", false},
		{"with hyphen", "acme-health", false},
		{"with underscore", "acme_health", false},
		{"max length", strings.Repeat("a", 64), false},

		// Invalid tenant ids - injection attempts
		{"empty", "", true},
		{"path traversal", "../default", true},
		{"absolute path", "/etc/passwd", true},
		{"leading hyphen", "-rf", true},
		{"leading dot", ".hidden", true},
		{"slash", "acme/other", true},
		{"spaces", "acme health", true},
		{"newline", "acme\nother", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.tenantID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTenantID(%q) error = %v, wantErr %v", tt.tenantID, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeTenantID(t *testing.T) {
	tenant, err := SanitizeTenantID("  Acme-Health ")
	if err != nil {
		t.Fatalf("SanitizeTenantID returned error: %v", err)
	}
	if tenant != "acme-health" {
		t.Errorf("SanitizeTenantID = %q, want %q", tenant, "acme-health")
	}

	if _, err := SanitizeTenantID("../escape"); err == nil {
		t.Error("SanitizeTenantID accepted path traversal")
	}
}
