package agent

import "testing"

func TestValidateDecideResponse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"valid", `{"id": 3, "orders": {"FRANCE": ["A PAR - BUR"]}}`, false},
		{"valid error response", `{"id": 3, "error": "no plan"}`, false},
		{"missing id", `{"orders": {}}`, true},
		{"orders not object", `{"id": 3, "orders": ["A PAR H"]}`, true},
		{"order not string", `{"id": 3, "orders": {"FRANCE": [42]}}`, true},
		{"not json", `garbage`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse("decide", []byte(tt.line))
			if (err != nil) != tt.wantErr {
				t.Errorf("validateResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNegotiateResponse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"valid", `{"id": 1, "messages": [{"recipient": "GERMANY", "body": "truce?"}]}`, false},
		{"valid broadcast", `{"id": 1, "messages": [{"recipient": "ALL", "body": "hi", "kind": "broadcast"}]}`, false},
		{"empty messages", `{"id": 1, "messages": []}`, false},
		{"message missing body", `{"id": 1, "messages": [{"recipient": "GERMANY"}]}`, true},
		{"bad kind", `{"id": 1, "messages": [{"recipient": "GERMANY", "body": "x", "kind": "shout"}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse("negotiate", []byte(tt.line))
			if (err != nil) != tt.wantErr {
				t.Errorf("validateResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUnknownOp(t *testing.T) {
	if err := validateResponse("shutdown", []byte(`{"id": 1}`)); err == nil {
		t.Errorf("expected error for unknown op")
	}
}
