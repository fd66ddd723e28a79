package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		CodeProtoBadRequest,
		CodeSessionNotLive,
		CodeUserGateRequired,
		CodeSurfaceNotAllowed,
		CodeEventNotAllowed,
		CodeBadRequest,
		CodeInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("not_defined") {
		t.Fatalf("expected unknown code rejected")
	}
}
