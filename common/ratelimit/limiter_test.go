package ratelimit

import "testing"

func TestParseScriptReplyAllowed(t *testing.T) {
	res, err := parseScriptReply([]interface{}{int64(1), int64(3), int64(100), int64(0)})
	if err != nil {
		t.Fatalf("parseScriptReply returned error: %v", err)
	}
	if !res.Allowed || res.CurrentCount != 3 || res.Limit != 100 || res.RetryAfterSeconds != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestParseScriptReplyDenied(t *testing.T) {
	res, err := parseScriptReply([]interface{}{int64(0), int64(101), int64(100), int64(17)})
	if err != nil {
		t.Fatalf("parseScriptReply returned error: %v", err)
	}
	if res.Allowed {
		t.Error("expected the request to be denied")
	}
	if res.RetryAfterSeconds != 17 {
		t.Errorf("expected retry_after 17, got %d", res.RetryAfterSeconds)
	}
}

func TestParseScriptReplyMalformed(t *testing.T) {
	if _, err := parseScriptReply("nope"); err == nil {
		t.Error("expected an error for a non-array reply")
	}
	if _, err := parseScriptReply([]interface{}{int64(1)}); err == nil {
		t.Error("expected an error for a short reply")
	}
	if _, err := parseScriptReply([]interface{}{"x", int64(0), int64(0), int64(0)}); err == nil {
		t.Error("expected an error for a non-integer element")
	}
}

func TestKeyNamespacing(t *testing.T) {
	if got := key("user", "bob"); got != "archon:ratelimit:user:bob" {
		t.Errorf("unexpected key: %s", got)
	}
	if got := key("global"); got != "archon:ratelimit:global" {
		t.Errorf("unexpected key: %s", got)
	}
}
