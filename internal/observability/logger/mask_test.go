package logger

import "testing"

func TestMaskAuthorization(t *testing.T) {
	got := MaskAuthorization("Bearer sk_live_9f8e7d6c")
	want := "Bearer ****7d6c"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskCookie(t *testing.T) {
	got := MaskCookie("session=deadbeef42; theme=dark")
	want := "session=****ef42; theme=****dark"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskJSON(t *testing.T) {
	input := map[string]any{
		"password": "hunter2",
		"token":    "tok_9876",
		"nested": map[string]any{
			"api_key": "key_00112233",
		},
		"amount_cents": int64(18750),
	}
	masked := MaskJSON(input)
	if masked["password"] != "****ter2" {
		t.Fatalf("expected masked password, got %v", masked["password"])
	}
	if masked["token"] != "****9876" {
		t.Fatalf("expected masked token, got %v", masked["token"])
	}
	nested, ok := masked["nested"].(map[string]any)
	if !ok {
		t.Fatal("expected nested map")
	}
	if nested["api_key"] != "****2233" {
		t.Fatalf("expected masked api_key, got %v", nested["api_key"])
	}
	if masked["amount_cents"] != int64(18750) {
		t.Fatalf("expected amount untouched, got %v", masked["amount_cents"])
	}
}
