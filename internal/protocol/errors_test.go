package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadRequest,
		ErrUnknownAction,
		ErrNotAuthenticated,
		ErrNotInWorld,
		ErrDead,
		ErrRejected,
		ErrNoPermission,
		ErrConflict,
		ErrRateLimit,
		ErrStorage,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeRequest(t *testing.T) {
	r, err := DecodeRequest([]byte(`{"id":7,"action":" world_move ","payload":{"x":1}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(r.ID) != "7" || r.Action != ActWorldMove {
		t.Fatalf("got %+v", r)
	}
	if _, err := DecodeRequest([]byte(`{"id":"a"}`)); err != ErrMissingAction {
		t.Fatalf("err=%v", err)
	}
	if _, err := DecodeRequest([]byte(`not json`)); err == nil {
		t.Fatalf("expected json error")
	}
	var p MoveReq
	if err := DecodePayload(nil, &p); err != nil {
		t.Fatalf("empty payload: %v", err)
	}
}
