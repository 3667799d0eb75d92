// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

type sampleRequest struct {
	Action string `cbor:"action"`
	Prefix string `cbor:"prefix,omitempty"`
	Suffix string `cbor:"suffix,omitempty"`
}

type sampleEntry struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"suffix": ".d", "action": "create-lease", "prefix": "build-"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(map[string]any{"prefix": "build-", "suffix": ".d", "action": "create-lease"})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding differs between runs:\n%x\n%x", first, again)
		}
	}
}

func TestMapAndStructInterop(t *testing.T) {
	// Clients build requests as maps; the daemon decodes into structs.
	data, err := Marshal(map[string]any{"action": "create-lease", "prefix": "build-"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var request sampleRequest
	if err := Unmarshal(data, &request); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if request.Action != "create-lease" || request.Prefix != "build-" || request.Suffix != "" {
		t.Errorf("decoded %+v", request)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "list-leases", "future_field": 12})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var request sampleRequest
	if err := Unmarshal(data, &request); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if request.Action != "list-leases" {
		t.Errorf("Action = %q, want list-leases", request.Action)
	}
}

func TestAnyDecodesToStringKeyedMap(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"id": "tmp123"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["nested"])
	}
}

func TestTimePreservesSubsecondPrecision(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	data, err := Marshal(sampleEntry{ID: "tmp1", Created: created})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Created.Equal(created) {
		t.Errorf("Created = %v, want %v", decoded.Created, created)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, action := range []string{"create-lease", "list-leases"} {
		if err := encoder.Encode(sampleRequest{Action: action}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"create-lease", "list-leases"} {
		var request sampleRequest
		if err := decoder.Decode(&request); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if request.Action != want {
			t.Errorf("Action = %q, want %q", request.Action, want)
		}
	}
}
