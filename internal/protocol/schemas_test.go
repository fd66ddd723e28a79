package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	updateSchema := compile("surface_update.schema.json")
	beginSchema := compile("begin_rendering.schema.json")
	eventSchema := compile("event.schema.json")
	ackSchema := compile("ack.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"0.3",
	  "widget_id":"fire",
	  "party_name":"remote"
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"0.3",
	  "session_id":"5f0c9a1e-9c2b-4f79-8a5e-0d2b1f6c3e44",
	  "widget_id":"fire",
	  "surface_ids":["main"],
	  "event_types":["fire.applySettings"],
	  "presets_digest":"deadbeef",
	  "live":true
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var update any
	_ = json.Unmarshal([]byte(`{
	  "type":"SURFACE_UPDATE",
	  "protocol_version":"0.3",
	  "msg_id":"M1",
	  "surface_id":"main",
	  "components":[{"id":"root","kind":"Column","children":["c1"]},{"id":"c1","kind":"Text","props":{"text":"hi"}}]
	}`), &update)
	validate(updateSchema, update)

	var begin any
	_ = json.Unmarshal([]byte(`{
	  "type":"BEGIN_RENDERING",
	  "protocol_version":"0.3",
	  "msg_id":"M2",
	  "surface_id":"main",
	  "root":"root"
	}`), &begin)
	validate(beginSchema, begin)

	var event any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"0.3",
	  "session_id":"5f0c9a1e-9c2b-4f79-8a5e-0d2b1f6c3e44",
	  "event":{"type":"fire.applySettings"},
	  "payload":{"intensity":0.8}
	}`), &event)
	validate(eventSchema, event)

	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"0.3",
	  "ack_for":"M1",
	  "accepted":false,
	  "code":"surface_not_allowed"
	}`), &ack)
	validate(ackSchema, ack)
}

func TestSchemas_RejectBadAckCode(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "ack.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"0.3",
	  "ack_for":"M1",
	  "accepted":false,
	  "code":"E_NOT_DEFINED"
	}`), &ack)
	if err := s.Validate(ack); err == nil {
		t.Fatalf("expected unknown ack code rejected")
	}
}
