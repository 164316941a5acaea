package messaging

import (
	"encoding/json"
	"testing"
)

type capturePublisher struct {
	subject string
	data    []byte
}

func (c *capturePublisher) Publish(subject string, data []byte) error {
	c.subject = subject
	c.data = data
	return nil
}

func TestPublishJSON(t *testing.T) {
	p := &capturePublisher{}
	payload := map[string]string{"user_id": "abc"}

	if err := PublishJSON(p, SubjectUserBlocked, payload); err != nil {
		t.Fatalf("PublishJSON() error: %v", err)
	}
	if p.subject != SubjectUserBlocked {
		t.Errorf("subject = %q, want %q", p.subject, SubjectUserBlocked)
	}
	var got map[string]string
	if err := json.Unmarshal(p.data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["user_id"] != "abc" {
		t.Errorf("user_id = %q, want %q", got["user_id"], "abc")
	}
}

func TestPublishJSON_NilPublisher(t *testing.T) {
	if err := PublishJSON(nil, SubjectLexiconChanged, struct{}{}); err != nil {
		t.Errorf("PublishJSON(nil) error = %v, want nil", err)
	}
}

func TestPublishJSON_MarshalError(t *testing.T) {
	p := &capturePublisher{}
	if err := PublishJSON(p, SubjectLexiconChanged, make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
	if p.subject != "" {
		t.Error("nothing should be published on marshal error")
	}
}
