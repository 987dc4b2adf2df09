package broker

import (
	"strings"

	"github.com/jouyai/dashboard-kel/internal/store"
)

// ExtractTopic pulls the topic out of a widget greeting message of the form
// "Halo, saya ingin bertanya mengenai <topic>.". Returns "" when the body
// does not match. Best-effort metadata: the widget's wording can drift, in
// which case sessions simply carry no topic.
func ExtractTopic(body string) string {
	if len(body) < len(store.GreetingPrefix) {
		return ""
	}
	if !strings.EqualFold(body[:len(store.GreetingPrefix)], store.GreetingPrefix) {
		return ""
	}

	topic := body[len(store.GreetingPrefix):]
	topic = strings.ReplaceAll(topic, ".", "")
	return strings.TrimSpace(topic)
}
