package web

import (
	"github.com/tidwall/gjson"

	"slack-claude-runner/internal/model"
)

// parseEvent maps the "event" object of a Slack event_callback into an
// InboundEvent. A message with no thread_ts roots its own thread.
func parseEvent(event gjson.Result) model.InboundEvent {
	ts := event.Get("ts").String()
	thread := event.Get("thread_ts").String()
	if thread == "" {
		thread = ts
	}
	ev := model.InboundEvent{
		UserID:    event.Get("user").String(),
		Channel:   event.Get("channel").String(),
		Text:      event.Get("text").String(),
		Timestamp: ts,
		ThreadTS:  thread,
	}
	event.Get("files").ForEach(func(_, f gjson.Result) bool {
		name := f.Get("name").String()
		if name == "" {
			name = "attachment_" + f.Get("id").String()
		}
		ev.Files = append(ev.Files, model.FileRef{
			Name:        name,
			DownloadURL: f.Get("url_private_download").String(),
		})
		return true
	})
	return ev
}
