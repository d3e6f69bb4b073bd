package core

import "pkt.systems/tmplay/schema"

// EventSink receives session events from the core service.
type EventSink interface {
	OnPlayback(event schema.PlaybackEvent)
	OnCompile(event schema.CompileEvent)
	OnNotice(event schema.NoticeEvent)
	OnSource(event schema.SourceEvent)
	OnClose(event schema.SessionClosedEvent)
}
