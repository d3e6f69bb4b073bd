package tmplay

import (
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/schema"
)

// eventFanout delivers every core event to each sink in order.
type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnPlayback(event schema.PlaybackEvent) {
	for _, sink := range f.sinks {
		sink.OnPlayback(event)
	}
}

func (f eventFanout) OnCompile(event schema.CompileEvent) {
	for _, sink := range f.sinks {
		sink.OnCompile(event)
	}
}

func (f eventFanout) OnNotice(event schema.NoticeEvent) {
	for _, sink := range f.sinks {
		sink.OnNotice(event)
	}
}

func (f eventFanout) OnSource(event schema.SourceEvent) {
	for _, sink := range f.sinks {
		sink.OnSource(event)
	}
}

func (f eventFanout) OnClose(event schema.SessionClosedEvent) {
	for _, sink := range f.sinks {
		sink.OnClose(event)
	}
}
