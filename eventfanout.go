package inlined

import (
	"pkt.systems/inlined/core"
	"pkt.systems/inlined/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnResult(event schema.ResultEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnResult(event)
	}
}

func (f eventFanout) OnNotice(event schema.NoticeEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnNotice(event)
	}
}

func (f eventFanout) OnState(event schema.StateEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnState(event)
	}
}

type nopSink struct{}

func (nopSink) OnResult(schema.ResultEvent) {}
func (nopSink) OnNotice(schema.NoticeEvent) {}
func (nopSink) OnState(schema.StateEvent)   {}
