package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/dsonbill/BDDMP/logging"
)

type ConsoleSink struct {
	logger *log.Logger
}

func NewConsole(w io.Writer) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags)}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", event.Type, event.Severity)
	if event.Peer != "" {
		fmt.Fprintf(&b, " peer=%s", event.Peer)
	}
	if event.Tick > 0 {
		fmt.Fprintf(&b, " tick=%d", event.Tick)
	}
	if event.SimTime != 0 {
		fmt.Fprintf(&b, " ut=%.3f", event.SimTime)
	}
	if actor := formatEntity(event.Actor); actor != "" {
		fmt.Fprintf(&b, " actor=%s", actor)
	}
	b.WriteString(formatTargets(event.Targets))
	b.WriteString(formatPayload(event.Payload))
	s.logger.Print(b.String())
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return fmt.Sprintf(" targets=%s", strings.Join(parts, ","))
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
