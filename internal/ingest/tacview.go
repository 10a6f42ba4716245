package ingest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// tvDocument mirrors the parts of a Tacview debriefing export we use.
type tvDocument struct {
	XMLName xml.Name  `xml:"TacviewDebriefing"`
	Mission tvMission `xml:"Mission"`
	Events  []tvEvent `xml:"Events>Event"`
}

type tvMission struct {
	Title       string `xml:"Title"`
	MissionTime string `xml:"MissionTime"`
	StartTime   string `xml:"StartTime"`
}

type tvEvent struct {
	Time      string     `xml:"Time"`
	Action    string     `xml:"Action"`
	Primary   *tvObject  `xml:"PrimaryObject"`
	Secondary *tvObject  `xml:"SecondaryObject"`
	Parent    *tvObject  `xml:"ParentObject"`
	Airport   *tvAirport `xml:"Airport"`
}

type tvObject struct {
	ID        string `xml:"ID,attr"`
	Name      string `xml:"Name"`
	Type      string `xml:"Type"`
	Coalition string `xml:"Coalition"`
	Country   string `xml:"Country"`
	Pilot     string `xml:"Pilot"`
	Group     string `xml:"Group"`
}

type tvAirport struct {
	Name string `xml:"Name"`
}

// tacviewActions maps Tacview action verbs to event types.
var tacviewActions = map[string]mission.EventType{
	"HasEnteredTheArea": mission.EventSpawn,
	"HasTakenOff":       mission.EventTakeoff,
	"HasTakeOff":        mission.EventTakeoff,
	"HasLanded":         mission.EventLanding,
	"HasFired":          mission.EventFired,
	"HasBeenHitBy":      mission.EventHit,
	"HasBeenDestroyed":  mission.EventKill,
	"HasLeftTheArea":    mission.EventDespawn,
}

// parseTacview decodes a Tacview XML debriefing.
func parseTacview(r io.Reader) (parsedRecording, error) {
	var doc tvDocument
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		var syn *xml.SyntaxError
		if errors.As(err, &syn) {
			return parsedRecording{}, &ParseError{Line: syn.Line, Err: errors.New(syn.Msg)}
		}
		if errors.Is(err, io.EOF) {
			return parsedRecording{}, &ParseError{Err: errors.New("empty document")}
		}
		return parsedRecording{}, &ParseError{Err: err}
	}

	rec := parsedRecording{
		MissionName: strings.TrimSpace(doc.Mission.Title),
		RecordedAt:  strings.TrimSpace(doc.Mission.MissionTime),
		HasStart:    true, // event times count from recording start
	}
	if s := strings.TrimSpace(doc.Mission.StartTime); s != "" {
		start, err := parseSeconds(s)
		if err != nil {
			return parsedRecording{}, &ParseError{Err: fmt.Errorf("mission start time %q: %w", s, err)}
		}
		rec.StartTime = start
	}

	for i, ev := range doc.Events {
		raw, err := tacviewEvent(ev)
		if err != nil {
			return parsedRecording{}, &ParseError{Err: fmt.Errorf("event %d: %w", i+1, err)}
		}
		rec.Events = append(rec.Events, raw)
	}
	return rec, nil
}

// parseSeconds parses a time value. strconv accepts NaN and Inf, which would
// break the time ordering of a recording.
func parseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}

func tacviewEvent(ev tvEvent) (mission.RawEvent, error) {
	ts, err := parseSeconds(strings.TrimSpace(ev.Time))
	if err != nil {
		return mission.RawEvent{}, fmt.Errorf("time %q: %w", ev.Time, err)
	}
	if ev.Primary == nil {
		return mission.RawEvent{}, errors.New("missing primary object")
	}

	action := strings.TrimSpace(ev.Action)
	typ, ok := tacviewActions[action]
	if !ok {
		typ = mission.EventOther
	}

	attrs := map[string]string{"action": action}
	putObject(attrs, ev.Primary)

	raw := mission.RawEvent{
		LocalTimestamp: ts,
		Type:           typ,
	}

	switch typ {
	case mission.EventHit, mission.EventKill:
		// The primary object is the one hit or destroyed; the shooter is the
		// parent of the weapon when Tacview knows it.
		raw.TargetID = objectLabel(ev.Primary)
		switch {
		case ev.Parent != nil:
			raw.ActorID = objectLabel(ev.Parent)
		case ev.Secondary != nil:
			raw.ActorID = objectLabel(ev.Secondary)
		}
		if ev.Secondary != nil && ev.Parent != nil {
			attrs["weapon"] = strings.TrimSpace(ev.Secondary.Name)
		}
	case mission.EventFired:
		raw.ActorID = objectLabel(ev.Primary)
		if ev.Secondary != nil {
			attrs["weapon"] = strings.TrimSpace(ev.Secondary.Name)
		}
	default:
		raw.ActorID = objectLabel(ev.Primary)
		if ev.Secondary != nil {
			raw.TargetID = objectLabel(ev.Secondary)
		}
	}
	if ev.Airport != nil && strings.TrimSpace(ev.Airport.Name) != "" {
		attrs["airport"] = strings.TrimSpace(ev.Airport.Name)
	}

	raw.Attributes = compactAttrs(attrs)
	return raw, nil
}

// objectLabel identifies an object across recordings. Tacview object ids are
// assigned per recording, so the pilot or unit name is used instead.
func objectLabel(o *tvObject) string {
	if o == nil {
		return ""
	}
	if p := strings.TrimSpace(o.Pilot); p != "" {
		return p
	}
	name := strings.TrimSpace(o.Name)
	if g := strings.TrimSpace(o.Group); g != "" && name != "" {
		return g + "/" + name
	}
	return name
}

func putObject(attrs map[string]string, o *tvObject) {
	attrs["objectId"] = strings.TrimSpace(o.ID)
	attrs["name"] = strings.TrimSpace(o.Name)
	attrs["objectType"] = strings.TrimSpace(o.Type)
	attrs["coalition"] = strings.TrimSpace(o.Coalition)
	attrs["country"] = strings.TrimSpace(o.Country)
	attrs["group"] = strings.TrimSpace(o.Group)
}

func compactAttrs(attrs map[string]string) map[string]string {
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
