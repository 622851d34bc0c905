package client

import (
	"fmt"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/kjstillabower/commute-dashboard/internal/models"
)

// DecodeProtobufFeed parses a binary GTFS-realtime FeedMessage into the dashboard model.
func DecodeProtobufFeed(body []byte) (*models.FeedMessage, error) {
	var fm gtfs.FeedMessage
	if err := proto.Unmarshal(body, &fm); err != nil {
		return nil, fmt.Errorf("%w: feed: %v", ErrMalformedPayload, err)
	}
	return convertFeed(&fm), nil
}

func convertFeed(fm *gtfs.FeedMessage) *models.FeedMessage {
	out := &models.FeedMessage{Entity: make([]models.FeedEntity, 0, len(fm.GetEntity()))}
	if h := fm.GetHeader(); h != nil {
		out.Header.GTFSRealtimeVersion = h.GetGtfsRealtimeVersion()
		if h.Incrementality != nil {
			out.Header.Incrementality = h.GetIncrementality().String()
		}
		if h.Timestamp != nil {
			ts := int64(h.GetTimestamp())
			out.Header.Timestamp = &ts
		}
	}
	for _, e := range fm.GetEntity() {
		entity := models.FeedEntity{ID: e.GetId(), IsDeleted: e.GetIsDeleted()}
		if e.Alert != nil {
			entity.Alert = convertAlert(e.Alert)
		}
		out.Entity = append(out.Entity, entity)
	}
	return out
}

func convertAlert(a *gtfs.Alert) *models.Alert {
	out := &models.Alert{
		HeaderText:         localized(a.GetHeaderText()),
		DescriptionText:    localized(a.GetDescriptionText()),
		URL:                localized(a.GetUrl()),
		EffectDetail:       translatedField(a, "effect_detail"),
		CauseDetail:        translatedField(a, "cause_detail"),
		TTSHeaderText:      translatedField(a, "tts_header_text"),
		TTSDescriptionText: translatedField(a, "tts_description_text"),
	}
	if a.Cause != nil {
		out.Cause = models.Cause(a.GetCause().String())
	}
	if a.Effect != nil {
		out.Effect = models.Effect(a.GetEffect().String())
	}
	if a.SeverityLevel != nil {
		out.SeverityLevel = models.Severity(a.GetSeverityLevel().String())
	}

	for _, tr := range a.GetActivePeriod() {
		var p models.ActivePeriod
		if tr.Start != nil {
			v := int64(tr.GetStart())
			p.Start = &v
		}
		if tr.End != nil {
			v := int64(tr.GetEnd())
			p.End = &v
		}
		out.ActivePeriod = append(out.ActivePeriod, p)
	}

	for _, sel := range a.GetInformedEntity() {
		ie := models.InformedEntity{
			AgencyID:    sel.GetAgencyId(),
			RouteID:     sel.GetRouteId(),
			StopID:      sel.GetStopId(),
			DirectionID: optionalInt(sel, "direction_id"),
		}
		if sel.RouteType != nil {
			v := int(sel.GetRouteType())
			ie.RouteType = &v
		}
		if td := sel.GetTrip(); td != nil {
			trip := &models.TripDescriptor{TripID: td.GetTripId(), RouteID: td.GetRouteId()}
			if td.DirectionId != nil {
				v := int(td.GetDirectionId())
				trip.DirectionID = &v
			}
			ie.Trip = trip
		}
		out.InformedEntity = append(out.InformedEntity, ie)
	}
	return out
}

func localized(ts *gtfs.TranslatedString) *models.LocalizedText {
	if ts == nil {
		return nil
	}
	lt := &models.LocalizedText{Translation: make([]models.Translation, 0, len(ts.GetTranslation()))}
	for _, tr := range ts.GetTranslation() {
		lt.Translation = append(lt.Translation, models.Translation{Text: tr.GetText(), Language: tr.GetLanguage()})
	}
	return lt
}

// translatedField reads an optional TranslatedString field by proto name. Fields added in
// later GTFS-realtime revisions are looked up reflectively so older bindings still decode.
func translatedField(m proto.Message, name protoreflect.Name) *models.LocalizedText {
	msg := m.ProtoReflect()
	fd := msg.Descriptor().Fields().ByName(name)
	if fd == nil || fd.Kind() != protoreflect.MessageKind || !msg.Has(fd) {
		return nil
	}
	ts, ok := msg.Get(fd).Message().Interface().(*gtfs.TranslatedString)
	if !ok {
		return nil
	}
	return localized(ts)
}

func optionalInt(m proto.Message, name protoreflect.Name) *int {
	msg := m.ProtoReflect()
	fd := msg.Descriptor().Fields().ByName(name)
	if fd == nil || !msg.Has(fd) {
		return nil
	}
	var v int
	switch fd.Kind() {
	case protoreflect.Uint32Kind, protoreflect.Uint64Kind, protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
		v = int(msg.Get(fd).Uint())
	case protoreflect.Int32Kind, protoreflect.Int64Kind, protoreflect.Sint32Kind, protoreflect.Sint64Kind, protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
		v = int(msg.Get(fd).Int())
	default:
		return nil
	}
	return &v
}
