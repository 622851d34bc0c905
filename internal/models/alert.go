package models

// Severity is the urgency level of an alert. Lower rank means more urgent.
type Severity string

const (
	SeveritySevere  Severity = "SEVERE"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
	SeverityUnknown Severity = "UNKNOWN_SEVERITY"
)

// Rank returns 1 for SEVERE through 4 for UNKNOWN. Absent or unrecognized values rank as unknown.
func (s Severity) Rank() int {
	switch s {
	case SeveritySevere:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// Downgrade returns the next less urgent level, flooring at UNKNOWN_SEVERITY.
func (s Severity) Downgrade() Severity {
	switch s {
	case SeveritySevere:
		return SeverityWarning
	case SeverityWarning:
		return SeverityInfo
	default:
		return SeverityUnknown
	}
}

// Effect is an open enum: values outside the known set pass through unchanged.
type Effect string

const (
	EffectNoService          Effect = "NO_SERVICE"
	EffectReducedService     Effect = "REDUCED_SERVICE"
	EffectSignificantDelays  Effect = "SIGNIFICANT_DELAYS"
	EffectDetour             Effect = "DETOUR"
	EffectAdditionalService  Effect = "ADDITIONAL_SERVICE"
	EffectModifiedService    Effect = "MODIFIED_SERVICE"
	EffectOther              Effect = "OTHER_EFFECT"
	EffectStopMoved          Effect = "STOP_MOVED"
	EffectAccessibilityIssue Effect = "ACCESSIBILITY_ISSUE"
	EffectUnknown            Effect = "UNKNOWN_EFFECT"
)

var knownEffects = map[Effect]struct{}{
	EffectNoService: {}, EffectReducedService: {}, EffectSignificantDelays: {},
	EffectDetour: {}, EffectAdditionalService: {}, EffectModifiedService: {},
	EffectOther: {}, EffectStopMoved: {}, EffectAccessibilityIssue: {}, EffectUnknown: {},
}

// Known reports whether e is one of the enumerated effects.
func (e Effect) Known() bool {
	_, ok := knownEffects[e]
	return ok
}

// Cause is an open enum like Effect.
type Cause string

const (
	CauseUnknown          Cause = "UNKNOWN_CAUSE"
	CauseOther            Cause = "OTHER_CAUSE"
	CauseTechnicalProblem Cause = "TECHNICAL_PROBLEM"
	CauseStrike           Cause = "STRIKE"
	CauseDemonstration    Cause = "DEMONSTRATION"
	CauseAccident         Cause = "ACCIDENT"
	CauseHoliday          Cause = "HOLIDAY"
	CauseWeather          Cause = "WEATHER"
	CauseMaintenance      Cause = "MAINTENANCE"
	CauseConstruction     Cause = "CONSTRUCTION"
	CausePoliceActivity   Cause = "POLICE_ACTIVITY"
	CauseMedicalEmergency Cause = "MEDICAL_EMERGENCY"
)

var knownCauses = map[Cause]struct{}{
	CauseUnknown: {}, CauseOther: {}, CauseTechnicalProblem: {}, CauseStrike: {},
	CauseDemonstration: {}, CauseAccident: {}, CauseHoliday: {}, CauseWeather: {},
	CauseMaintenance: {}, CauseConstruction: {}, CausePoliceActivity: {}, CauseMedicalEmergency: {},
}

// Known reports whether c is one of the enumerated causes.
func (c Cause) Known() bool {
	_, ok := knownCauses[c]
	return ok
}

type Translation struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// LocalizedText is an ordered list of translations. Only the first one is displayed.
type LocalizedText struct {
	Translation []Translation `json:"translation"`
}

// FirstText returns the first translation's text. Safe on a nil receiver.
func (lt *LocalizedText) FirstText() (string, bool) {
	if lt == nil || len(lt.Translation) == 0 {
		return "", false
	}
	return lt.Translation[0].Text, true
}

// HasText reports whether any translation's text equals s.
func (lt *LocalizedText) HasText(s string) bool {
	if lt == nil {
		return false
	}
	for _, tr := range lt.Translation {
		if tr.Text == s {
			return true
		}
	}
	return false
}

// ActivePeriod is a validity window in epoch seconds. A nil bound is unbounded.
type ActivePeriod struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

type TripDescriptor struct {
	TripID      string `json:"trip_id,omitempty"`
	RouteID     string `json:"route_id,omitempty"`
	DirectionID *int   `json:"direction_id,omitempty"`
}

// InformedEntity selects the agency, route, stop or trip an alert affects.
type InformedEntity struct {
	AgencyID    string          `json:"agency_id,omitempty"`
	RouteID     string          `json:"route_id,omitempty"`
	RouteType   *int            `json:"route_type,omitempty"`
	StopID      string          `json:"stop_id,omitempty"`
	DirectionID *int            `json:"direction_id,omitempty"`
	Trip        *TripDescriptor `json:"trip,omitempty"`
}

type LocalizedImage struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type,omitempty"`
}

type AlertImage struct {
	LocalizedImage []LocalizedImage `json:"localized_image"`
}

// Alert is one service disruption notice. Pipeline stages never mutate an Alert;
// they return modified copies.
type Alert struct {
	EntityID string `json:"entity_id,omitempty"`

	Effect Effect `json:"effect"`
	Cause  Cause  `json:"cause"`

	EffectDetail *LocalizedText `json:"effect_detail,omitempty"`
	CauseDetail  *LocalizedText `json:"cause_detail,omitempty"`

	HeaderText         *LocalizedText `json:"header_text,omitempty"`
	DescriptionText    *LocalizedText `json:"description_text,omitempty"`
	TTSHeaderText      *LocalizedText `json:"tts_header_text,omitempty"`
	TTSDescriptionText *LocalizedText `json:"tts_description_text,omitempty"`

	SeverityLevel Severity       `json:"severity_level,omitempty"`
	URL           *LocalizedText `json:"url,omitempty"`

	ActivePeriod   []ActivePeriod   `json:"active_period"`
	InformedEntity []InformedEntity `json:"informed_entity"`

	Image *AlertImage `json:"image,omitempty"`

	// Adjusted is set once severity adjustment has run on this alert.
	Adjusted         bool     `json:"adjusted,omitempty"`
	OriginalSeverity Severity `json:"original_severity,omitempty"`
}

// Severity returns the severity level, treating an absent level as unknown.
func (a Alert) Severity() Severity {
	if a.SeverityLevel == "" {
		return SeverityUnknown
	}
	return a.SeverityLevel
}

type FeedHeader struct {
	GTFSRealtimeVersion string `json:"gtfs_realtime_version"`
	Incrementality      string `json:"incrementality,omitempty"`
	Timestamp           *int64 `json:"timestamp,omitempty"`
}

type FeedEntity struct {
	ID        string `json:"id"`
	IsDeleted bool   `json:"is_deleted,omitempty"`
	Alert     *Alert `json:"alert,omitempty"`
}

// FeedMessage is the top-level envelope of the service-alerts feed.
type FeedMessage struct {
	Header FeedHeader   `json:"header"`
	Entity []FeedEntity `json:"entity"`
}
