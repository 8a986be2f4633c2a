package router

import (
	"fmt"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
)

const (
	PresetNameWithPlotter    = "with-plotter"
	PresetNameWithoutPlotter = "without-plotter"
)

const (
	fixSentences       = "GGA|RMC|GLL|VTG|ZDA"
	satelliteSentences = "GSV|GSA"
	routeSentences     = "RMB|RTE|WPL|BOD|BWC|XTE|APB"
)

// Preset returns the rule list registered under name.
func Preset(name string) ([]FilterRule, error) {
	switch name {
	case PresetNameWithPlotter:
		return PresetWithPlotter(), nil
	case PresetNameWithoutPlotter:
		return PresetWithoutPlotter(), nil
	}
	return nil, fmt.Errorf("unknown rule preset %q", name)
}

func rule(name, source, sentences string, dest ...string) FilterRule {
	return FilterRule{
		Name:         name,
		Source:       source,
		Talker:       nmea.AnyTalker,
		Sentences:    ParseSentenceIDs(sentences),
		Destinations: dest,
	}
}

func (r FilterRule) continuing() FilterRule {
	r.Continue = true
	return r
}

func (r FilterRule) with(t Transform) FilterRule {
	r.Transform = t
	return r
}

// PresetWithPlotter routes for a boat with chart plotter software attached.
// The plotter gets everything and owns the active route; the handheld
// supplies the fix, the auxiliary GPS only while the handheld is silent.
func PresetWithPlotter() []FilterRule {
	return []FilterRule{
		{Name: "log-all", Source: AnySource, Talker: nmea.AnyTalker, Continue: true, LogRaw: true},

		rule("ais", common.EndpointAis, "*", common.EndpointPlotter, common.EndpointShip),

		rule("handheld-fix", common.EndpointHandheld, fixSentences,
			common.EndpointShip, common.EndpointPlotter, common.EndpointAis),
		rule("handheld-satellites", common.EndpointHandheld, satelliteSentences, common.EndpointPlotter),
		// the plotter owns the route
		rule("handheld-route-drop", common.EndpointHandheld, routeSentences),
		rule("handheld-other", common.EndpointHandheld, "*", common.EndpointPlotter),

		rule("aux-fix", common.EndpointAuxiliaryGps, fixSentences,
			common.EndpointShip, common.EndpointPlotter, common.EndpointAis).
			with(ForwardIfStale(common.EndpointHandheld, common.AUX_GPS_STALE_AFTER)),
		rule("aux-satellites", common.EndpointAuxiliaryGps, satelliteSentences, common.EndpointPlotter).
			with(ForwardIfStale(common.EndpointHandheld, common.AUX_GPS_STALE_AFTER)),
		rule("aux-drop", common.EndpointAuxiliaryGps, "*"),

		rule("plotter-route", common.EndpointPlotter, routeSentences, common.EndpointShip, common.EndpointHandheld),
		rule("plotter-drop", common.EndpointPlotter, "*"),

		rule("ship-heading", common.EndpointShip, "HDG", common.EndpointPlotter).continuing(),
		rule("ship-heading-true", common.EndpointShip, "HDG", common.EndpointHandheld).
			with(Named(TransformHDGToHDT)),
		// the ship's own GNSS repeats what the handheld already sends
		rule("ship-satellites-drop", common.EndpointShip, satelliteSentences),
		rule("ship-instruments", common.EndpointShip, "*", common.EndpointPlotter).
			with(DropInvalid()),

		rule("local", common.EndpointLocal, "*", common.EndpointPlotter, common.EndpointShip),
	}
}

// PresetWithoutPlotter routes when no plotter is connected. The handheld
// is the navigator and its route goes to the ship network.
func PresetWithoutPlotter() []FilterRule {
	return []FilterRule{
		{Name: "log-all", Source: AnySource, Talker: nmea.AnyTalker, Continue: true, LogRaw: true},

		rule("ais", common.EndpointAis, "*", common.EndpointShip),

		rule("handheld-fix", common.EndpointHandheld, fixSentences, common.EndpointShip, common.EndpointAis),
		rule("handheld-satellites", common.EndpointHandheld, satelliteSentences, common.EndpointShip),
		rule("handheld-route", common.EndpointHandheld, routeSentences, common.EndpointShip),
		rule("handheld-drop", common.EndpointHandheld, "*"),

		rule("aux-fix", common.EndpointAuxiliaryGps, fixSentences,
			common.EndpointShip, common.EndpointAis, common.EndpointHandheld).
			with(ForwardIfStale(common.EndpointHandheld, common.AUX_GPS_STALE_AFTER)),
		rule("aux-drop", common.EndpointAuxiliaryGps, "*"),

		rule("ship-heading-true", common.EndpointShip, "HDG", common.EndpointHandheld).
			with(Named(TransformHDGToHDT)),
		rule("ship-drop", common.EndpointShip, "*"),

		rule("local", common.EndpointLocal, "*", common.EndpointShip),
	}
}
