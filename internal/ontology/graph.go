// Package ontology builds the typed disaster graph out of evidence text.
package ontology

import (
	"time"

	"github.com/reliefwatch/reliefwatch/internal/geo"
)

// HazardCategory follows the standard hazard grouping.
type HazardCategory string

const (
	HazardGeophysical    HazardCategory = "geophysical"
	HazardHydrological   HazardCategory = "hydrological"
	HazardMeteorological HazardCategory = "meteorological"
	HazardClimatological HazardCategory = "climatological"
	HazardBiological     HazardCategory = "biological"
	HazardConflict       HazardCategory = "conflict"
)

// ImpactType is the impact taxonomy.
type ImpactType string

const (
	ImpactCasualties     ImpactType = "casualties"
	ImpactDisplacement   ImpactType = "displacement"
	ImpactInfrastructure ImpactType = "infrastructure"
	ImpactHealth         ImpactType = "health"
	ImpactLivelihoods    ImpactType = "livelihoods"
)

// NeedType is the humanitarian need taxonomy.
type NeedType string

const (
	NeedShelter      NeedType = "shelter"
	NeedWASH         NeedType = "WASH"
	NeedHealth       NeedType = "health"
	NeedFoodSecurity NeedType = "food_security"
	NeedProtection   NeedType = "protection"
	NeedEducation    NeedType = "education"
	NeedLogistics    NeedType = "logistics"
)

// RiskHorizon buckets forward-looking statements.
type RiskHorizon string

const (
	HorizonImmediate RiskHorizon = "0-7d"
	HorizonShort     RiskHorizon = "7-30d"
	HorizonMedium    RiskHorizon = "30-90d"
)

// ActorType categorizes response actors.
type ActorType string

const (
	ActorGovernment ActorType = "government"
	ActorUN         ActorType = "un_agency"
	ActorNGO        ActorType = "ngo"
	ActorRedCross   ActorType = "red_cross_red_crescent"
	ActorMilitary   ActorType = "military"
	ActorCommunity  ActorType = "community"
)

// TemporalAnnotation is carried by every graph node.
type TemporalAnnotation struct {
	PublishedAt    *time.Time    `json:"published_at,omitempty"`
	EventDate      *time.Time    `json:"event_date,omitempty"`
	DataCutoff     time.Time     `json:"data_cutoff"`
	ValidityWindow time.Duration `json:"validity_window"`
}

// HazardNode names the hazard driving an event.
type HazardNode struct {
	Name     string             `json:"name"`
	Category HazardCategory     `json:"category"`
	Temporal TemporalAnnotation `json:"temporal"`
}

// ImpactObservation is one impact reading from one source.
// AdminArea is the arena key of the area node, empty for country level only.
type ImpactObservation struct {
	ImpactType ImpactType         `json:"impact_type"`
	Figures    map[string]int     `json:"figures,omitempty"`
	Severity   int                `json:"severity"`
	AdminArea  string             `json:"admin_area,omitempty"`
	Scope      geo.AdminLevel     `json:"scope"`
	SourceURL  string             `json:"source_url"`
	Temporal   TemporalAnnotation `json:"temporal"`
}

// NeedStatement is an expressed or inferred humanitarian need.
type NeedStatement struct {
	NeedType    NeedType           `json:"need_type"`
	Description string             `json:"description"`
	Severity    int                `json:"severity"`
	AdminArea   string             `json:"admin_area,omitempty"`
	SourceURL   string             `json:"source_url"`
	Temporal    TemporalAnnotation `json:"temporal"`
}

// ResponseAction is an observed response by a named actor.
type ResponseAction struct {
	Actor       string             `json:"actor"`
	ActorType   ActorType          `json:"actor_type"`
	Description string             `json:"description"`
	SourceURL   string             `json:"source_url"`
	Temporal    TemporalAnnotation `json:"temporal"`
}

// RiskStatement is a forward-looking statement tied to a hazard.
type RiskStatement struct {
	Horizon     RiskHorizon        `json:"horizon"`
	Description string             `json:"description"`
	HazardRef   string             `json:"hazard_ref,omitempty"` // arena key of a HazardNode
	SourceURL   string             `json:"source_url"`
	Temporal    TemporalAnnotation `json:"temporal"`
}

// Graph is the ontology for one country, rebuilt per cycle.
// Admin areas live in an arena keyed by name; child nodes reference areas by
// that key, so there are no pointer cycles to manage.
type Graph struct {
	Country     string                   `json:"country"`
	CountryISO3 string                   `json:"country_iso3"`
	Hazards     map[string]HazardNode    `json:"hazards"`
	AdminAreas  map[string]geo.AdminArea `json:"admin_areas"`
	Impacts     []ImpactObservation      `json:"impacts"`
	Needs       []NeedStatement          `json:"needs"`
	Responses   []ResponseAction         `json:"responses"`
	Risks       []RiskStatement          `json:"risks"`
	BuiltAt     time.Time                `json:"built_at"`
}

// NewGraph creates an empty graph for a country.
func NewGraph(country, iso3 string) *Graph {
	return &Graph{
		Country:     country,
		CountryISO3: iso3,
		Hazards:     make(map[string]HazardNode),
		AdminAreas:  make(map[string]geo.AdminArea),
		BuiltAt:     time.Now(),
	}
}

// AddArea registers an admin area (and its parent chain key) in the arena.
func (g *Graph) AddArea(area geo.AdminArea) string {
	if _, ok := g.AdminAreas[area.Name]; !ok {
		g.AdminAreas[area.Name] = area
	}
	return area.Name
}

// AddHazard registers a hazard node, keeping the earliest sighting.
func (g *Graph) AddHazard(h HazardNode) string {
	if _, ok := g.Hazards[h.Name]; !ok {
		g.Hazards[h.Name] = h
	}
	return h.Name
}
