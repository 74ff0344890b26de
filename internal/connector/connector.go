package connector

import (
	"github.com/reliefwatch/reliefwatch/internal/config"
	"github.com/reliefwatch/reliefwatch/internal/evidence"
	"github.com/reliefwatch/reliefwatch/internal/logging"
)

// FromConfig builds the connector set declared in configuration. Unknown
// source types are skipped with a warning.
func FromConfig(sources []config.SourceConfig) []evidence.Connector {
	var connectors []evidence.Connector
	for _, src := range sources {
		switch src.Type {
		case "rss":
			connectors = append(connectors, NewRSS(src.Name, src.URL, evidence.SourceTier(src.Tier), src.Country))
		case "reliefweb":
			connectors = append(connectors, NewReliefWeb(src.Name, src.URL))
		default:
			logging.Warn("unknown source type, skipping", "type", src.Type, "name", src.Name)
		}
	}
	return connectors
}
