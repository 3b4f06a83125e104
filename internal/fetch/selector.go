package fetch

import (
	"os"
	"strings"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/model"
)

// DetectMode returns ModeGateway when any of markers is set to a non-empty
// value in the environment described by getenv, and ModeLocalProxy otherwise.
// A nil markers slice uses config.DefaultCloudMarkers.
func DetectMode(getenv func(string) string, markers []string) model.TransportMode {
	if getenv == nil {
		getenv = os.Getenv
	}
	if markers == nil {
		markers = config.DefaultCloudMarkers()
	}
	for _, name := range markers {
		if strings.TrimSpace(getenv(name)) != "" {
			return model.ModeGateway
		}
	}
	return model.ModeLocalProxy
}
