package metrics

import (
	"errors"

	"github.com/grafana/pyroscope-go"
)

type PProfConfig struct {
	Enabled       bool
	AppInstanceID string
	AppName       string
	ServerAddr    string
	AuthToken     string
	Tags          map[string]string
}

// InitPProf starts continuous profiling; disabled config returns a nil profiler
func InitPProf(cfg *PProfConfig) (*pyroscope.Profiler, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.ServerAddr == "" {
		return nil, errors.New("pyroscope server addr is required")
	}

	appName := cfg.AppName
	if appName == "" {
		appName = "anchor.batcher"
	}

	pTags := map[string]string{
		"env":      "dev",
		"instance": cfg.AppInstanceID,
	}
	for k, v := range cfg.Tags {
		pTags[k] = v
	}

	return pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   cfg.ServerAddr,
		AuthToken:       cfg.AuthToken,
		Logger:          pyroscope.StandardLogger,
		Tags:            pTags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,

			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,

			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
		},
	})
}
