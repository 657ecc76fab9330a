package main

import (
	"github.com/dlopenlib/dlopen/internal/config"
	"github.com/dlopenlib/dlopen/internal/dylib"
)

type bridgeResolver interface {
	Resolve(name string) (dylib.Source, error)
}

func configSearchPath(cfg *config.Config, bridge bridgeResolver) *config.SearchPath {
	if bridge == nil {
		return config.NewSearchPath(cfg, nopBridge{})
	}
	return config.NewSearchPath(cfg, bridge)
}

type nopBridge struct{}

func (nopBridge) Resolve(name string) (dylib.Source, error) {
	return nil, errNoBridge
}

var errNoBridge = &bridgeError{"platform bridge unavailable"}

type bridgeError struct{ msg string }

func (e *bridgeError) Error() string { return e.msg }
