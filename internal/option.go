package internal

import (
	"github.com/snrmed/family-display-backend3/internal/assets"
	"github.com/snrmed/family-display-backend3/internal/render"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config      *Config
	engine      render.Engine
	imageSource assets.ImageSource
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithEngine overrides the render engine collaborator. Defaults to the HTTP
// engine at the configured engine URL.
func WithEngine(e render.Engine) Option {
	return func(a *application) {
		a.engine = e
	}
}

// WithImageSource overrides the prefetch image source. Defaults to Pexels
// with the configured credentials.
func WithImageSource(s assets.ImageSource) Option {
	return func(a *application) {
		a.imageSource = s
	}
}
