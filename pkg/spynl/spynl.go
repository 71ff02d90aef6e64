// Package spynl provides the public API for embedding Spynl and for
// writing plugins. This is the stable API for external consumers.
package spynl

import (
	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
	"github.com/SoftwearDevelopment/spynl/internal/export"
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
	"github.com/SoftwearDevelopment/spynl/internal/registration"
	"github.com/SoftwearDevelopment/spynl/internal/request"
	"github.com/SoftwearDevelopment/spynl/internal/runtime"
	"github.com/SoftwearDevelopment/spynl/internal/validation"
)

// App is a configured Spynl application.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New creates a new App with the given options.
// Example:
//
//	catalog := spynl.NewCatalog()
//	_ = spynl.RegisterBuiltins(catalog)
//	_ = catalog.Register(myplugin.Descriptor())
//	app, err := spynl.New(
//	    spynl.WithConfigFile("config.yaml"),
//	    spynl.WithCatalog(catalog),
//	)
var New = runtime.New

// Configuration options
var (
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile
	WithLogger     = runtime.WithLogger
	WithLevel      = runtime.WithLevel
	WithCatalog    = runtime.WithCatalog
	WithReporter   = runtime.WithReporter
	WithMetrics    = runtime.WithMetrics
	WithBodyParser = runtime.WithBodyParser
)

// Plugin API
type (
	Host        = plugin.Host
	Descriptor  = plugin.Descriptor
	Catalog     = plugin.Catalog
	Endpoint    = endpoint.Endpoint
	Context     = request.Context
	Args        = request.Args
	Instruction = validation.Instruction
	File        = export.File
	Error       = domain.Error
)

// Validation directions
const (
	Request  = validation.Request
	Response = validation.Response
)

var (
	NewCatalog       = plugin.NewCatalog
	RegisterBuiltins = registration.RegisterBuiltins
)
