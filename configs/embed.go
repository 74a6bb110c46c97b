// Package configs provides the embedded configuration template for hybridrag.
//
// The template is written by `hybridrag config init` to the user config path
// (~/.config/hybridrag/config.yaml) or, with --project, to .hybridrag.yaml in
// the working directory. Keys left commented out fall back to the defaults in
// internal/config NewConfig().
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
