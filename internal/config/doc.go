// Package config resolves launch configuration for the distrun CLI.
//
// A launch is described by the same environment variables the original
// shell scripts used (DISTPAN, TPDEGREE, GPUNUM, PLACEMENT, USE_SHARD_INIT,
// plus the usual torchrun rendezvous variables), optionally layered on top
// of a named preset from a distrun.jsonc project file.
//
// Resolution precedence, weakest to strongest:
//
//	built-in default → preset file entry → environment variable → CLI flag
//
// The CLI-flag layer is applied by the cli package, which knows which
// flags were explicitly set; this package produces the spec for the three
// lower layers and reports malformed values as ExitConfigInvalid errors.
//
// JSONC (JSON with Comments) is supported for the preset file via
// github.com/tidwall/jsonc, so project files can be annotated the same way
// devcontainer.json files commonly are.
package config
