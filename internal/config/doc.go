// Package config assembles the directory layout and fetch settings for a
// reqd run from explicit overrides, REQD_* environment variables, an
// optional YAML settings file under etc/, and built-in defaults, in that
// order of precedence.
//
// The resulting Config is built once at startup and passed explicitly into
// every component; Environ renders the same values back out as the
// environment contract for recipe subprocesses.
package config
