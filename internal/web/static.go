package web

import (
	"embed"
)

// staticFiles holds the status page, its script and stylesheet.
//
//go:embed static/*
var staticFiles embed.FS
