// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package hellopool bootstraps a greeting HTTP server backed by a fixed
// pool of workers sharing a single listening socket.
//
// Every worker loops through the same cycle: accept a connection, read
// one request under a byte ceiling, compute the response, write it, then
// close the connection and reset. A per worker deadline forcibly closes
// connections which take too long, so a silent or slow peer can never
// hold a worker hostage.
//
// # Bootstrapping
//
// [Run] reads and merges config sources, decodes them into a config type
// and hands the result to an [AppBuilder]:
//
//	err := hellopool.Run(
//	    ctx,
//	    appbuilder.OTel(appbuilder.Recover(hellopool.AppBuilderFunc[server.Config](server.Build))),
//	    config.FromYaml(config.RenderTextTemplate(bytes.NewReader(configBytes))),
//	)
package hellopool
