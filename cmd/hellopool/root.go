// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/z5labs/hellopool"
	"github.com/z5labs/hellopool/app"
	"github.com/z5labs/hellopool/appbuilder"
	"github.com/z5labs/hellopool/config"
	"github.com/z5labs/hellopool/server"

	"github.com/spf13/cobra"
)

//go:embed config.yaml
var defaultConfig []byte

func newRootCmd() *cobra.Command {
	var cfgPath string
	var port uint

	cmd := &cobra.Command{
		Use:           "hellopool",
		Short:         "Serve greetings from a fixed pool of workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs := []config.Source{
				defaultConfigSource(),
			}
			if cfgPath != "" {
				srcs = append(srcs, fileConfigSource(cfgPath))
			}
			if cmd.Flags().Changed("port") {
				srcs = append(srcs, config.Map{
					"server": map[string]any{
						"port": port,
					},
				})
			}

			return hellopool.Run(cmd.Context(), newBuilder(), srcs...)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a yaml or json config file")
	cmd.Flags().UintVar(&port, "port", 3000, "port to accept connections on")

	cmd.AddCommand(newProbeCmd())
	return cmd
}

func newBuilder() hellopool.AppBuilder[server.Config] {
	build := hellopool.AppBuilderFunc[server.Config](func(ctx context.Context, cfg server.Config) (hellopool.App, error) {
		a, err := server.Build(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a = app.WithSignalNotifications(a, os.Interrupt, syscall.SIGTERM)
		return app.Recover(a), nil
	})

	return appbuilder.Recover(appbuilder.OTel(build))
}

func defaultConfigSource() config.Source {
	return config.FromYaml(renderConfig(bytes.NewReader(defaultConfig)))
}

func fileConfigSource(path string) config.Source {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	r := renderConfig(config.NewFileReader(os.DirFS(dir), name))
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return config.FromJson(r)
	}
	return config.FromYaml(r)
}

func renderConfig(r io.Reader) *config.TextTemplateRenderer {
	return config.RenderTextTemplate(
		r,
		config.TemplateFunc("env", os.Getenv),
		config.TemplateFunc("default", func(def any, v string) any {
			if len(v) == 0 {
				return def
			}
			return v
		}),
	)
}
