package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/burrow/internal/httpapi"
)

var (
	serveAddr  string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reset/validate HTTP API for out-of-process test clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		defer func() { _ = mgr.Close() }()

		token := serveToken
		if token == "" {
			token = fileCfg.Token
		}
		addr := serveAddr
		if addr == "" {
			addr = fileCfg.ListenAddr
		}

		log := logrus.NewEntry(logrus.StandardLogger())
		server, err := httpapi.New(mgr, token, log)
		if err != nil {
			return err
		}
		return server.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config: 127.0.0.1:7077)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "shared secret required on every request")
}
