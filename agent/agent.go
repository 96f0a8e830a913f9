// Package agent runs the HTTP control surface over the share library. It is
// a thin front end: all persistence goes through the NFS protocol and its
// exports file.
package agent

import (
	"context"
	"crypto/tls"
	"net/http"

	v1 "github.com/zfskit/exportd/agent/api/v1"
	"github.com/zfskit/exportd/model"
	"github.com/zfskit/exportd/share"
	"github.com/zfskit/exportd/share/nfs"

	"github.com/labstack/echo/v5"
	"github.com/rs/zerolog/log"
)

type Agent struct {
	cfg     *model.AgentConfig
	version string
	commit  string
	shares  *share.Set
	nfs     *nfs.Protocol
	echo    *echo.Echo
}

func NewAgent(cfg *model.AgentConfig, version, commit string) *Agent {
	return &Agent{
		cfg:     cfg,
		version: version,
		commit:  commit,
		shares:  share.NewSet(),
		nfs:     nfs.Register(cfg.ExportsFile, cfg.ExportfsBin),
	}
}

func (a *Agent) Start(ctx context.Context) {
	e := echo.New()

	e.Use(v1.MetricsMiddleware())

	features := map[string]string{
		"exports_file": a.cfg.ExportsFile,
	}
	if a.cfg.ReconcileInterval > 0 {
		features["reconcile"] = a.cfg.ReconcileInterval.String()
	}

	// unauthenticated endpoints
	e.GET("/healthz", v1.Healthz(a.version, a.commit, features))
	e.GET("/metrics", v1.MetricsHandler())

	h := &v1.Handler{Shares: a.shares, NFS: a.nfs}

	api := e.Group("/v1", v1.AuthMiddleware(a.cfg.Token))

	api.GET("/shares", h.ListShares)
	api.POST("/shares", h.EnableShare)
	api.DELETE("/shares", h.DisableShare)
	api.GET("/shares/status", h.ShareStatus)
	api.POST("/reload", h.Reload)

	a.echo = e

	if a.cfg.ReconcileInterval > 0 {
		a.StartReconciler(ctx, a.cfg.ReconcileInterval)
	}

	go func() {
		var err error
		if a.cfg.TLSCert != "" && a.cfg.TLSKey != "" {
			s := &http.Server{
				Addr:    a.cfg.ListenAddr,
				Handler: e,
				TLSConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			}
			log.Info().Str("addr", a.cfg.ListenAddr).Msg("starting agent with TLS")
			err = s.ListenAndServeTLS(a.cfg.TLSCert, a.cfg.TLSKey)
		} else {
			log.Warn().Str("addr", a.cfg.ListenAddr).Msg("starting agent without TLS - set EXPORTD_TLS_CERT and EXPORTD_TLS_KEY for production")
			err = e.Start(a.cfg.ListenAddr)
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("agent server failed")
		}
	}()
}
