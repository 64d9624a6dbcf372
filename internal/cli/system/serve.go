package system

import (
	"errors"

	"github.com/google/uuid"

	"github.com/julianstephens/studyplanner/internal/auth"
	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/config"
	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/syncserver"
)

type ServeCmd struct {
	Addr string `help:"Listen address (default from config)." default:""`
}

func (c *ServeCmd) Run(ctx *cli.Context) error {
	target, err := config.ParseStore(ctx.Config.Store)
	if err != nil {
		return err
	}
	if target.Kind == config.StoreRemote {
		return errors.New("serve needs a local store (memory, sqlite or postgres), not another sync server")
	}

	store, err := ctx.OpenStore()
	if err != nil {
		return err
	}

	cfg := ctx.Config.Server
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	secret := cfg.TokenSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("No token secret configured; issued tokens will not survive a restart")
	}
	issuer := &auth.Issuer{
		Secret: []byte(secret),
		Name:   constants.TokenIssuer,
		TTL:    cfg.TokenTTL,
	}

	ctx.Printf("Serving %s store on %s\n", target.Kind, cfg.Addr)
	return syncserver.New(store, issuer, cfg).ListenAndServe(ctx.Context())
}
