package main

import (
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/starfederation/fxcodec"
	"github.com/starfederation/fxcodec/pool"
)

type cli struct {
	Verbose bool `help:"Enable debug logging." short:"v"`

	Format formatCmd `cmd:"" help:"Render numbers with the shortest round-trip formatter."`
	Encode encodeCmd `cmd:"" help:"Encode a flat JSON object into a tagged buffer."`
	Dump   dumpCmd   `cmd:"" help:"Print the fields of a tagged buffer."`
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level.SetLevel(zap.DebugLevel)
	}
	return cfg.Build()
}

func main() {
	var args cli
	ctx := kong.Parse(&args,
		kong.Name("fxcodec"),
		kong.Description("Format floating point numbers and inspect tagged binary buffers."),
		kong.UsageOnError(),
	)

	logger, err := newLogger(args.Verbose)
	if err != nil {
		ctx.FatalIfErrorf(err)
	}
	defer logger.Sync() //nolint:errcheck
	fxcodec.SetLogger(logger)

	registry := pool.NewRegistry(pool.WithLogger(logger))
	err = ctx.Run(logger, registry)
	for _, st := range registry.Stats() {
		logger.Debug("pool stats",
			zap.String("pool", st.Name),
			zap.String("elem", st.Elem),
			zap.Int("idle", st.Idle),
			zap.Uint64("hits", st.Hits),
			zap.Uint64("misses", st.Misses),
			zap.Uint64("evictions", st.Evictions),
		)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", ctx.Command()), zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}
