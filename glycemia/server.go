package glycemia

import (
	"context"
	"fmt"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/desc"
	"ichor/glycemia/pkg/dexcom"
	"ichor/glycemia/pkg/discgo"
	ghttp "ichor/glycemia/pkg/http"
	"ichor/glycemia/pkg/mg"
	"time"

	"go.uber.org/zap"
)

type Server struct {
	Analyzer *Analyzer
	Fetcher  *Fetcher
	HTTP     *ghttp.HttpServer
	Discord  *discgo.Discord // Nil when no token is configured.
	Store    *mg.MongoStore

	Logger *zap.Logger
	Config defs.Config
}

func New(config defs.Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defs.TimeoutInterval)
	defer cancel()

	loc := config.Location()
	target := config.Glucose.Range()

	ms, err := mg.New(ctx, config.Mongo, defs.DefaultDB, config.Logger)
	if err != nil {
		return nil, err
	}

	an := &Analyzer{
		Store:      ms,
		Descriptor: desc.New(loc, config.Glucose.TIRGoal(), config.Glucose.CVTarget()),
		Logger:     config.Logger,
		Location:   loc,
		Target:     target,
	}

	var dg *discgo.Discord
	if config.Discord.Token != "" {
		dg, err = discgo.New(config.Discord, config.Logger)
		if err != nil {
			return nil, err
		}
		if err = dg.Setup(defs.ReportsChannel); err != nil {
			return nil, fmt.Errorf("unable to setup discord: %w", err)
		}
		an.Messager = dg
	}

	config.Logger.Debug("finished server setup",
		zap.String("timezone", loc.String()),
		zap.Float64("target low", target.Low),
		zap.Float64("target high", target.High),
		zap.Bool("discord", dg != nil),
	)

	return &Server{
		Analyzer: an,
		Fetcher: &Fetcher{
			Source: dexcom.New(config.Dexcom.Account, config.Dexcom.Password, config.Logger),
			Store:  ms,
			Logger: config.Logger,
		},
		HTTP:    ghttp.New(ms, target, loc, config.Logger),
		Discord: dg,
		Store:   ms,
		Logger:  config.Logger,
		Config:  config,
	}, nil
}

// Run starts the fetch and analysis loops and blocks serving HTTP.
func (s *Server) Run() error {
	go s.ExecuteTask("fetch", defs.DownloaderInterval, s.Fetcher.FetchRecent)
	go s.ExecuteTask("analyze", defs.AnalyzerInterval, s.Analyzer.AnalyzeRecent)
	return s.HTTP.Run(s.Config.HTTP.Addr)
}

// ExecuteTask runs task immediately and then on every tick.
func (s *Server) ExecuteTask(name string, interval time.Duration, task func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for ; true; <-ticker.C {
		if err := task(); err != nil {
			s.Logger.Error("task failed", zap.String("task", name), zap.Error(err))
		}
	}
}

func (s *Server) Close(ctx context.Context) error {
	if s.Discord != nil {
		if err := s.Discord.Close(); err != nil {
			s.Logger.Debug("unable to close discord", zap.Error(err))
		}
	}
	return s.Store.Client.Disconnect(ctx)
}
