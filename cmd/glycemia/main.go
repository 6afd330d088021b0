package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"ichor/glycemia"
	"ichor/glycemia/defs"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "f", "config.yaml", "config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-f config.yaml] serve | batch <glob> | file <csv>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	config := defs.Config{}
	file, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err = yaml.Unmarshal(file, &config); err != nil {
			logger.Fatal("unable to parse config", zap.Error(err))
		}
	case os.IsNotExist(err) && flag.Arg(0) != "serve":
		logger.Debug("no config file, using defaults", zap.String("file", configFile))
	default:
		logger.Fatal("unable to read config", zap.Error(err))
	}
	config.Logger = logger

	if err = config.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	switch flag.Arg(0) {
	case "serve":
		server, err := glycemia.New(config)
		if err != nil {
			logger.Fatal("unable to create server", zap.Error(err))
		}
		if err = server.Run(); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}

	case "batch":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		summary, err := glycemia.RunBatch(context.Background(), config, flag.Arg(1))
		if err != nil {
			logger.Fatal("batch failed", zap.Error(err))
		}
		logger.Info("batch complete",
			zap.Int("successful", summary.Successful),
			zap.Int("failed", summary.Failed),
		)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err = enc.Encode(summary); err != nil {
			logger.Fatal("unable to write summary", zap.Error(err))
		}

	case "file":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		_, report, err := glycemia.AnalyzeFile(config, flag.Arg(1))
		if err != nil {
			logger.Fatal("analysis failed", zap.Error(err))
		}
		fmt.Print(report)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
