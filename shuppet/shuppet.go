package main

import (
	"flag"
	"fmt"
	"ichor/glycemia/defs"
	"log"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

func main() {
	dexcomAccount := flag.String("dexcom-account", "", "dexcom account")
	dexcomPassword := flag.String("dexcom-password", "", "dexcom password")

	discordToken := flag.String("discord-token", "", "discord token, reports are disabled when empty")
	discordGuild := flag.String("discord-guild", "", "discord guild id")

	population := flag.String("population", string(defs.Adult), "adult, pediatric, elderly, pregnancy or custom")
	glucoseLow := flag.Float64("glucose-low", 70, "lower target bound in mg/dL for the custom population")
	glucoseHigh := flag.Float64("glucose-high", 180, "upper target bound in mg/dL for the custom population")
	tirGoal := flag.Float64("tir-goal", 0, "time in range goal in percent, population default when 0")
	cvTarget := flag.Float64("cv-target", 0, "coefficient of variation ceiling in percent, 36 when 0")

	maxParallel := flag.Int("max-parallel", 4, "files analyzed concurrently in batch mode")
	fileTimeout := flag.Duration("file-timeout", defs.FileTimeout, "per file timeout in batch mode")

	mongoUsername := flag.String("mongo-username", "admin", "mongo username")
	mongoPassword := flag.String("mongo-password", "password", "mongo password")

	timezone := flag.String("timezone", "America/Toronto", "time zone for daily and hourly metrics")
	out := flag.String("out", "docker-config.yaml", "config output path")

	flag.Parse()

	cfg := defs.Config{
		Dexcom: defs.DexcomConfig{
			Account:  *dexcomAccount,
			Password: *dexcomPassword,
		},
		Discord: defs.DiscordConfig{
			Token: *discordToken,
			Guild: *discordGuild,
		},
		Mongo: defs.MongoConfig{
			URI:      "mongodb://mongo:27017",
			Username: *mongoUsername,
			Password: *mongoPassword,
		},
		Glucose: defs.GlucoseConfig{
			Population: defs.Population(*population),
			Low:        *glucoseLow,
			High:       *glucoseHigh,
			Goal:       *tirGoal,
			CV:         *cvTarget,
		},
		Batch: defs.BatchConfig{
			MaxParallel: *maxParallel,
			Timeout:     *fileTimeout,
			OutputDir:   "reports",
		},
		HTTP:     defs.HTTPConfig{Addr: ":4242"},
		Timezone: *timezone,
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err = os.WriteFile(*out, data, 0o600); err != nil {
		log.Fatal(err)
	}

	envVars := map[string]string{
		"MONGO_USERNAME": *mongoUsername,
		"MONGO_PASSWORD": *mongoPassword,
	}
	keys := make([]string, 0, len(envVars))
	for k := range envVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var envString string
	for _, k := range keys {
		envString += fmt.Sprintln(k + "=" + envVars[k])
	}
	if err = os.WriteFile("ichor.env", []byte(envString), 0o600); err != nil {
		log.Fatal(err)
	}

	log.Printf("wrote %s at %s", *out, time.Now().Format(time.RFC3339))
}
