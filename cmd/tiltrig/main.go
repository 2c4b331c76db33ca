package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tiltrig/internal/config"
	"tiltrig/internal/moduletest"
	"tiltrig/internal/rig"
)

type overrides struct {
	test     string
	loop     *bool
	interval time.Duration
}

func main() {
	var (
		configPath string
		testName   string
		loop       bool
		interval   time.Duration
		list       bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (empty: built-in sim defaults)")
	flag.StringVar(&testName, "test", "", "Module test to run (overrides dispatch.test)")
	flag.BoolVar(&loop, "loop", false, "Repeat the test until interrupted (overrides dispatch.loop)")
	flag.DurationVar(&interval, "interval", 0, "Delay between passes when looping (overrides dispatch.interval)")
	flag.BoolVar(&list, "list", false, "List the module tests and exit")
	flag.Parse()

	if list {
		fmt.Println(strings.Join(moduletest.Names(), "\n"))
		return
	}

	o := overrides{test: testName, interval: interval}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "loop" {
			o.loop = &loop
		}
	})
	cfg, err := loadConfig(configPath, o)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, err := rig.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("rig bring-up failed: %v", err)
	}
	defer r.Close()

	log.Printf("tiltrig starting")
	log.Printf("bus=%s test=%s loop=%t console=%s", cfg.Bus.Backend, cfg.Dispatch.Test, cfg.Dispatch.Loop, r.Console)

	d := moduletest.New(r)
	if cfg.Dispatch.Loop {
		err = d.Loop(ctx, cfg.Dispatch.Test, cfg.Dispatch.Interval)
	} else {
		err = d.Run(ctx, cfg.Dispatch.Test)
	}
	if err != nil && ctx.Err() == nil {
		log.Printf("test %s stopped: %v", cfg.Dispatch.Test, err)
	}
	log.Printf("tiltrig stopping")
}

// loadConfig reads path (or starts from an empty config) and applies the
// command-line overrides before validation.
func loadConfig(path string, o overrides) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = c
	}
	if o.test != "" {
		cfg.Dispatch.Test = o.test
	}
	if o.loop != nil {
		cfg.Dispatch.Loop = *o.loop
	}
	if o.interval != 0 {
		cfg.Dispatch.Interval = o.interval
	}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
