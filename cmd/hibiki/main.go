package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"git.sr.ht/~emka/hibiki"
	"git.sr.ht/~emka/hibiki/irc"
)

func main() {
	var configPath string
	var debug bool
	var version bool
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.BoolVar(&debug, "debug", false, "print raw protocol data")
	flag.BoolVar(&version, "version", false, "show version info")
	flag.Parse()

	if version {
		if v, ok := hibiki.BuildVersion(); ok {
			fmt.Printf("hibiki version %v\n", v)
		} else {
			fmt.Printf("hibiki (unknown version)\n")
		}
		return
	}

	if configPath == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			panic(err)
		}
		configPath = path.Join(configDir, "hibiki", "hibiki.scfg")
	}

	cfg, err := hibiki.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load the configuration file at %q: %s\n", configPath, err)
		os.Exit(1)
	}
	if len(cfg.Networks) == 0 {
		fmt.Fprintf(os.Stderr, "no networks configured in %q\n", configPath)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || debug

	var sts hibiki.STSStore
	if cfg.STSStorePath != "" {
		sts, err = hibiki.NewFileSTSStore(cfg.STSStorePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open the sts store at %q: %s\n", cfg.STSStorePath, err)
			os.Exit(1)
		}
	}

	opts := hibiki.ManagerOptions{STS: sts}
	if cfg.Debug {
		opts.Debug = func(id, format string, args ...interface{}) {
			fmt.Printf("[%s] %s\n", id, fmt.Sprintf(format, args...))
		}
	}
	manager := hibiki.NewManager(opts)
	manager.OnEvent(func(id string, ev irc.Event) {
		printEvent(id, ev)
	})

	for _, network := range cfg.Networks {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		id, err := manager.Connect(ctx, network)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to %q: %s\n", network.Name, err)
			continue
		}
		fmt.Printf("[%s] connecting to %s\n", id, network.Addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		manager.DisconnectAll()
		os.Exit(0)
	}()

	// input format: [context-id] [buffer] text. /switch changes context,
	// /buffer changes buffer, anything else goes to the engine.
	buffer := ""
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		active, ok := manager.Active()
		if !ok {
			fmt.Fprintf(os.Stderr, "no active context\n")
			continue
		}
		if id, ok := strings.CutPrefix(line, "/switch "); ok {
			if err := manager.SetActive(strings.TrimSpace(id)); err != nil {
				fmt.Fprintf(os.Stderr, "%s\n", err)
			}
			continue
		}
		if target, ok := strings.CutPrefix(line, "/buffer "); ok {
			buffer = strings.TrimSpace(target)
			continue
		}
		if err := manager.HandleInput(active, buffer, line); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
	}
	manager.DisconnectAll()
}

func printEvent(id string, ev irc.Event) {
	switch ev := ev.(type) {
	case irc.RegisteredEvent:
		fmt.Printf("[%s] registered\n", id)
	case irc.MessageEvent:
		fmt.Printf("[%s] %s <%s> %s\n", id, ev.Target, ev.User, ev.Content)
	case irc.InfoEvent:
		if ev.Prefix != "" {
			fmt.Printf("[%s] %s: %s\n", id, ev.Prefix, ev.Message)
		} else {
			fmt.Printf("[%s] %s\n", id, ev.Message)
		}
	case irc.ErrorEvent:
		fmt.Printf("[%s] error %s: %s\n", id, ev.Code, ev.Message)
	case irc.SelfJoinEvent:
		fmt.Printf("[%s] joined %s\n", id, ev.Channel)
	case irc.SelfPartEvent:
		fmt.Printf("[%s] left %s\n", id, ev.Channel)
	case irc.TopicChangeEvent:
		fmt.Printf("[%s] %s topic: %s\n", id, ev.Channel, ev.Topic)
	case irc.RawEvent:
		fmt.Printf("[%s] ? %s\n", id, ev.Line)
	}
}
