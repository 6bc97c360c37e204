// edgekvm - share one keyboard and mouse across computers on the LAN.
// The pointer crosses to a peer at a screen edge; clipboard text follows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"edgekvm/internal/api"
	"edgekvm/internal/autostart"
	"edgekvm/internal/config"
	"edgekvm/internal/display"
	"edgekvm/internal/edge"
	"edgekvm/internal/forward"
	"edgekvm/internal/geometry"
	"edgekvm/internal/hotkey"
	"edgekvm/internal/input"
	"edgekvm/internal/network"
	"edgekvm/internal/osutils"
	"edgekvm/internal/session"
	"edgekvm/internal/switcher"
	"edgekvm/internal/tray"
	"edgekvm/internal/tui"
)

var (
	version    = "0.3.0"
	configPath = flag.String("config", "", "Path to the config file (default: per-user config dir)")
	role       = flag.String("role", "", "Override role: server or client")
	connect    = flag.String("connect", "", "Comma-separated host:port peers to connect to")
	listen     = flag.Int("listen", 0, "Override the session listen port")
	name       = flag.String("name", "", "Override this computer's screen name")
	showTUI    = flag.Bool("tui", false, "Show the terminal status monitor")
	scan       = flag.Bool("scan", false, "Scan the LAN for edgekvm instances and exit")
	showVer    = flag.Bool("version", false, "Show version")
	verbose    = flag.Bool("v", false, "Log every forwarded and injected event")
	autoStart  = flag.String("autostart", "", "Start at login: on or off")
)

// fallbackScreen is used when the display cannot be queried and no size is configured
var fallbackScreen = [2]int{1920, 1080}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("edgekvm version %s\n", version)
		return
	}

	cfgMgr, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	if *scan {
		runScan(cfgMgr.Get())
		return
	}

	if *autoStart != "" {
		if err := setAutostart(*autoStart, cfgMgr.Path()); err != nil {
			log.Fatalf("Auto-start: %v", err)
		}
		return
	}

	if err := runService(cfgMgr); err != nil {
		log.Fatalf("edgekvm: %v", err)
	}
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Manager, error) {
	var cfgMgr *config.Manager
	if *configPath != "" {
		cfgMgr = config.NewManagerAt(*configPath)
	} else {
		m, err := config.NewManager()
		if err != nil {
			return nil, err
		}
		cfgMgr = m
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}

	cfg := *cfgMgr.Get()
	if *role != "" {
		cfg.General.Role = *role
	}
	if *listen > 0 {
		cfg.General.ListenPort = *listen
	}
	if *name != "" {
		cfg.General.Name = *name
	}
	if *connect != "" {
		cfg.General.ServerAddrs = nil
		for _, addr := range strings.Split(*connect, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.General.ServerAddrs = append(cfg.General.ServerAddrs, addr)
			}
		}
	}
	if err := cfgMgr.Set(&cfg); err != nil {
		return nil, err
	}
	return cfgMgr, nil
}

func runScan(cfg *config.Config) {
	if ips, err := network.GetLocalIPs(); err == nil {
		for _, ip := range ips {
			log.Printf("Local IPv4: %s", ip)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	peers, err := network.ScanLAN(ctx, cfg.General.APIPort)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatalf("Scan failed: %v", err)
	}
	if len(peers) == 0 {
		fmt.Println("No edgekvm instances found")
		return
	}
	for _, p := range peers {
		fmt.Printf("%s:%d  %-16s %-7s owner=%s\n", p.IP, p.Port, p.Name, p.Role, p.Owner)
	}
}

// setAutostart registers or removes the login item for this config file
func setAutostart(mode, cfgPath string) error {
	switch mode {
	case "on":
		e, err := autostart.Current("-config", cfgPath)
		if err != nil {
			return err
		}
		if err := autostart.Enable(e); err != nil {
			return err
		}
		fmt.Println("edgekvm will start at login")
	case "off":
		if err := autostart.Disable(); err != nil {
			return err
		}
		fmt.Println("edgekvm will no longer start at login")
	default:
		return fmt.Errorf("unknown mode %q, want on or off", mode)
	}
	return nil
}

// localDisplay picks the geometry source: configured size, the primary
// display, or a fallback size when neither is available.
func localDisplay(cfg *config.Config) *display.Cache {
	screenName := cfg.General.Name
	var source display.Source = display.ScreenshotSource{Display: 0, Name: screenName}
	if cfg.Screen.Width > 0 {
		source = display.Fixed{Screen: geometry.MustNew(cfg.Screen.Width, cfg.Screen.Height, 0, 0, screenName)}
	}

	cache, err := display.NewCache(source)
	if err == nil {
		return cache
	}
	log.Printf("Warning: %v; assuming %dx%d", err, fallbackScreen[0], fallbackScreen[1])
	cache, _ = display.NewCache(display.Fixed{
		Screen: geometry.MustNew(fallbackScreen[0], fallbackScreen[1], 0, 0, screenName),
	})
	return cache
}

func runService(cfgMgr *config.Manager) error {
	cfg := cfgMgr.Get()
	controller := cfg.General.Role == config.RoleServer
	log.Printf("edgekvm %s starting as %s (%s)", version, cfg.General.Role, cfg.General.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	screens := localDisplay(cfg)
	local := screens.Get()
	log.Printf("Display: %s", local)
	go screens.Watch(ctx, 5*time.Second)

	// Hook engine feeds hotkeys and captured keys, buttons and wheel.
	// Without it keys can be neither captured nor suppressed.
	hkMgr := hotkey.NewManager()
	hooked := true
	if err := hkMgr.Start(); err != nil {
		log.Printf("Warning: Hotkey Engine failed to start, control stays local: %v", err)
		hooked = false
	}

	var (
		robot    *input.Robot
		injector input.Injector
		pointer  input.Pointer
		clip     input.Clipboard
		capture  *input.PollCapturer
		capturer input.Capturer
	)
	usable := true
	if err := input.Probe(); err != nil {
		log.Printf("Warning: input access unavailable, relaying only: %v", err)
		usable = false
	} else {
		robot = input.NewRobot()
		injector, pointer, clip = robot, robot, robot
		if hooked {
			center := func() geometry.Point { return screens.Get().Center() }
			capture = input.NewPollCapturer(robot, robot, center, hkMgr, 0)
			capturer = capture
		}
	}

	sessions := session.NewManager(cfg.SessionSettings(), network.NewDialer(), screens.Get, session.LocalClientInfo(version))
	pipe := forward.New(forward.ManagerPeers{Manager: sessions}, injector, clip)
	pipe.Verbose = *verbose

	var events <-chan input.Event
	if capture != nil {
		var err error
		if events, err = capture.Start(ctx); err != nil {
			log.Printf("Warning: input capture failed to start, control stays local: %v", err)
			capturer = nil
		}
	}
	degraded := !usable || events == nil

	waker := osutils.NewWaker(30 * time.Second)
	sw := switcher.New(sessions, pipe, injector, capturer, switcher.Options{
		Name:       cfg.General.Name,
		Local:      screens.Get,
		Controller: controller,
		Layout:     cfg.LayoutEdges(),
		EntryInset: cfg.Edge.EntryInsetPx,
		Degraded:   degraded,
		WakeUp:     waker.WakeUp,
	})

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if events != nil {
		spawn(func() { pipe.Run(ctx, events) })
	}
	if usable {
		trigger := edge.New(pointer, screens.Get, sw.EdgeActive, sw.OnEdge, cfg.EdgeSettings())
		spawn(func() { trigger.Run(ctx) })

		if cfg.General.EnableClipboard {
			interval := time.Duration(cfg.General.ClipboardPollMs) * time.Millisecond
			spawn(func() { pipe.WatchClipboard(ctx, interval) })
		}
	}

	if controller {
		if runtime.GOOS == "windows" {
			ports := []int{cfg.General.ListenPort}
			if cfg.General.APIEnabled {
				ports = append(ports, cfg.General.APIPort)
			}
			go func() {
				if err := osutils.EnsureFirewallRule(ports...); err != nil {
					log.Printf("Firewall warning: %v", err)
				}
			}()
		}
		spawn(func() {
			if err := api.Serve(ctx, cfg.General.ListenPort, api.PeerHandler(sessions)); err != nil {
				log.Printf("ERROR: peer listener stopped: %v", err)
			}
		})
	}

	var apiServer *api.Server
	if cfg.General.APIEnabled {
		apiServer = api.NewServer(cfgMgr, sw)
		spawn(func() {
			if err := api.Serve(ctx, cfg.General.APIPort, apiServer.Handler()); err != nil {
				log.Printf("ERROR: API server stopped: %v", err)
			}
		})
	}

	for _, addr := range cfg.General.ServerAddrs {
		if _, err := sw.Connect(addr); err != nil {
			log.Printf("Warning: connect to %s failed: %v", addr, err)
		}
	}

	registerHotkeys(hkMgr, cfgMgr, sw)
	cfgMgr.RegisterChangeCallback(func() { registerHotkeys(hkMgr, cfgMgr, sw) })

	switch {
	case *showTUI:
		if err := tui.Run(sw, "edgekvm-tui.log"); err != nil {
			log.Printf("TUI error: %v", err)
		}
	case cfg.General.ShowTray:
		runTray(ctx, sw)
	default:
		log.Println("edgekvm running. Press Ctrl+C to stop.")
		<-ctx.Done()
	}

	log.Println("Shutting down...")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
	defer done()
	if err := sw.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	if apiServer != nil {
		apiServer.Close()
	}
	wg.Wait()
	return nil
}

// runTray blocks in the tray loop until Quit or ctx ends
func runTray(ctx context.Context, sw *switcher.Switcher) {
	t := tray.New("edgekvm - keyboard and mouse sharing")
	t.AddMenuItem("Take control", func() {
		if err := sw.TakeControl(""); err != nil {
			log.Printf("Tray: take control: %v", err)
		}
	})
	t.AddMenuItem("Return control", func() {
		if err := sw.ReturnControl(); err != nil {
			log.Printf("Tray: return control: %v", err)
		}
	})
	t.AddSeparator()
	t.AddMenuItem("Quit", t.Stop)

	t.SetStatus(sw.Status())
	sw.OnStatus(t.SetStatus)

	go func() {
		<-ctx.Done()
		t.Stop()
	}()
	t.Run()
}

// registerHotkeys binds the take and return combos from the config
func registerHotkeys(hkMgr *hotkey.Manager, cfgMgr *config.Manager, sw *switcher.Switcher) {
	cfg := cfgMgr.Get()
	hkMgr.Clear()

	var lastHkTime time.Time
	var hkMux sync.Mutex
	debounce := func() bool {
		hkMux.Lock()
		defer hkMux.Unlock()
		if time.Since(lastHkTime) < 500*time.Millisecond {
			return false
		}
		lastHkTime = time.Now()
		return true
	}

	bind := func(spec, what string, action func() error) {
		if spec == "" {
			return
		}
		cb := func() {
			if !debounce() {
				return
			}
			if err := action(); err != nil {
				log.Printf("Hotkey: %s: %v", what, err)
			}
		}
		if err := hkMgr.Register(spec, cb); err != nil {
			log.Printf("Warning: failed to register %s hotkey %q: %v", what, spec, err)
			return
		}
		// On macOS also accept Cmd wherever Ctrl is configured
		if runtime.GOOS == "darwin" && strings.Contains(strings.ToUpper(spec), "CTRL") {
			hkMgr.Register(strings.ReplaceAll(strings.ToUpper(spec), "CTRL", "CMD"), cb)
		}
	}

	if cfg.General.Role == config.RoleServer {
		bind(cfg.General.TakeHotkey, "take control", func() error { return sw.TakeControl("") })
	}
	bind(cfg.General.ReturnHotkey, "return control", sw.ReturnControl)
	log.Printf("Shortcuts: take=%q return=%q", cfg.General.TakeHotkey, cfg.General.ReturnHotkey)
}
