// ShareMouse - share one mouse between two computers
// A two-machine pointer sharing tool over UDP or TCP
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/shinamon610/ShareMouse/internal/api"
	"github.com/shinamon610/ShareMouse/internal/autostart"
	"github.com/shinamon610/ShareMouse/internal/config"
	"github.com/shinamon610/ShareMouse/internal/input"
	"github.com/shinamon610/ShareMouse/internal/logging"
	"github.com/shinamon610/ShareMouse/internal/network"
	"github.com/shinamon610/ShareMouse/internal/osutils"
	"github.com/shinamon610/ShareMouse/internal/protocol"
	"github.com/shinamon610/ShareMouse/internal/session"
	"github.com/shinamon610/ShareMouse/internal/space"
	"github.com/shinamon610/ShareMouse/internal/tray"
)

var version = "0.1.0"

const usage = `ShareMouse - share one mouse between two computers

Usage:
  sharemouse run      [-c config] [--tray] [--input platform|null] [--log-level level]
  sharemouse send     same as run, starting with the pointer on this machine
  sharemouse receive  same as run, starting with the pointer on the peer
  sharemouse template [-c config] [--force]
  sharemouse status   [--api addr] [--token token] [--json]
  sharemouse stop     [--api addr] [--token token]
  sharemouse watch    [--api addr] [--token token]
  sharemouse autostart enable|disable|status [-c config] [--tray]
  sharemouse version
`

func main() {
	// Initialize the logger early so config loading can use it.
	if err := logging.Setup("info", "auto", os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = runSession(cmd, args, nil)
	case "send":
		owner := space.RoleLocal
		err = runSession(cmd, args, &owner)
	case "receive":
		owner := space.RoleRemote
		err = runSession(cmd, args, &owner)
	case "template":
		err = writeTemplate(args)
	case "status":
		err = showStatus(args)
	case "stop":
		err = stopSession(args)
	case "watch":
		err = watchSession(args)
	case "autostart":
		err = configureAutostart(args)
	case "version", "--version":
		fmt.Printf("sharemouse version %s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("failed")
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	path, err := config.DefaultPath()
	if err != nil {
		return "config.yaml"
	}
	return path
}

func runSession(name string, args []string, owner *space.Role) error {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath(), "configuration file")
	withTray := fs.Bool("tray", false, "show a system tray status indicator")
	backend := fs.String("input", "platform", "input backend: platform or null")
	logLevel := fs.String("log-level", "", "override log.level")
	peer := fs.String("peer", "", "override network.peer_address")
	port := fs.IntP("port", "p", 0, "override network.listen_port")
	fs.Parse(args)

	osFs := afero.NewOsFs()
	loader := config.NewLoader(osFs)
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return fmt.Errorf("%w (create one with: sharemouse template -c %s)", err, *cfgPath)
		}
		return err
	}

	if owner != nil {
		cfg.Control.InitialOwner = *owner
	}
	if *peer != "" {
		cfg.Network.PeerAddress = *peer
	}
	if *port != 0 {
		cfg.Network.ListenPort = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := loader.Validate(cfg); err != nil {
		return err
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}
	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if runtime.GOOS == "windows" {
		go func() {
			if err := osutils.EnsureFirewallRule(cfg.Network.ListenPort, string(cfg.Network.Protocol)); err != nil {
				log.Warn().Err(err).Msg("firewall rule not ensured")
			}
		}()
	}
	if ip, err := network.LocalIP(cfg.TransportConfig().PeerEndpoint()); err == nil {
		log.Info().Str("local_ip", ip).Str("peer", cfg.TransportConfig().PeerEndpoint()).Msg("route to peer")
	}

	capturer, injector := inputBackend(*backend)
	opts := []session.Option{
		session.WithCapturer(capturer),
		session.WithInjector(injector),
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub()
		opts = append(opts, session.WithObserver(hub))
	}
	var t *tray.Tray
	if *withTray {
		t = tray.New(cancel)
		opts = append(opts, session.WithObserver(t))
	}

	sess, err := session.Start(ctx, cfg.Session(), opts...)
	if err != nil {
		return err
	}

	apiCtx, stopAPI := context.WithCancel(context.Background())
	defer stopAPI()
	var g errgroup.Group
	if hub != nil {
		srv := api.NewServer(sess, hub, cfg.API.Token)
		g.Go(func() error {
			if err := srv.Serve(apiCtx, cfg.API.Listen); err != nil {
				log.Error().Err(err).Str("addr", cfg.API.Listen).Msg("api server stopped; session continues without it")
			}
			return nil
		})
	}

	log.Info().Str("session", sess.ID()).Msg("ShareMouse running. Press Ctrl+C to stop.")
	if t != nil {
		go func() {
			<-sess.Done()
			t.Stop()
		}()
		t.Run()
	}
	<-sess.Done()

	stopAPI()
	g.Wait()
	return sess.Err()
}

func inputBackend(name string) (input.Capturer, input.Injector) {
	if name == "platform" {
		p, err := input.NewPlatform(input.DefaultPollInterval)
		if err == nil {
			return p, p
		}
		log.Warn().Err(err).Msg("no platform input backend; capture disabled and injection only logged")
	} else if name != "null" {
		log.Warn().Str("input", name).Msg("unknown input backend, using null")
	}
	return input.NewNullCapturer(), input.LogInjector{}
}

func writeTemplate(args []string) error {
	fs := pflag.NewFlagSet("template", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath(), "configuration file to create")
	force := fs.Bool("force", false, "overwrite an existing file")
	fs.Parse(args)

	if err := config.WriteTemplate(afero.NewOsFs(), *cfgPath, *force); err != nil {
		return err
	}
	fmt.Printf("Template config created at %s\n", *cfgPath)
	return nil
}

// apiFlags registers the flags shared by the client commands.
func apiFlags(fs *pflag.FlagSet) func() *api.Client {
	addr := fs.String("api", "", "control API address (default: api.listen from the config)")
	token := fs.String("token", "", "control API token (default: api.token from the config)")
	cfgPath := fs.StringP("config", "c", defaultConfigPath(), "configuration file")

	return func() *api.Client {
		a, tok := "127.0.0.1:18080", ""
		if cfg, err := config.NewLoader(afero.NewOsFs()).Load(*cfgPath); err == nil {
			a, tok = cfg.API.Listen, cfg.API.Token
		}
		if *addr != "" {
			a = *addr
		}
		if *token != "" {
			tok = *token
		}
		return api.NewClient(a, tok)
	}
}

func showStatus(args []string) error {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	client := apiFlags(fs)
	asJSON := fs.Bool("json", false, "print the raw status as JSON")
	fs.Parse(args)

	st, err := client().Status(context.Background())
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Printf("Session:   %s\n", st.SessionID)
	fmt.Printf("State:     %s\n", st.State)
	fmt.Printf("Pointer:   %d,%d (%s screen)\n", st.Position.X, st.Position.Y, st.Owner)
	fmt.Printf("Peer:      %s (%s, %s)\n", st.Transport.Peer, st.Transport.Protocol, st.Peer.Liveness)
	fmt.Printf("Traffic:   sent %d, received %d, dropped %d, malformed %d, out of order %d\n",
		st.Stats.Sent, st.Stats.Received, st.Stats.Dropped, st.Stats.Malformed, st.Stats.OutOfOrder)
	fmt.Printf("Handoffs:  %d\n", st.Stats.Handoffs)
	if st.Stats.InjectFailures > 0 {
		fmt.Printf("Injection: %d failures\n", st.Stats.InjectFailures)
	}
	if st.Error != "" {
		fmt.Printf("Error:     %s\n", st.Error)
	}
	return nil
}

func stopSession(args []string) error {
	fs := pflag.NewFlagSet("stop", pflag.ExitOnError)
	client := apiFlags(fs)
	fs.Parse(args)

	sessionErr, err := client().Stop(context.Background())
	if err != nil {
		return err
	}
	if sessionErr != "" {
		fmt.Printf("Session stopped (it had failed: %s)\n", sessionErr)
		return nil
	}
	fmt.Println("Session stopped")
	return nil
}

func watchSession(args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	client := apiFlags(fs)
	fs.Parse(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := client().Watch(ctx, api.WatchHandlers{
		Status: func(st session.Status) {
			fmt.Printf("%s  %-15s %5d,%-5d %-6s peer=%s\n",
				st.UpdatedAt.Format("15:04:05.000"), st.State, st.Position.X, st.Position.Y, st.Owner, st.Peer.Liveness)
		},
		Transition: func(t protocol.TransitionPayload) {
			line := fmt.Sprintf("-> %s => %s", t.From, t.To)
			if t.Reason != "" {
				line += " (" + strings.TrimPrefix(t.Reason, "arbiter: ") + ")"
			}
			fmt.Println(line)
		},
	})
	if err != nil {
		return err
	}
	fmt.Println("Session ended")
	return nil
}

func configureAutostart(args []string) error {
	fs := pflag.NewFlagSet("autostart", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath(), "configuration file the login item runs with")
	withTray := fs.Bool("tray", true, "start with the tray indicator")
	fs.Parse(args)

	action := "status"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	m, err := autostart.New(afero.NewOsFs(), runtime.GOOS, home, os.Getenv("APPDATA"))
	if err != nil {
		return err
	}

	switch action {
	case "enable":
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		cfg, err := filepath.Abs(*cfgPath)
		if err != nil {
			return err
		}
		entry := autostart.Entry{Executable: exe, Args: []string{"run", "-c", cfg}}
		if *withTray {
			entry.Args = append(entry.Args, "--tray")
		}
		if err := m.Enable(entry); err != nil {
			return err
		}
		fmt.Printf("Autostart enabled (%s)\n", m.Path())
	case "disable":
		if err := m.Disable(); err != nil {
			return err
		}
		fmt.Println("Autostart disabled")
	case "status":
		if m.IsEnabled() {
			fmt.Printf("Autostart enabled (%s)\n", m.Path())
		} else {
			fmt.Println("Autostart disabled")
		}
	default:
		return fmt.Errorf("unknown autostart action %q (want enable, disable or status)", action)
	}
	return nil
}
