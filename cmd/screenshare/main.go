package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"lanparty/screenshare/internal/capture"
	"lanparty/screenshare/internal/config"
	"lanparty/screenshare/internal/session"
	sigclient "lanparty/screenshare/internal/signal"
	"lanparty/screenshare/internal/webrtc"
)

const helpText = `screenshare - share your screen with other players on the party network

Viewed video is written to stdout as a raw H264 stream. Pipe to ffplay or
ffmpeg for playback. Prompts and logs go to stderr.

Usage:
  screenshare | ffplay -f h264 -

Environment Variables:
  LANPARTY_RELAY_URL         Signaling relay websocket URL (required)
  LANPARTY_PLAYER_ID         Participant id (default: random)
  LANPARTY_PLAYER_NAME       Display name (default: derived from id)
  LANPARTY_STUN_URLS         Comma-separated STUN URLs
  LANPARTY_TURN_URLS         Comma-separated TURN URLs
  LANPARTY_TURN_USERNAME     TURN username
  LANPARTY_TURN_CREDENTIAL   TURN credential
  LANPARTY_CAPTURE_RTP_ADDR  UDP address the capture feed sends RTP to
                             (default 127.0.0.1:5004)

Commands (on stdin):
  list                 show known shares
  share [password]     start sharing (password optional)
  stop <shareId>       stop sharing
  view <shareId> [password]
                       view a share, video to stdout
  leave <shareId>      stop viewing
  quit

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %s, shutting down", sig)
		cancel()
	}()

	newPeer, err := webrtc.NewFactory(cfg.ICEServers)
	if err != nil {
		log.Fatalf("[main] webrtc factory: %v", err)
	}

	sc := sigclient.NewClient(cfg.RelayURL, cfg.PlayerID, cfg.PlayerName)

	mgr := session.NewManager(session.Config{
		PlayerID:   cfg.PlayerID,
		PlayerName: cfg.PlayerName,
		Signaler:   sc,
		NewPeer:    newPeer,
		Capture:    capture.NewProvider(cfg.CaptureAddr, 0),
	})
	sc.SetHandler(mgr)

	if err := sc.Connect(); err != nil {
		log.Fatalf("[main] signal connect: %v", err)
	}

	log.Printf("[main] connected as %s (%s)", cfg.PlayerName, cfg.PlayerID)

	go runCommands(ctx, cancel, mgr)

	<-ctx.Done()
	log.Printf("[main] shutting down")

	mgr.Close()
	sc.Close()

	log.Printf("[main] done")
}

func runCommands(ctx context.Context, cancel context.CancelFunc, mgr *session.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	prompt := func() { fmt.Fprint(os.Stderr, "> ") }

	prompt()
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			prompt()
			continue
		}

		switch fields[0] {
		case "list":
			shares := mgr.ListShares()
			if len(shares) == 0 {
				fmt.Fprintln(os.Stderr, "no shares")
			}
			for _, s := range shares {
				viewer := "free"
				if s.ViewerID != "" {
					viewer = "viewed by " + s.ViewerName
				}
				locked := ""
				if s.RequiresPassword {
					locked = " [password]"
				}
				fmt.Fprintf(os.Stderr, "%s  %s%s  %s\n", s.ID, s.OwnerName, locked, viewer)
			}

		case "share":
			password := ""
			if len(fields) > 1 {
				password = fields[1]
			}
			id, err := mgr.StartSharing(password != "", password)
			if err != nil {
				fmt.Fprintf(os.Stderr, "share: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "sharing as %s\n", id)
			}

		case "stop":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: stop <shareId>")
				break
			}
			mgr.StopSharing(fields[1])

		case "view":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: view <shareId> [password]")
				break
			}
			shareID := fields[1]
			password := ""
			if len(fields) > 2 {
				password = fields[2]
			}
			go view(ctx, mgr, shareID, password)

		case "leave":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: leave <shareId>")
				break
			}
			mgr.StopViewing(fields[1])

		case "quit", "exit":
			cancel()
			return

		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
		}
		prompt()
	}
}

func view(ctx context.Context, mgr *session.Manager, shareID, password string) {
	stream, err := mgr.RequestView(ctx, shareID, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "view %s: %v\n", shareID, err)
		return
	}

	fmt.Fprintf(os.Stderr, "viewing %s (%s)\n", shareID, stream.Codec())

	h264, ok := stream.(*webrtc.Stream)
	if !ok {
		fmt.Fprintf(os.Stderr, "view %s: stream is not renderable\n", shareID)
		mgr.StopViewing(shareID)
		return
	}
	if err := h264.WriteAnnexB(os.Stdout); err != nil {
		log.Printf("[main] render %s: %v", shareID, err)
	}
}
