// Command table is a terminal client for the game: it joins the shared store
// as a host, player or viewer and drives the same controller a browser tab
// would.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"traitors-table/internal/config"
	"traitors-table/internal/db"
	"traitors-table/internal/game"
	"traitors-table/internal/identity"
	"traitors-table/internal/logging"
	"traitors-table/internal/media/loopback"
	"traitors-table/internal/store"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg := config.Load()

	role := flag.String("role", "", "host, player or viewer")
	sessionFile := flag.String("session", ".table-session.json", "file holding this terminal's session values")
	tab := flag.String("tab", "", "keep session values in the database under this tab id instead of a file")
	storeURL := flag.String("store", cfg.StoreURL, "websocket URL of the state store")
	flag.Parse()

	log := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	storage, err := openStorage(cfg, *sessionFile, *tab)
	if err != nil {
		log.Fatal().Err(err).Msg("open session storage")
	}
	me, err := identity.Begin(storage, identity.ParseRole(*role))
	if err != nil {
		log.Fatal().Err(err).Msg("start session")
	}
	if me.Role() == identity.RoleNone {
		log.Fatal().Msg("-role is required for a new session")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	remote, err := store.DialRemote(dialCtx, *storeURL, log)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("url", *storeURL).Msg("connect to store")
	}
	defer remote.Close()

	ctrl := game.NewController(remote, me, log, game.Options{
		TimerTick:    time.Duration(cfg.TimerTickMillis) * time.Millisecond,
		MediaChannel: cfg.MediaChannel,
	})
	if err := ctrl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start controller")
	}
	defer ctrl.Close()

	if err := ctrl.Reconcile(ctx); errors.Is(err, game.ErrSeatTaken) {
		fmt.Println("your seat was taken while you were away; pick another")
	} else if err != nil {
		log.Warn().Err(err).Msg("seat check failed")
	}

	go printEvents(ctrl)
	user := me.Current()
	fmt.Printf("%s %s (%s), type help for commands\n", user.Role, user.ID, displayName(user.Name))

	sh := &shell{ctrl: ctrl, me: me, cfg: cfg, room: loopback.NewRoom(), out: os.Stdout}
	lines := make(chan string)
	go readLines(lines)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := sh.run(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				fmt.Println("error:", err)
			}
		}
	}
}

func openStorage(cfg config.Config, path, tab string) (identity.Storage, error) {
	if tab == "" {
		return identity.OpenFileStorage(path)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("-tab needs DATABASE_URL")
	}
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	return identity.NewDBStorage(conn, tab), nil
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

func printEvents(ctrl *game.Controller) {
	state := ctrl.State()
	for ev := range ctrl.Events() {
		switch ev.Kind {
		case game.EventPhase:
			fmt.Printf("* phase: %s\n", ev.Phase.DisplayName())
		case game.EventOverlay:
			if ev.Overlay {
				fmt.Println("* night falls, you are asleep")
			} else {
				fmt.Println("* you are awake")
			}
		case game.EventTimer:
			if ev.Timer.IsRunning {
				fmt.Printf("* %s %s\n", ev.Timer.Phase, game.FormatClock(ev.Timer.RemainingSeconds))
			}
		case game.EventGong:
			fmt.Println("* GONG")
		case game.EventTally:
			for _, entry := range ev.Tally {
				fmt.Printf("  %-12s %d\n", entry.Name, entry.Count)
			}
		case game.EventRevealTurn:
			fmt.Println("* your turn to reveal, type reveal")
		case game.EventAnnouncement:
			fmt.Printf("* announcement: %s\n", ev.Text)
		case game.EventSpotlight:
			name := ev.PlayerID
			if p, ok := state.Player(ev.PlayerID); ok {
				name = p.Name
			}
			fmt.Printf("* %s steps into the circle of truth\n", name)
		case game.EventSeatLost:
			fmt.Printf("* seat %d was taken by someone else\n", ev.Seat)
		case game.EventTimerYield:
			fmt.Println("* another host is running the timer")
		case game.EventMediaDegraded:
			fmt.Printf("* playing without media: %v\n", ev.Err)
		}
	}
}

func displayName(name string) string {
	if name == "" {
		return "no name yet"
	}
	return name
}
