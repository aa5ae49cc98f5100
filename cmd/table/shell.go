package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"traitors-table/internal/config"
	"traitors-table/internal/game"
	"traitors-table/internal/identity"
	"traitors-table/internal/media/loopback"
	"traitors-table/internal/server"

	"github.com/skip2/go-qrcode"
)

var errQuit = errors.New("quit")

type command struct {
	usage string
	args  int
	run   func(sh *shell, ctx context.Context, args []string) error
}

type shell struct {
	ctrl *game.Controller
	me   *identity.Identity
	cfg  config.Config
	room *loopback.Room
	out  io.Writer
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":     {usage: "help", run: (*shell).help},
		"quit":     {usage: "quit", run: func(*shell, context.Context, []string) error { return errQuit }},
		"state":    {usage: "state", run: (*shell).state},
		"seat":     {usage: "seat <n> <name> [pronouns]", args: 2, run: (*shell).seat},
		"name":     {usage: "name <name>", args: 1, run: (*shell).rename},
		"pronouns": {usage: "pronouns <pronouns>", args: 1, run: (*shell).pronouns},
		"room":     {usage: "room <room>", args: 1, run: (*shell).moveSelf},
		"vote":     {usage: "vote <seat>", args: 1, run: (*shell).vote},
		"reveal":   {usage: "reveal", run: (*shell).reveal},
		"video":    {usage: "video on|off", args: 1, run: (*shell).video},
		"media":    {usage: "media join|leave", args: 1, run: (*shell).media},

		"host":      {usage: "host <name>", args: 1, run: (*shell).registerHost},
		"phase":     {usage: "phase <phase> [force]", args: 1, run: (*shell).phase},
		"timer":     {usage: "timer <seconds> [label]", args: 1, run: (*shell).timer},
		"pause":     {usage: "pause", run: hostAction((*game.Controller).PauseTimer)},
		"resume":    {usage: "resume", run: hostAction((*game.Controller).ResumeTimer)},
		"stop":      {usage: "stop", run: hostAction((*game.Controller).StopTimer)},
		"startvote": {usage: "startvote [seconds]", run: (*shell).startVote},
		"lock":      {usage: "lock", run: hostAction((*game.Controller).LockVoting)},
		"next":      {usage: "next", run: (*shell).next},
		"endvote":   {usage: "endvote", run: hostAction((*game.Controller).EndVote)},
		"announce":  {usage: "announce <text>", args: 1, run: (*shell).announce},
		"spotlight": {usage: "spotlight <seat>|off", args: 1, run: (*shell).spotlight},
		"ghost":     {usage: "ghost <seat>", args: 1, run: statusCommand(game.StatusGhost)},
		"revive":    {usage: "revive <seat>", args: 1, run: statusCommand(game.StatusActive)},
		"move":      {usage: "move <seat> <room>", args: 2, run: (*shell).move},
		"invite":    {usage: "invite [player|viewer]", run: (*shell).invite},
	}
}

func hostAction(fn func(*game.Controller, context.Context) error) func(*shell, context.Context, []string) error {
	return func(sh *shell, ctx context.Context, _ []string) error {
		return fn(sh.ctrl, ctx)
	}
}

func (sh *shell) run(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("unknown command %q", fields[0])
	}
	args := fields[1:]
	if len(args) < cmd.args {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(sh, ctx, args)
}

func (sh *shell) help(context.Context, []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(sh.out, " ", commands[name].usage)
	}
	return nil
}

func (sh *shell) state(context.Context, []string) error {
	state := sh.ctrl.State()
	user := sh.me.Current()
	fmt.Fprintf(sh.out, "you: %s, seat %d\n", displayName(user.Name), user.Seat)
	fmt.Fprintf(sh.out, "phase: %s\n", state.Phase().DisplayName())
	if timer, ok := state.Timer(); ok {
		fmt.Fprintf(sh.out, "timer: %s %s running=%v\n", timer.Phase, game.FormatClock(timer.RemainingSeconds), timer.IsRunning)
	}
	for _, p := range state.ActivePlayers() {
		fmt.Fprintf(sh.out, "  %2d %-12s %-10s %s\n", p.Seat, p.Name, p.Pronouns, p.Room.DisplayName())
	}
	if voting, ok := state.Voting(); ok && voting.Active {
		fmt.Fprintf(sh.out, "voting: open=%v votes=%d revealer=%s\n", voting.Open(), len(voting.Votes), voting.CurrentRevealer)
	}
	return nil
}

func (sh *shell) seat(ctx context.Context, args []string) error {
	seat, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("seat must be a number")
	}
	pronouns := ""
	if len(args) > 2 {
		pronouns = strings.Join(args[2:], " ")
	}
	player, err := sh.ctrl.ClaimSeat(ctx, seat, args[1], pronouns)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "seated at %d as %s\n", player.Seat, player.Name)
	return nil
}

func (sh *shell) rename(ctx context.Context, args []string) error {
	return sh.ctrl.Rename(ctx, strings.Join(args, " "))
}

func (sh *shell) pronouns(ctx context.Context, args []string) error {
	return sh.ctrl.UpdatePronouns(ctx, strings.Join(args, " "))
}

func (sh *shell) moveSelf(ctx context.Context, args []string) error {
	return sh.ctrl.MoveSelf(ctx, game.Room(args[0]))
}

func (sh *shell) vote(ctx context.Context, args []string) error {
	seat, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("seat must be a number")
	}
	return sh.ctrl.CastVote(ctx, seat)
}

func (sh *shell) reveal(ctx context.Context, _ []string) error {
	revealed, err := sh.ctrl.HandleKey(ctx, "Space")
	if err == nil && !revealed {
		fmt.Fprintln(sh.out, "not your turn")
	}
	return err
}

func (sh *shell) video(ctx context.Context, args []string) error {
	return sh.ctrl.SetVideoOff(ctx, args[0] == "off")
}

func (sh *shell) registerHost(ctx context.Context, args []string) error {
	_, err := sh.ctrl.RegisterHost(ctx, strings.Join(args, " "))
	return err
}

func (sh *shell) announce(ctx context.Context, args []string) error {
	return sh.ctrl.Announce(ctx, strings.Join(args, " "))
}

func (sh *shell) phase(ctx context.Context, args []string) error {
	next := game.Phase(args[0])
	if len(args) > 1 && args[1] == "force" {
		return sh.ctrl.ForcePhase(ctx, next)
	}
	return sh.ctrl.SetPhase(ctx, next)
}

func (sh *shell) timer(ctx context.Context, args []string) error {
	seconds, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("seconds must be a number")
	}
	label := string(sh.ctrl.State().Phase())
	if len(args) > 1 {
		label = args[1]
	}
	return sh.ctrl.StartTimer(ctx, label, seconds)
}

func (sh *shell) startVote(ctx context.Context, args []string) error {
	seconds := sh.cfg.VoteDurationSeconds
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("seconds must be a number")
		}
		seconds = n
	}
	return sh.ctrl.StartVote(ctx, seconds)
}

func (sh *shell) next(ctx context.Context, _ []string) error {
	id, ok, err := sh.ctrl.NextRevealer(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(sh.out, "everyone has revealed")
		return nil
	}
	if p, found := sh.ctrl.State().Player(id); found {
		fmt.Fprintf(sh.out, "%s reveals next\n", p.Name)
	}
	return nil
}

// playerAt resolves a seat argument to the player record key.
func (sh *shell) playerAt(arg string) (string, error) {
	seat, err := strconv.Atoi(arg)
	if err != nil {
		return "", fmt.Errorf("seat must be a number")
	}
	for key, p := range sh.ctrl.State().Players() {
		if p.Seat == seat {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: seat %d", game.ErrUnknownPlayer, seat)
}

func (sh *shell) spotlight(ctx context.Context, args []string) error {
	if args[0] == "off" {
		return sh.ctrl.ClearSpotlight(ctx)
	}
	key, err := sh.playerAt(args[0])
	if err != nil {
		return err
	}
	return sh.ctrl.Spotlight(ctx, key)
}

func statusCommand(status game.Status) func(*shell, context.Context, []string) error {
	return func(sh *shell, ctx context.Context, args []string) error {
		key, err := sh.playerAt(args[0])
		if err != nil {
			return err
		}
		return sh.ctrl.SetStatus(ctx, key, status)
	}
}

func (sh *shell) move(ctx context.Context, args []string) error {
	key, err := sh.playerAt(args[0])
	if err != nil {
		return err
	}
	return sh.ctrl.MoveToRoom(ctx, key, game.Room(args[1]))
}

func (sh *shell) media(ctx context.Context, args []string) error {
	switch args[0] {
	case "join":
		return sh.ctrl.JoinMedia(ctx, sh.room.NewSession(loopback.Options{}))
	case "leave":
		return sh.ctrl.LeaveMedia(ctx)
	default:
		return fmt.Errorf("usage: media join|leave")
	}
}

func (sh *shell) invite(_ context.Context, args []string) error {
	role := "player"
	if len(args) > 0 {
		role = args[0]
	}
	link := server.InviteURL(sh.cfg.PublicURL, role)
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return err
	}
	fmt.Fprint(sh.out, qr.ToSmallString(false))
	fmt.Fprintln(sh.out, link)
	return nil
}
